package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/homeworkchat/core/tutor"
)

type conversationAPI struct {
	service *tutor.Service
}

func registerConversationAPI(group *echo.Group, jwt echo.MiddlewareFunc, svc *tutor.Service) {
	api := conversationAPI{service: svc}

	g := group.Group("/conversations", jwt)
	g.POST("/messages", api.createMessage)
	g.POST("/:id/messages", api.postMessage)
	g.GET("/:id/messages", api.history)
}

func (api conversationAPI) bindMessage(ctx echo.Context) (tutor.NewMessage, error) {
	var nm tutor.NewMessage
	if err := ctx.Bind(&nm); err != nil {
		return nm, err
	}
	userID, err := resolveUserID(ctx, nm.UserID)
	if err != nil {
		return nm, err
	}
	nm.UserID = userID
	return nm, nil
}

func (api conversationAPI) createMessage(ctx echo.Context) error {
	nm, err := api.bindMessage(ctx)
	if err != nil {
		return err
	}
	reply, err := api.service.CreateMessage(ctx.Request().Context(), nm)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, reply)
}

func (api conversationAPI) postMessage(ctx echo.Context) error {
	nm, err := api.bindMessage(ctx)
	if err != nil {
		return err
	}
	reply, err := api.service.PostMessage(ctx.Request().Context(), ctx.Param("id"), nm)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, reply)
}

func (api conversationAPI) history(ctx echo.Context) error {
	msgs, err := api.service.History(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"messages": msgs})
}
