package echoapi

import (
	"io/ioutil"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/homeworkchat/core/tutor"
)

// MaxUploadSize is the body limit of upload requests.
const MaxUploadSize = "10M"

type uploadAPI struct {
	service    *tutor.Service
	onAnalyzed func()
}

func registerUploadAPI(group *echo.Group, jwt echo.MiddlewareFunc, svc *tutor.Service, onAnalyzed func()) {
	api := uploadAPI{service: svc, onAnalyzed: onAnalyzed}

	g := group.Group("/uploads")
	g.POST("", api.analyze, jwt, middleware.BodyLimit(MaxUploadSize))
	g.GET("/:id", api.download) // public: image messages link here
}

func (api uploadAPI) analyze(ctx echo.Context) error {
	userID, err := resolveUserID(ctx, ctx.FormValue("userId"))
	if err != nil {
		return err
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return errFileMissing
		}
		return err
	}
	file, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening file")
	}
	defer file.Close()

	data, err := ioutil.ReadAll(file)
	if err != nil {
		return errors.Wrap(err, "reading file")
	}

	analysis, err := api.service.Analyze(ctx.Request().Context(), tutor.NewUpload{
		UserID:      userID,
		Name:        fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Data:        data,
	})
	if err != nil {
		return err
	}
	api.onAnalyzed()
	return ctx.JSON(http.StatusCreated, analysis)
}

func (api uploadAPI) download(ctx echo.Context) error {
	up, err := api.service.GetUpload(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.Blob(http.StatusOK, up.ContentType, up.Data)
}
