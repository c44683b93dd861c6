package echoapi

import (
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/homeworkchat/core"
)

const (
	contextTokenKey = "userToken"
	tokenAudience   = "homework-chat"
)

// Claims represents the authorization claims transmitted via a JWT. The subject is the user ID.
type Claims struct {
	jwt.StandardClaims
}

// jwtConfig returns the JWT auth middleware config.
func jwtConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

func NewClaims(conf *core.Config, userID string) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   userID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
	}
}

// GenerateToken generates a signed JWT token string for the user.
func GenerateToken(conf *core.Config, userID string) (string, error) {
	cfg := jwtConfig(conf)
	method := jwt.GetSigningMethod(cfg.SigningMethod)
	token := jwt.NewWithClaims(method, NewClaims(conf, userID))

	ss, err := token.SignedString(cfg.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// resolveUserID checks the user ID sent by the client against the authenticated one.
// Without authentication (disabled auth) the client's value is trusted.
func resolveUserID(ctx echo.Context, sent string) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return sent, nil
	}
	switch core.CleanString(sent) {
	case "", claims.Subject:
		return claims.Subject, nil
	}
	return "", errHttpForbidden
}
