// Package httpapi exposes the auth service over HTTP with fiber.
//
// Routes:
//
//	POST /auth/login                 {email,password} -> {serviceToken,expiresIn}
//	POST /auth/login/code            Bearer pre-auth, {totpCode} -> token pair
//	POST /auth/login/code/resend     Bearer pre-auth
//	POST /auth/refresh               {refreshToken} -> token pair
//	GET  <prefix>/users/me           Bearer access -> profile
//	GET  <prefix>/users/me/authorities
//
// Errors are JSON objects with a single message field.
package httpapi

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/dmitrijs2005/gophadmin/internal/common"
	"github.com/dmitrijs2005/gophadmin/internal/logging"
	"github.com/dmitrijs2005/gophadmin/internal/server/models"
	"github.com/dmitrijs2005/gophadmin/internal/server/services"
)

// AuthService is the subset of services.AuthService the handlers use.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*services.PreAuth, error)
	VerifyCode(ctx context.Context, preAuthToken, code string) (*services.TokenPair, error)
	ResendCode(ctx context.Context, preAuthToken string) error
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	AuthenticateAccess(token string) (string, error)
	CurrentUser(ctx context.Context, userID string) (*models.User, error)
	Authorities(ctx context.Context, userID string) ([]string, error)
}

const localUserID = "user_id"

type Server struct {
	app *fiber.App
	svc AuthService
	log logging.Logger
}

func New(svc AuthService, log logging.Logger, apiPrefix string) *Server {
	s := &Server{svc: svc, log: log}
	s.app = fiber.New(fiber.Config{
		AppName:               "gophadmin",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	s.app.Use(recover.New())
	s.app.Use(requestid.New(requestid.Config{Header: common.RequestIDHeaderName}))
	s.app.Use(s.accessLog)

	a := s.app.Group("/auth")
	a.Post("/login", s.login)
	a.Post("/login/code", s.verifyCode)
	a.Post("/login/code/resend", s.resendCode)
	a.Post("/refresh", s.refresh)

	me := strings.TrimRight(apiPrefix, "/") + "/users/me"
	s.app.Get(me, s.requireAccess, s.currentUser)
	s.app.Get(me+"/authorities", s.requireAccess, s.authorities)

	return s
}

// App returns the underlying fiber app, for tests and custom listeners.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

func (s *Server) Shutdown(ctx context.Context) error { return s.app.ShutdownWithContext(ctx) }

// accessLog renders chain errors itself so the logged status is final.
func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	if err := c.Next(); err != nil {
		if herr := s.handleError(c, err); herr != nil {
			return herr
		}
	}
	s.log.Debug(c.UserContext(), "request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start),
		"request_id", c.GetRespHeader(common.RequestIDHeaderName))
	return nil
}

// requireAccess rejects requests without a valid access token and stores
// the caller's user ID in the request locals.
func (s *Server) requireAccess(c *fiber.Ctx) error {
	token, ok := bearer(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, msgUnauthorized)
	}
	userID, err := s.svc.AuthenticateAccess(token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, msgUnauthorized)
	}
	c.Locals(localUserID, userID)
	return c.Next()
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	msg := "Internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		status, msg = fe.Code, fe.Message
	} else {
		s.log.Error(c.UserContext(), "request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(errorResponse{Message: msg})
}

func bearer(c *fiber.Ctx) (string, bool) {
	h := c.Get(common.AuthorizationHeaderName)
	scheme, token, ok := strings.Cut(h, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, strings.TrimSpace(common.BearerPrefix)) || token == "" {
		return "", false
	}
	return token, true
}
