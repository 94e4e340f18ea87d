package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/dmitrijs2005/gophadmin/internal/common"
)

const (
	msgBadCredentials = "Invalid email or password"
	msgInvalidCode    = "Invalid or expired code"
	msgSessionExpired = "Session expired"
	msgUnauthorized   = "Unauthorized"
)

type validatable interface {
	Validate() error
}

// parse decodes the JSON body into req and validates it.
func parse(c *fiber.Ctx, req validatable) error {
	if err := c.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Malformed request body")
	}
	if err := req.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func (s *Server) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := parse(c, &req); err != nil {
		return err
	}

	pre, err := s.svc.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			return fiber.NewError(fiber.StatusUnauthorized, msgBadCredentials)
		}
		return err
	}

	return c.JSON(loginResponse{
		ServiceToken: pre.Token,
		ExpiresIn:    int64(pre.ExpiresIn.Seconds()),
	})
}

func (s *Server) verifyCode(c *fiber.Ctx) error {
	token, ok := bearer(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, msgInvalidCode)
	}

	var req verifyCodeRequest
	if err := parse(c, &req); err != nil {
		return err
	}

	pair, err := s.svc.VerifyCode(c.UserContext(), token, req.TOTPCode)
	if err != nil {
		return codeError(err)
	}
	return c.JSON(tokenPairResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (s *Server) resendCode(c *fiber.Ctx) error {
	token, ok := bearer(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, msgInvalidCode)
	}

	if err := s.svc.ResendCode(c.UserContext(), token); err != nil {
		if errors.Is(err, common.ErrResendTooSoon) {
			return fiber.NewError(fiber.StatusTooManyRequests, "A code was sent recently, try again later")
		}
		return codeError(err)
	}
	return c.JSON(fiber.Map{})
}

func (s *Server) refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := parse(c, &req); err != nil {
		return err
	}

	pair, err := s.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) || errors.Is(err, common.ErrRefreshTokenExpired) {
			return fiber.NewError(fiber.StatusUnauthorized, msgSessionExpired)
		}
		return err
	}
	return c.JSON(tokenPairResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (s *Server) currentUser(c *fiber.Ctx) error {
	user, err := s.svc.CurrentUser(c.UserContext(), userID(c))
	if err != nil {
		return accessError(err)
	}
	return c.JSON(newProfileResponse(user))
}

func (s *Server) authorities(c *fiber.Ctx) error {
	auths, err := s.svc.Authorities(c.UserContext(), userID(c))
	if err != nil {
		return accessError(err)
	}
	return c.JSON(auths)
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

func codeError(err error) error {
	if errors.Is(err, common.ErrInvalidCode) {
		return fiber.NewError(fiber.StatusUnauthorized, msgInvalidCode)
	}
	return err
}

func accessError(err error) error {
	if errors.Is(err, common.ErrorUnauthorized) {
		return fiber.NewError(fiber.StatusUnauthorized, msgUnauthorized)
	}
	return err
}
