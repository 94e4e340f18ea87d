package httpapi

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/dmitrijs2005/gophadmin/internal/common"
	"github.com/dmitrijs2005/gophadmin/internal/server/models"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type loginResponse struct {
	ServiceToken string `json:"serviceToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type verifyCodeRequest struct {
	TOTPCode string `json:"totpCode"`
}

func (r verifyCodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TOTPCode, validation.Required, validation.Length(common.CodeLength, common.CodeLength), is.Digit),
	)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r refreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

type tokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type errorResponse struct {
	Message string `json:"message"`
}

type profileResponse struct {
	ID              string         `json:"id"`
	Email           string         `json:"email"`
	FirstName       string         `json:"firstName"`
	LastName        string         `json:"lastName"`
	JobTitle        string         `json:"jobTitle"`
	IsActive        bool           `json:"isActive"`
	OnboardedAt     *time.Time     `json:"onboardedAt,omitempty"`
	SystemRole      string         `json:"systemRole"`
	FunctionalRoles []string       `json:"functionalRoles"`
	Address         models.Address `json:"address"`
}

func newProfileResponse(u *models.User) profileResponse {
	roles := u.FunctionalRoles
	if roles == nil {
		roles = []string{}
	}
	return profileResponse{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		JobTitle:        u.JobTitle,
		IsActive:        u.IsActive,
		OnboardedAt:     u.OnboardedAt,
		SystemRole:      u.SystemRole,
		FunctionalRoles: roles,
		Address:         u.Address,
	}
}
