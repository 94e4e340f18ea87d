package users

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/dmitrijs2005/gophadmin/internal/common"
	"github.com/dmitrijs2005/gophadmin/internal/server/models"
)

// DemoFixture seeds a development server when no users file is configured.
//
//go:embed demo_users.yaml
var DemoFixture []byte

type fixtureFile struct {
	Users []fixtureUser `yaml:"users"`
}

// fixtureUser carries either a plaintext password, hashed on load, or a
// ready bcrypt hash.
type fixtureUser struct {
	ID              string         `yaml:"id"`
	Email           string         `yaml:"email"`
	Password        string         `yaml:"password"`
	PasswordHash    string         `yaml:"password_hash"`
	FirstName       string         `yaml:"first_name"`
	LastName        string         `yaml:"last_name"`
	JobTitle        string         `yaml:"job_title"`
	Active          *bool          `yaml:"active"`
	OnboardedAt     *time.Time     `yaml:"onboarded_at"`
	SystemRole      string         `yaml:"system_role"`
	FunctionalRoles []string       `yaml:"functional_roles"`
	Authorities     []string       `yaml:"authorities"`
	Address         models.Address `yaml:"address"`
}

// LoadFixture decodes a YAML users document. Accounts are active unless the
// fixture says otherwise.
func LoadFixture(r io.Reader, bcryptCost int) ([]*models.User, error) {
	var f fixtureFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode users fixture: %w", err)
	}

	out := make([]*models.User, 0, len(f.Users))
	for i, fu := range f.Users {
		if fu.Email == "" {
			return nil, fmt.Errorf("users fixture: entry %d has no email", i)
		}

		hash := fu.PasswordHash
		if hash == "" {
			if fu.Password == "" {
				return nil, fmt.Errorf("users fixture: %s has no password", fu.Email)
			}
			h, err := bcrypt.GenerateFromPassword([]byte(fu.Password), bcryptCost)
			if err != nil {
				return nil, fmt.Errorf("users fixture: hash password of %s: %w", fu.Email, err)
			}
			hash = string(h)
		}

		active := true
		if fu.Active != nil {
			active = *fu.Active
		}

		out = append(out, &models.User{
			ID:              fu.ID,
			Email:           fu.Email,
			PasswordHash:    hash,
			FirstName:       fu.FirstName,
			LastName:        fu.LastName,
			JobTitle:        fu.JobTitle,
			IsActive:        active,
			OnboardedAt:     fu.OnboardedAt,
			SystemRole:      fu.SystemRole,
			FunctionalRoles: fu.FunctionalRoles,
			Authorities:     fu.Authorities,
			Address:         fu.Address,
		})
	}
	return out, nil
}

// Seed creates every user in repo, skipping emails that already exist.
func Seed(ctx context.Context, repo Repository, users []*models.User) (created int, err error) {
	for _, u := range users {
		if _, err := repo.Create(ctx, u); err != nil {
			if errors.Is(err, common.ErrorAlreadyExists) {
				continue
			}
			return created, fmt.Errorf("seed %s: %w", u.Email, err)
		}
		created++
	}
	return created, nil
}
