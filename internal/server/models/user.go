// Package models holds the records of the auth server.
package models

import "time"

type Address struct {
	Address      string `json:"address" yaml:"address"`
	City         string `json:"city" yaml:"city"`
	Country      string `json:"country" yaml:"country"`
	USAStateType string `json:"usaStateType" yaml:"usa_state"`
	ZipCode      string `json:"zipCode" yaml:"zip_code"`
}

// User is an admin console account. PasswordHash is a bcrypt hash.
type User struct {
	ID              string
	Email           string
	PasswordHash    string
	FirstName       string
	LastName        string
	JobTitle        string
	IsActive        bool
	OnboardedAt     *time.Time
	SystemRole      string
	FunctionalRoles []string
	Authorities     []string
	Address         Address
	CreatedAt       time.Time
}
