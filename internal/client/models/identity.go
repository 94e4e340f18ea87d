// Package models defines the client-side session data: credentials, token
// grants and the signed-in user's identity.
package models

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Address is the postal address attached to a user profile.
type Address struct {
	Address      string `json:"address"`
	City         string `json:"city"`
	Country      string `json:"country"`
	USAStateType string `json:"usaStateType"`
	ZipCode      string `json:"zipCode"`
}

// Profile is the payload of GET /users/me. OnboardedAt is kept as sent,
// servers differ on its date format.
type Profile struct {
	ID              string   `json:"id"`
	Email           string   `json:"email"`
	FirstName       string   `json:"firstName"`
	LastName        string   `json:"lastName"`
	JobTitle        string   `json:"jobTitle"`
	IsActive        bool     `json:"isActive"`
	OnboardedAt     string   `json:"onboardedAt,omitempty"`
	SystemRole      string   `json:"systemRole"`
	FunctionalRoles []string `json:"functionalRoles"`
	Address         Address  `json:"address"`
}

// Identity is a Profile merged with the authorities fetched separately from
// GET /users/me/authorities.
type Identity struct {
	Profile
	GrantedAuthorities []string `json:"grantedAuthorities"`
}

// NewIdentity merges profile and authorities. Both slices are copied.
func NewIdentity(profile Profile, authorities []string) *Identity {
	p := profile
	p.FunctionalRoles = slices.Clone(profile.FunctionalRoles)
	return &Identity{
		Profile:            p,
		GrantedAuthorities: slices.Clone(authorities),
	}
}

// FullName returns "First Last". ok is false unless both parts are non-empty.
func (i *Identity) FullName() (name string, ok bool) {
	if i.FirstName == "" || i.LastName == "" {
		return "", false
	}
	return i.FirstName + " " + i.LastName, true
}

// Initials returns the upper-cased first letter of each name part. ok is
// false unless both parts are non-empty.
func (i *Identity) Initials() (initials string, ok bool) {
	if i.FirstName == "" || i.LastName == "" {
		return "", false
	}
	first, _ := utf8.DecodeRuneInString(i.FirstName)
	last, _ := utf8.DecodeRuneInString(i.LastName)
	return strings.ToUpper(string([]rune{unicode.ToUpper(first), unicode.ToUpper(last)})), true
}

// HasAuthority reports whether the permission identifier was granted.
func (i *Identity) HasAuthority(authority string) bool {
	return slices.Contains(i.GrantedAuthorities, authority)
}

// HasFunctionalRole reports whether the user holds the functional role.
func (i *Identity) HasFunctionalRole(role string) bool {
	return slices.Contains(i.FunctionalRoles, role)
}
