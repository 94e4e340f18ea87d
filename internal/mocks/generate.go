// Package mocks holds gomock doubles for the session manager's
// collaborators.
//
// To regenerate after an interface change:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	api := mocks.NewMockClient(ctrl)
//	api.EXPECT().Login(gomock.Any(), gomock.Any()).Return(grant, nil)
package mocks

// MockClient: Login, VerifyCode, ResendCode, RefreshTokens,
// FetchCurrentUserProfile, FetchCurrentUserAuthorities, Close
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=client_mock.go github.com/dmitrijs2005/gophadmin/internal/client/client Client
