package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"

	"github.com/dmitrijs2005/gophadmin/internal/client/models"
	"github.com/dmitrijs2005/gophadmin/internal/common"
	"github.com/dmitrijs2005/gophadmin/internal/logging"
)

const (
	DefaultAPIPrefix = "/api/v1"
	DefaultTimeout   = 15 * time.Second
)

type HTTPClient struct {
	baseURL   string
	apiPrefix string

	public *http.Client
	authed *http.Client

	log logging.Logger
}

var _ Client = (*HTTPClient)(nil)

type Option func(*httpOptions)

type httpOptions struct {
	apiPrefix string
	timeout   time.Duration
	transport http.RoundTripper
	log       logging.Logger
}

// WithAPIPrefix sets the path prefix of the /users/me endpoints.
func WithAPIPrefix(prefix string) Option {
	return func(o *httpOptions) { o.apiPrefix = prefix }
}

func WithTimeout(d time.Duration) Option {
	return func(o *httpOptions) { o.timeout = d }
}

// WithTransport replaces http.DefaultTransport as the base round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *httpOptions) { o.transport = rt }
}

func WithLogger(l logging.Logger) Option {
	return func(o *httpOptions) { o.log = l }
}

// NewHTTPClient builds a client for the server at baseURL. tokens is only
// read, for the Authorization header of profile requests.
func NewHTTPClient(baseURL string, tokens AccessTokenReader, opts ...Option) (*HTTPClient, error) {
	o := httpOptions{
		apiPrefix: DefaultAPIPrefix,
		timeout:   DefaultTimeout,
		transport: http.DefaultTransport,
		log:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", baseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	base := &requestIDTransport{base: o.transport}

	return &HTTPClient{
		baseURL:   strings.TrimRight(u.String(), "/"),
		apiPrefix: "/" + strings.Trim(o.apiPrefix, "/"),
		public:    &http.Client{Transport: base, Jar: jar, Timeout: o.timeout},
		authed: &http.Client{
			Transport: &oauth2.Transport{Source: storeTokenSource{tokens: tokens}, Base: base},
			Jar:       jar,
			Timeout:   o.timeout,
		},
		log: o.log,
	}, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	ServiceToken string `json:"serviceToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type verifyCodeRequest struct {
	TOTPCode string `json:"totpCode"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (c *HTTPClient) Login(ctx context.Context, creds models.Credentials) (*models.PreAuthGrant, error) {
	var resp loginResponse
	err := c.do(ctx, c.public, http.MethodPost, "/auth/login", "",
		loginRequest{Email: creds.Email, Password: creds.Password}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.ServiceToken == "" || resp.ExpiresIn <= 0 {
		return nil, fmt.Errorf("%w: login response without token or expiry", ErrBadResponse)
	}
	return &models.PreAuthGrant{
		Token:     resp.ServiceToken,
		ExpiresIn: time.Duration(resp.ExpiresIn) * time.Second,
	}, nil
}

func (c *HTTPClient) VerifyCode(ctx context.Context, preAuthToken, code string) (*models.TokenPair, error) {
	var pair models.TokenPair
	err := c.do(ctx, c.public, http.MethodPost, "/auth/login/code", preAuthToken,
		verifyCodeRequest{TOTPCode: code}, &pair)
	if err != nil {
		return nil, err
	}
	if !pair.Complete() {
		return nil, fmt.Errorf("%w: incomplete token pair", ErrBadResponse)
	}
	return &pair, nil
}

func (c *HTTPClient) ResendCode(ctx context.Context, preAuthToken string) error {
	return c.do(ctx, c.public, http.MethodPost, "/auth/login/code/resend", preAuthToken, struct{}{}, nil)
}

func (c *HTTPClient) RefreshTokens(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	var pair models.TokenPair
	err := c.do(ctx, c.public, http.MethodPost, "/auth/refresh", "",
		refreshRequest{RefreshToken: refreshToken}, &pair)
	if err != nil {
		return nil, err
	}
	if !pair.Complete() {
		return nil, fmt.Errorf("%w: incomplete token pair", ErrBadResponse)
	}
	return &pair, nil
}

func (c *HTTPClient) FetchCurrentUserProfile(ctx context.Context) (*models.Profile, error) {
	var p models.Profile
	if err := c.do(ctx, c.authed, http.MethodGet, c.apiPrefix+"/users/me", "", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) FetchCurrentUserAuthorities(ctx context.Context) ([]string, error) {
	var authorities []string
	if err := c.do(ctx, c.authed, http.MethodGet, c.apiPrefix+"/users/me/authorities", "", nil, &authorities); err != nil {
		return nil, err
	}
	if authorities == nil {
		authorities = []string{}
	}
	return authorities, nil
}

func (c *HTTPClient) Close() error {
	c.public.CloseIdleConnections()
	c.authed.CloseIdleConnections()
	return nil
}

// do sends body as JSON and decodes a 2xx response into out (if non-nil).
// bearer, when set, overrides whatever the transport would attach.
func (c *HTTPClient) do(ctx context.Context, hc *http.Client, method, path, bearer string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+bearer)
	}

	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(err, ErrNoAccessToken) {
			return fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.log.Warn(ctx, "request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	return c.parseResponse(ctx, resp, out)
}

func (c *HTTPClient) parseResponse(ctx context.Context, resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(data, &er) == nil {
			apiErr.Message = er.Message
		}
		c.log.Debug(ctx, "api error",
			"status", resp.StatusCode,
			"request_id", resp.Request.Header.Get(common.RequestIDHeaderName))
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	return nil
}

// storeTokenSource feeds oauth2.Transport from the token store on every
// request, so a rotated pair is picked up without rebuilding the client.
type storeTokenSource struct {
	tokens AccessTokenReader
}

func (s storeTokenSource) Token() (*oauth2.Token, error) {
	if s.tokens == nil {
		return nil, ErrNoAccessToken
	}
	access, err := s.tokens.AccessToken(context.Background())
	if err != nil {
		return nil, fmt.Errorf("read access token: %w", err)
	}
	if access == "" {
		return nil, ErrNoAccessToken
	}
	return &oauth2.Token{AccessToken: access, TokenType: "Bearer"}, nil
}

type requestIDTransport struct {
	base http.RoundTripper
}

func (t *requestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(common.RequestIDHeaderName) != "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set(common.RequestIDHeaderName, uuid.NewString())
	return t.base.RoundTrip(r)
}
