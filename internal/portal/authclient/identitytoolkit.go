package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/googleapi/transport"
	identitytoolkit "google.golang.org/api/identitytoolkit/v1"
	"google.golang.org/api/option"
)

const (
	defaultIdentityToolkitEndpoint = "https://identitytoolkit.googleapis.com/"
	defaultSecureTokenEndpoint     = "https://securetoken.googleapis.com/v1/token"
)

// IdentityToolkitClient implements Client and Refresher against the Firebase
// Auth REST API. The Web API key is attached to every call.
type IdentityToolkitClient struct {
	accounts *identitytoolkit.AccountsService
	http     *http.Client
	tokenURL string
}

// Option customises IdentityToolkitClient instances.
type Option func(*toolkitOptions)

type toolkitOptions struct {
	endpoint      string
	tokenEndpoint string
	client        *http.Client
}

// WithEndpoint overrides the Identity Toolkit base URL (mainly for tests).
func WithEndpoint(endpoint string) Option {
	return func(o *toolkitOptions) {
		if strings.TrimSpace(endpoint) != "" {
			o.endpoint = endpoint
		}
	}
}

// WithSecureTokenEndpoint overrides the token refresh URL (mainly for tests).
func WithSecureTokenEndpoint(endpoint string) Option {
	return func(o *toolkitOptions) {
		if strings.TrimSpace(endpoint) != "" {
			o.tokenEndpoint = endpoint
		}
	}
}

// WithEmulatorHost points the client at a local Firebase Auth emulator ("host:port").
func WithEmulatorHost(host string) Option {
	return func(o *toolkitOptions) {
		host = strings.TrimSpace(host)
		if host == "" {
			return
		}
		o.endpoint = "http://" + host + "/identitytoolkit.googleapis.com/"
		o.tokenEndpoint = "http://" + host + "/securetoken.googleapis.com/v1/token"
	}
}

// WithHTTPClient sets the HTTP client used for provider calls.
func WithHTTPClient(client *http.Client) Option {
	return func(o *toolkitOptions) {
		if client != nil {
			o.client = client
		}
	}
}

// NewIdentityToolkitClient constructs a client authenticated with the Web API key.
func NewIdentityToolkitClient(ctx context.Context, apiKey string, opts ...Option) (*IdentityToolkitClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("authclient: api key is required")
	}
	options := toolkitOptions{
		endpoint:      defaultIdentityToolkitEndpoint,
		tokenEndpoint: defaultSecureTokenEndpoint,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	endpoint := options.endpoint
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("authclient: parse endpoint: %w", err)
	}
	if _, err := url.Parse(options.tokenEndpoint); err != nil {
		return nil, fmt.Errorf("authclient: parse token endpoint: %w", err)
	}

	keyed := *options.client
	keyed.Transport = &transport.APIKey{Key: apiKey, Transport: options.client.Transport}

	svc, err := identitytoolkit.NewService(ctx,
		option.WithHTTPClient(&keyed),
		option.WithEndpoint(endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("authclient: identity toolkit service: %w", err)
	}
	return &IdentityToolkitClient{
		accounts: svc.Accounts,
		http:     &keyed,
		tokenURL: options.tokenEndpoint,
	}, nil
}

// Login calls accounts:signInWithPassword.
func (c *IdentityToolkitClient) Login(ctx context.Context, creds Credentials) (*Session, error) {
	resp, err := c.accounts.SignInWithPassword(&identitytoolkit.GoogleCloudIdentitytoolkitV1SignInWithPasswordRequest{
		Email:             creds.Email,
		Password:          creds.Password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, providerError(err)
	}
	return &Session{
		UserID:       resp.LocalId,
		Email:        resp.Email,
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    seconds(resp.ExpiresIn),
	}, nil
}

// Register calls accounts:signUp.
func (c *IdentityToolkitClient) Register(ctx context.Context, creds Credentials) (*Session, error) {
	resp, err := c.accounts.SignUp(&identitytoolkit.GoogleCloudIdentitytoolkitV1SignUpRequest{
		Email:    creds.Email,
		Password: creds.Password,
	}).Context(ctx).Do()
	if err != nil {
		return nil, providerError(err)
	}
	return &Session{
		UserID:       resp.LocalId,
		Email:        resp.Email,
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    seconds(resp.ExpiresIn),
	}, nil
}

type secureTokenResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// Refresh exchanges a refresh token for a new ID token at the Secure Token
// endpoint. The returned session carries no email.
func (c *IdentityToolkitClient) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("authclient: build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, providerError(err)
	}
	defer googleapi.CloseBody(resp)
	if err := googleapi.CheckResponse(resp); err != nil {
		return nil, providerError(err)
	}

	var payload secureTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, providerError(err)
	}
	n, _ := strconv.ParseInt(strings.TrimSpace(payload.ExpiresIn), 10, 64)
	return &Session{
		UserID:       payload.UserID,
		IDToken:      payload.IDToken,
		RefreshToken: payload.RefreshToken,
		ExpiresIn:    seconds(n),
	}, nil
}

// providerError maps API, transport and decoding failures onto *Error.
func providerError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return errorFromAPI(apiErr)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindUnavailable, Message: "request failed", Err: err}
	}
	return &Error{Kind: KindUnavailable, Code: "INVALID_RESPONSE", Message: "unreadable provider response", Err: err}
}

func errorFromAPI(apiErr *googleapi.Error) error {
	code, detail := parseProviderMessage(apiErr.Message)
	if code == "" {
		kind := KindUnknown
		if apiErr.Code >= http.StatusInternalServerError {
			kind = KindUnavailable
		}
		message := strings.TrimSpace(apiErr.Body)
		if message == "" {
			message = http.StatusText(apiErr.Code)
		}
		return &Error{Kind: kind, Message: message, Status: apiErr.Code, Err: apiErr}
	}

	kind := kindForCode(code)
	if kind == KindUnknown && apiErr.Code >= http.StatusInternalServerError {
		kind = KindUnavailable
	}
	message := detail
	if message == "" {
		message = strings.ToLower(strings.ReplaceAll(code, "_", " "))
	}
	return &Error{Kind: kind, Code: code, Message: message, Status: apiErr.Code, Err: apiErr}
}

func seconds(n int64) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
