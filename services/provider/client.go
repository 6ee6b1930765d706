package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/mailfleet/tokenstack/config"
	"github.com/mailfleet/tokenstack/interfaces"
	"github.com/mailfleet/tokenstack/internal/tracing"
)

// ErrorKind classifies a failed refresh exchange.
type ErrorKind string

const (
	// ErrorKindNetwork covers DNS failures, timeouts and provider 5xx.
	ErrorKindNetwork ErrorKind = "network"
	// ErrorKindInvalidGrant means the credential was revoked or expired;
	// only out-of-band re-authorization recovers it.
	ErrorKindInvalidGrant ErrorKind = "invalid_grant"
	// ErrorKindRateLimited means the provider asked the caller to slow down.
	ErrorKindRateLimited ErrorKind = "rate_limited"
	// ErrorKindOther is unclassified and treated as retry-eligible.
	ErrorKindOther ErrorKind = "other"
)

// Error is a classified provider failure.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider refresh failed (%s): %s", e.Kind, e.Message)
}

// Retryable reports whether a later retry can succeed without
// re-authorization.
func (e *Error) Retryable() bool {
	return e.Kind != ErrorKindInvalidGrant
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

type Client struct {
	tokenURL   string
	scope      string
	httpClient *http.Client
}

func NewClient(cfg *config.ProviderConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		tokenURL:   cfg.TokenURL,
		scope:      cfg.Scope,
		httpClient: &http.Client{Timeout: timeout},
	}
}

var _ interfaces.ProviderClient = (*Client)(nil)

// Refresh performs one refresh-token grant exchange. It mutates no local
// state; classification of failures is the caller's signal for retry policy.
func (c *Client) Refresh(ctx context.Context, clientID, refreshSecret string) (*interfaces.ProviderToken, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderClient.Refresh")
	defer span.Finish()
	tracing.TagComponentService(span)

	form := url.Values{}
	form.Set("client_id", clientID)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshSecret)
	if c.scope != "" {
		form.Set("scope", c.scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &Error{Kind: ErrorKindOther, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, &Error{Kind: ErrorKindNetwork, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		perr := classifyHTTPError(resp.StatusCode, body)
		tracing.TraceErr(span, perr)
		return nil, perr
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		tracing.TraceErr(span, err)
		return nil, &Error{Kind: ErrorKindOther, Message: "malformed token response"}
	}
	if token.AccessToken == "" {
		return nil, &Error{Kind: ErrorKindOther, Message: "token response missing access_token"}
	}

	return &interfaces.ProviderToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresIn:    token.ExpiresIn,
	}, nil
}

func classifyTransportError(err error) *Error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: ErrorKindNetwork, Message: "request timed out"}
	}
	return &Error{Kind: ErrorKindNetwork, Message: err.Error()}
}

func classifyHTTPError(status int, body []byte) *Error {
	if status == http.StatusTooManyRequests {
		return &Error{Kind: ErrorKindRateLimited, Message: "provider rate limited the request"}
	}
	if status >= 500 {
		return &Error{Kind: ErrorKindNetwork, Message: fmt.Sprintf("provider returned %d", status)}
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err == nil && token.Error == "invalid_grant" {
		msg := token.ErrorDesc
		if msg == "" {
			msg = "refresh token revoked or expired"
		}
		return &Error{Kind: ErrorKindInvalidGrant, Message: msg}
	}

	return &Error{Kind: ErrorKindOther, Message: fmt.Sprintf("provider returned %d: %s", status, truncate(string(body), 200))}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
