package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailfleet/tokenstack/config"
)

func newTestClient(serverURL string) *Client {
	return NewClient(&config.ProviderConfig{
		TokenURL:       serverURL,
		Scope:          "test-scope offline_access",
		TimeoutSeconds: 2,
	})
}

func TestClient_Refresh_Success(t *testing.T) {
	// Arrange
	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"client_id":     r.PostFormValue("client_id"),
			"grant_type":    r.PostFormValue("grant_type"),
			"refresh_token": r.PostFormValue("refresh_token"),
			"scope":         r.PostFormValue("scope"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-123","refresh_token":"rt-456","expires_in":3600}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	// Act
	token, err := client.Refresh(context.Background(), "client-abc", "rt-old")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "at-123", token.AccessToken)
	assert.Equal(t, "rt-456", token.RefreshToken)
	assert.Equal(t, 3600, token.ExpiresIn)
	assert.Equal(t, "client-abc", gotForm["client_id"])
	assert.Equal(t, "refresh_token", gotForm["grant_type"])
	assert.Equal(t, "rt-old", gotForm["refresh_token"])
	assert.Equal(t, "test-scope offline_access", gotForm["scope"])
}

func TestClient_Refresh_InvalidGrant(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"AADSTS70000: token expired"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	// Act
	token, err := client.Refresh(context.Background(), "client-abc", "rt-revoked")

	// Assert
	require.Error(t, err)
	assert.Nil(t, token)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrorKindInvalidGrant, perr.Kind)
	assert.Contains(t, perr.Message, "AADSTS70000")
	assert.False(t, perr.Retryable())
}

func TestClient_Refresh_RateLimited(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	// Act
	_, err := client.Refresh(context.Background(), "client-abc", "rt-old")

	// Assert
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrorKindRateLimited, perr.Kind)
	assert.True(t, perr.Retryable())
}

func TestClient_Refresh_ServerError(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	// Act
	_, err := client.Refresh(context.Background(), "client-abc", "rt-old")

	// Assert
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrorKindNetwork, perr.Kind)
	assert.True(t, perr.Retryable())
}

func TestClient_Refresh_Timeout(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(&config.ProviderConfig{
		TokenURL:       server.URL,
		TimeoutSeconds: 0,
	})
	client.httpClient.Timeout = 50 * time.Millisecond

	// Act
	_, err := client.Refresh(context.Background(), "client-abc", "rt-old")

	// Assert
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrorKindNetwork, perr.Kind)
}

func TestClient_Refresh_ConnectionRefused(t *testing.T) {
	// Arrange - a closed server refuses connections
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newTestClient(server.URL)

	// Act
	_, err := client.Refresh(context.Background(), "client-abc", "rt-old")

	// Assert
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrorKindNetwork, perr.Kind)
}

func TestClient_Refresh_MissingAccessToken(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"expires_in":3600}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	// Act
	_, err := client.Refresh(context.Background(), "client-abc", "rt-old")

	// Assert
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrorKindOther, perr.Kind)
}
