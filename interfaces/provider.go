package interfaces

import "context"

// ProviderToken is the result of one successful refresh exchange.
type ProviderToken struct {
	AccessToken string
	// RefreshToken is set when the provider rotated the refresh secret.
	RefreshToken string
	ExpiresIn    int
}

// ProviderClient performs a single credential-refresh exchange against the
// external identity provider. Stateless; one network call per invocation.
type ProviderClient interface {
	Refresh(ctx context.Context, clientID, refreshSecret string) (*ProviderToken, error)
}
