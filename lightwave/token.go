package lightwave

import (
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2"
)

// TokenPair is the access/refresh token pair issued by the token endpoint.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// OAuth2 converts the pair to an oauth2.Token. LinkPlus tokens carry no usable expiry,
// so Expiry is left zero and the token is treated as valid until the API rejects it.
func (p *TokenPair) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    "bearer",
	}
}

// SeedCredential is supplied once at construction and never mutated.
type SeedCredential struct {
	// BearerID is the application identifier sent as "basic" authorization to the
	// token endpoint (labelled "Basic" on the LinkPlus settings page).
	BearerID string
	// SeedRefreshToken is the user-supplied starting refresh token. Optional when a
	// snapshot already exists.
	SeedRefreshToken string
}

// tokenResponse is the body of the token endpoint for both success and failure.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// parseSnapshot decodes a persisted snapshot or token endpoint body into a pair.
func parseSnapshot(data []byte) (*TokenPair, error) {
	var resp tokenResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &MalformedResponseError{
			Message:  fmt.Sprintf("token snapshot is not valid JSON: %v", err),
			Fragment: string(data),
		}
	}
	if resp.AccessToken == "" {
		return nil, malformed("token snapshot has no access_token", data)
	}
	return &TokenPair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}, nil
}
