// Package auth resolves connection tokens to player identities. The
// engine never mints tokens itself; a remote validator owns them, with
// a local parser for development setups that run without one.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidToken indicates a token the validator rejected.
var ErrInvalidToken = errors.New("invalid token")

// Identity is who a token belongs to.
type Identity struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
}

// Validator turns a token into an identity.
type Validator interface {
	Validate(ctx context.Context, token string) (Identity, error)
}

// HTTPValidator asks a remote auth service.
type HTTPValidator struct {
	baseURL string
	client  *http.Client
}

func NewHTTPValidator(baseURL string) *HTTPValidator {
	return &HTTPValidator{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type validateResponse struct {
	Valid      bool   `json:"valid"`
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
}

func (v *HTTPValidator) Validate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}

	endpoint := fmt.Sprintf("%s/validate?token=%s", v.baseURL, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Identity{}, err
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("validate token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("%w: validator status %d", ErrInvalidToken, resp.StatusCode)
	}

	var parsed validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Identity{}, fmt.Errorf("validate token: %w", err)
	}
	if !parsed.Valid || parsed.PlayerID == "" {
		return Identity{}, ErrInvalidToken
	}

	name := parsed.PlayerName
	if name == "" {
		name = parsed.PlayerID
	}
	return Identity{PlayerID: parsed.PlayerID, PlayerName: name}, nil
}

// LocalValidator accepts "id:name" tokens without a remote service.
// Development only.
type LocalValidator struct{}

func (LocalValidator) Validate(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}

	id, name, found := strings.Cut(token, ":")
	if !found || name == "" {
		name = id
	}
	if id == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{PlayerID: id, PlayerName: name}, nil
}
