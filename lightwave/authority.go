package lightwave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	retry "github.com/appleboy/go-httpretry"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// errTokenRejected is returned by exchange when the token endpoint rejects the
// refresh token that was presented.
var errTokenRejected = errors.New("refresh token rejected")

// attemptState tracks where a logical request is in the refresh protocol.
type attemptState int

const (
	attemptFresh    attemptState = iota // a token was handed out, not yet reported bad
	attemptRetrying                     // the handed-out token failed and a refresh was forced
)

type attempt struct {
	state attemptState
	trail []string
}

func (at *attempt) note(format string, args ...any) {
	at.trail = append(at.trail, fmt.Sprintf(format, args...))
}

func (at *attempt) credentialError() error {
	return &InvalidCredentialError{Trail: append([]string(nil), at.trail...)}
}

// Authority owns the current token pair and hands out access tokens per logical
// request. Asking twice for the same request id means the first token was rejected:
// the second call forces a refresh, a third call fails with ErrInvalidCredential.
//
// When no usable refresh token remains, the seed refresh token is tried; if the
// seed itself is rejected the chain is exhausted.
type Authority struct {
	seed     SeedCredential
	tokenURL string
	store    Store
	http     *retry.Client
	logger   *slog.Logger
	observer Observer

	mu       sync.Mutex
	current  *TokenPair
	attempts map[uuid.UUID]*attempt
}

// NewAuthority creates an Authority. The seed refresh token may be empty only when
// the configured Store already holds a snapshot. The Store is not read here: with
// neither a seed nor a snapshot, the first AccessToken call fails with
// ErrInvalidCredential, the same error a revoked seed produces.
func NewAuthority(seed SeedCredential, opts ...Option) (*Authority, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	return newAuthority(seed, s)
}

func newAuthority(seed SeedCredential, s *settings) (*Authority, error) {
	if seed.BearerID == "" {
		return nil, fmt.Errorf("%w: bearer ID is required", ErrInvalidArgument)
	}
	return &Authority{
		seed:     seed,
		tokenURL: s.authURL + "token",
		store:    s.store,
		http:     s.retryClient,
		logger:   s.logger,
		observer: s.observer,
		attempts: make(map[uuid.UUID]*attempt),
	}, nil
}

// AccessToken returns an access token for the logical request id. The first call
// for an id reuses the in-memory token, then the persisted snapshot, and only
// refreshes when neither exists. A repeated id forces exactly one refresh.
func (a *Authority) AccessToken(ctx context.Context, id uuid.UUID) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	at, seen := a.attempts[id]
	if !seen {
		at = &attempt{state: attemptFresh}
		a.attempts[id] = at
	}
	at.note("access token requested for request %s", id)

	if seen {
		if at.state == attemptRetrying {
			at.note("refresh was already forced for this request")
			a.logger.LogAttrs(ctx, slog.LevelWarn, "token_exhausted",
				slog.String("request_id", id.String()),
			)
			return "", at.credentialError()
		}

		at.state = attemptRetrying
		at.note("force refresh triggered")
		if err := a.refresh(ctx, at, false); err != nil {
			return "", err
		}
		return a.current.AccessToken, nil
	}

	if a.current != nil {
		at.note("using access token in memory")
		a.logDecision(ctx, id, "memory")
		return a.current.AccessToken, nil
	}

	if pair := a.loadSnapshot(ctx, at); pair != nil {
		at.note("using access token from snapshot")
		a.current = pair
		a.observer.SnapshotLoaded()
		a.logDecision(ctx, id, "snapshot")
		return pair.AccessToken, nil
	}

	if err := a.refresh(ctx, at, false); err != nil {
		return "", err
	}
	a.logDecision(ctx, id, "refresh")
	return a.current.AccessToken, nil
}

// Finish discards the state kept for a logical request once it has completed.
func (a *Authority) Finish(id uuid.UUID) {
	a.mu.Lock()
	delete(a.attempts, id)
	a.mu.Unlock()
}

// Token returns a copy of the current pair, or nil if none has been adopted yet.
func (a *Authority) Token() *TokenPair {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil {
		return nil
	}
	pair := *a.current
	return &pair
}

// refresh exchanges a refresh token for a new pair. useSeed forces the seed
// refresh token; otherwise the in-memory token, then the snapshot, then the seed
// are tried in that order. A rejected non-seed token falls back to the seed once.
func (a *Authority) refresh(ctx context.Context, at *attempt, useSeed bool) error {
	refreshToken := a.chooseRefreshToken(ctx, at, useSeed)
	if refreshToken == "" {
		at.note("no refresh token available")
		return at.credentialError()
	}
	fromSeed := refreshToken == a.seed.SeedRefreshToken

	a.observer.Refreshing(fromSeed)
	pair, snapshot, err := a.exchange(ctx, refreshToken)
	if errors.Is(err, errTokenRejected) {
		a.observer.RefreshRejected(fromSeed)
		a.logger.LogAttrs(ctx, slog.LevelWarn, "refresh_rejected",
			slog.Bool("seed", fromSeed),
		)
		if fromSeed {
			at.note("seed refresh token rejected")
			return at.credentialError()
		}
		at.note("refresh failed, trying again with the seed refresh token")
		return a.refresh(ctx, at, true)
	}
	if err != nil {
		at.note("refresh failed: %v", err)
		return fmt.Errorf("refresh access token: %w", err)
	}

	if err := a.store.Save(ctx, snapshot); err != nil {
		a.observer.SnapshotSaveFailed(err)
		a.logger.LogAttrs(ctx, slog.LevelWarn, "snapshot_save_failed",
			slog.String("error", err.Error()),
		)
	} else {
		a.observer.SnapshotSaved()
	}

	a.current = pair
	at.note("refresh succeeded")
	a.observer.Refreshed()
	return nil
}

func (a *Authority) chooseRefreshToken(ctx context.Context, at *attempt, useSeed bool) string {
	switch {
	case useSeed:
		at.note("using seed refresh token (forced)")
		return a.seed.SeedRefreshToken
	case a.current != nil && a.current.RefreshToken != "":
		at.note("using refresh token in memory")
		return a.current.RefreshToken
	}

	if pair := a.loadSnapshot(ctx, at); pair != nil && pair.RefreshToken != "" {
		at.note("using refresh token from snapshot")
		return pair.RefreshToken
	}

	at.note("using seed refresh token")
	return a.seed.SeedRefreshToken
}

// loadSnapshot returns the persisted pair, or nil when the slot is empty or
// unreadable. A corrupt snapshot only costs a network refresh.
func (a *Authority) loadSnapshot(ctx context.Context, at *attempt) *TokenPair {
	data, err := a.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoSnapshot) {
			at.note("snapshot unreadable: %v", err)
			a.logger.LogAttrs(ctx, slog.LevelWarn, "snapshot_load_failed",
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	pair, err := parseSnapshot(data)
	if err != nil {
		at.note("snapshot corrupt: %v", err)
		a.logger.LogAttrs(ctx, slog.LevelWarn, "snapshot_corrupt",
			slog.String("error", err.Error()),
		)
		return nil
	}
	return pair
}

// exchange performs the refresh_token grant and returns the new pair together
// with the bytes to persist.
func (a *Authority) exchange(
	ctx context.Context,
	refreshToken string,
) (*TokenPair, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, refreshTokenTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		reqCtx,
		http.MethodPost,
		a.tokenURL,
		bytes.NewReader(payload),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "basic "+a.seed.BearerID)

	resp, err := a.http.DoWithContext(reqCtx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	var tokenResp tokenResponse
	jsonErr := json.Unmarshal(body, &tokenResp)
	if jsonErr == nil &&
		(tokenResp.Error == "invalid_token" || tokenResp.Error == "invalid_grant") {
		return nil, nil, errTokenRejected
	}

	if resp.StatusCode != http.StatusOK {
		return nil, nil, &oauth2.RetrieveError{
			Response:         resp,
			Body:             body,
			ErrorCode:        tokenResp.Error,
			ErrorDescription: tokenResp.ErrorDescription,
		}
	}

	if jsonErr != nil {
		return nil, nil, malformed(fmt.Sprintf("token response is not valid JSON: %v", jsonErr), body)
	}
	if tokenResp.AccessToken == "" {
		return nil, nil, malformed("token response has no access_token", body)
	}

	pair := &TokenPair{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
	}

	snapshot := body
	if pair.RefreshToken == "" {
		// Server did not rotate; keep presenting the same refresh token.
		pair.RefreshToken = refreshToken
		snapshot, err = json.Marshal(pair)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode snapshot: %w", err)
		}
	}

	return pair, snapshot, nil
}

func (a *Authority) logDecision(ctx context.Context, id uuid.UUID, source string) {
	a.logger.LogAttrs(ctx, slog.LevelDebug, "token_source",
		slog.String("request_id", id.String()),
		slog.String("source", source),
	)
}

// TokenSource adapts the Authority to oauth2.TokenSource. Every Token call is its
// own logical request, so it reuses the cached token and never forces a refresh.
func (a *Authority) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &authorityTokenSource{ctx: ctx, authority: a}
}

type authorityTokenSource struct {
	ctx       context.Context
	authority *Authority
}

func (s *authorityTokenSource) Token() (*oauth2.Token, error) {
	id := uuid.New()
	defer s.authority.Finish(id)

	access, err := s.authority.AccessToken(s.ctx, id)
	if err != nil {
		return nil, err
	}

	pair := s.authority.Token()
	if pair == nil || pair.AccessToken != access {
		pair = &TokenPair{AccessToken: access}
	}
	return pair.OAuth2(), nil
}
