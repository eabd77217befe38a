package lightwave

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestAccessToken_ColdStartUsesSeed(t *testing.T) {
	cloud := newFakeCloud(t, "seed-1")
	store := NewMemoryStore()
	a := cloud.newAuthority(t, "seed-1", store)

	token, err := a.AccessToken(t.Context(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
	assert.Equal(t, []string{"seed-1"}, cloud.refreshes())

	saved, err := store.Load(t.Context())
	require.NoError(t, err)
	var snapshot map[string]any
	require.NoError(t, json.Unmarshal(saved, &snapshot))
	assert.Equal(t, "access-1", snapshot["access_token"])
	assert.Equal(t, "refresh-1", snapshot["refresh_token"])
	// the raw token response is persisted as-is
	assert.Equal(t, "bearer", snapshot["token_type"])
}

func TestAccessToken_FreshIDReusesMemoryToken(t *testing.T) {
	cloud := newFakeCloud(t, "seed-1")
	a := cloud.newAuthority(t, "seed-1", NewMemoryStore())

	first, err := a.AccessToken(t.Context(), uuid.New())
	require.NoError(t, err)
	second, err := a.AccessToken(t.Context(), uuid.New())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, cloud.refreshes(), 1)
}

func TestAccessToken_FreshIDTrustsSnapshot(t *testing.T) {
	cloud := newFakeCloud(t, "seed-1")
	a := cloud.newAuthority(t, "seed-1", snapshotStore(t, "persisted-access", "persisted-refresh"))

	token, err := a.AccessToken(t.Context(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "persisted-access", token)
	assert.Empty(t, cloud.refreshes())
}

func TestAccessToken_RepeatedIDForcesOneRefresh(t *testing.T) {
	cloud := newFakeCloud(t, "persisted-refresh")
	a := cloud.newAuthority(t, "seed-1", snapshotStore(t, "persisted-access", "persisted-refresh"))
	id := uuid.New()

	first, err := a.AccessToken(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, "persisted-access", first)

	second, err := a.AccessToken(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, "access-1", second)
	assert.Equal(t, []string{"persisted-refresh"}, cloud.refreshes())
}

func TestAccessToken_ThirdCallForSameIDFails(t *testing.T) {
	cloud := newFakeCloud(t, "seed-1")
	a := cloud.newAuthority(t, "seed-1", NewMemoryStore())
	id := uuid.New()

	_, err := a.AccessToken(t.Context(), id)
	require.NoError(t, err)
	_, err = a.AccessToken(t.Context(), id)
	require.NoError(t, err)
	refreshesBefore := len(cloud.refreshes())

	_, err = a.AccessToken(t.Context(), id)
	require.Error(t, err)
	assert.True(t, IsInvalidCredential(err))

	var credErr *InvalidCredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Contains(t, credErr.Trail, "force refresh triggered")
	assert.Len(t, cloud.refreshes(), refreshesBefore)
}

func TestAccessToken_FinishResetsAttempt(t *testing.T) {
	cloud := newFakeCloud(t, "seed-1")
	a := cloud.newAuthority(t, "seed-1", NewMemoryStore())
	id := uuid.New()

	_, err := a.AccessToken(t.Context(), id)
	require.NoError(t, err)
	a.Finish(id)

	_, err = a.AccessToken(t.Context(), id)
	require.NoError(t, err)
	assert.Len(t, cloud.refreshes(), 1, "a finished id must not be treated as a retry")
}

func TestRefresh_RejectedRotatedTokenFallsBackToSeed(t *testing.T) {
	cloud := newFakeCloud(t, "seed-1")
	store := snapshotStore(t, "stale-access", "stale-refresh")
	a := cloud.newAuthority(t, "seed-1", store)
	id := uuid.New()

	_, err := a.AccessToken(t.Context(), id)
	require.NoError(t, err)

	token, err := a.AccessToken(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
	assert.Equal(t, []string{"stale-refresh", "seed-1"}, cloud.refreshes())
	assert.Equal(t, "refresh-1", a.Token().RefreshToken)
}

func TestRefresh_RejectedSeedIsTerminal(t *testing.T) {
	cloud := newFakeCloud(t)
	store := snapshotStore(t, "stale-access", "stale-refresh")
	a := cloud.newAuthority(t, "seed-1", store)
	savesBefore := store.Saves()
	id := uuid.New()

	_, err := a.AccessToken(t.Context(), id)
	require.NoError(t, err)

	_, err = a.AccessToken(t.Context(), id)
	require.Error(t, err)
	assert.True(t, IsInvalidCredential(err))
	assert.Equal(t, []string{"stale-refresh", "seed-1"}, cloud.refreshes())
	assert.Equal(t, savesBefore, store.Saves(), "failed refreshes must not touch the snapshot")
}

func TestRefresh_ColdStartWithRejectedSeed(t *testing.T) {
	cloud := newFakeCloud(t)
	a := cloud.newAuthority(t, "seed-1", NewMemoryStore())

	_, err := a.AccessToken(t.Context(), uuid.New())
	require.Error(t, err)
	assert.True(t, IsInvalidCredential(err))
	assert.Equal(t, []string{"seed-1"}, cloud.refreshes())
}

func TestRefresh_NoSeedAndNoSnapshot(t *testing.T) {
	cloud := newFakeCloud(t)
	a, err := NewAuthority(SeedCredential{BearerID: testBearer}, cloud.options(NewMemoryStore())...)
	require.NoError(t, err, "construction does not read the store")

	_, err = a.AccessToken(t.Context(), uuid.New())
	require.Error(t, err)
	assert.True(t, IsInvalidCredential(err))
	assert.Empty(t, cloud.refreshes())
}

func TestRefresh_CorruptSnapshotForcesNetworkRefresh(t *testing.T) {
	cloud := newFakeCloud(t, "seed-1")
	path := filepath.Join(t.TempDir(), "auth_response.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"access_tok`), 0o600))

	a := cloud.newAuthority(t, "seed-1", NewFileStore(path))

	token, err := a.AccessToken(t.Context(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
	assert.Equal(t, []string{"seed-1"}, cloud.refreshes())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "access-1")
}

func TestSnapshot_RoundTripAcrossInstances(t *testing.T) {
	cloud := newFakeCloud(t, "seed-1")
	path := filepath.Join(t.TempDir(), "linkplus", "auth_response.json")

	first := cloud.newAuthority(t, "seed-1", NewFileStore(path))
	token, err := first.AccessToken(t.Context(), uuid.New())
	require.NoError(t, err)

	second := cloud.newAuthority(t, "", NewFileStore(path))
	reloaded, err := second.AccessToken(t.Context(), uuid.New())
	require.NoError(t, err)

	assert.Equal(t, token, reloaded)
	assert.Len(t, cloud.refreshes(), 1, "reloading a snapshot must not hit the network")
}

func TestSnapshot_RotatedRefreshTokenSurvivesRestart(t *testing.T) {
	cloud := newFakeCloud(t, "seed-1")
	path := filepath.Join(t.TempDir(), "auth_response.json")

	first := cloud.newAuthority(t, "seed-1", NewFileStore(path))
	_, err := first.AccessToken(t.Context(), uuid.New())
	require.NoError(t, err)

	// The seed has been consumed; only the persisted refresh token is still valid.
	second := cloud.newAuthority(t, "seed-1", NewFileStore(path))
	id := uuid.New()
	_, err = second.AccessToken(t.Context(), id)
	require.NoError(t, err)
	token, err := second.AccessToken(t.Context(), id)
	require.NoError(t, err)

	assert.Equal(t, "access-2", token)
	assert.Equal(t, []string{"seed-1", "refresh-1"}, cloud.refreshes())
}

func TestRefresh_TokenEndpointErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "unauthorized_client",
			"error_description": "bearer revoked",
		})
	}))
	defer server.Close()

	a, err := NewAuthority(
		SeedCredential{BearerID: testBearer, SeedRefreshToken: "seed-1"},
		WithAuthURL(server.URL),
	)
	require.NoError(t, err)

	_, err = a.AccessToken(t.Context(), uuid.New())
	require.Error(t, err)
	assert.False(t, IsInvalidCredential(err))

	var retrieveErr *oauth2.RetrieveError
	require.True(t, errors.As(err, &retrieveErr))
	assert.Equal(t, "unauthorized_client", retrieveErr.ErrorCode)
	assert.Nil(t, a.Token())
}

func TestRefresh_ResponseWithoutAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"refresh_token":"only-refresh"}`))
	}))
	defer server.Close()

	store := NewMemoryStore()
	a, err := NewAuthority(
		SeedCredential{BearerID: testBearer, SeedRefreshToken: "seed-1"},
		WithAuthURL(server.URL),
		WithStore(store),
	)
	require.NoError(t, err)

	_, err = a.AccessToken(t.Context(), uuid.New())
	require.ErrorIs(t, err, ErrMalformedResponse)
	assert.Zero(t, store.Saves())
}

func TestRefresh_FixedRefreshTokenIsKept(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"fixed-access"}`))
	}))
	defer server.Close()

	store := NewMemoryStore()
	a, err := NewAuthority(
		SeedCredential{BearerID: testBearer, SeedRefreshToken: "seed-1"},
		WithAuthURL(server.URL),
		WithStore(store),
	)
	require.NoError(t, err)

	_, err = a.AccessToken(t.Context(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "seed-1", a.Token().RefreshToken)

	saved, err := store.Load(t.Context())
	require.NoError(t, err)
	pair, err := parseSnapshot(saved)
	require.NoError(t, err)
	assert.Equal(t, "seed-1", pair.RefreshToken)
}

type recordingObserver struct {
	NopObserver
	events []string
}

func (r *recordingObserver) SnapshotLoaded() { r.events = append(r.events, "loaded") }
func (r *recordingObserver) Refreshing(fromSeed bool) {
	if fromSeed {
		r.events = append(r.events, "refreshing(seed)")
		return
	}
	r.events = append(r.events, "refreshing")
}
func (r *recordingObserver) Refreshed()     { r.events = append(r.events, "refreshed") }
func (r *recordingObserver) SnapshotSaved() { r.events = append(r.events, "saved") }
func (r *recordingObserver) RefreshRejected(_ bool) {
	r.events = append(r.events, "rejected")
}

func TestAuthority_ObserverEvents(t *testing.T) {
	cloud := newFakeCloud(t, "seed-1")
	obs := &recordingObserver{}
	opts := append(
		cloud.options(snapshotStore(t, "stale-access", "stale-refresh")),
		WithObserver(obs),
	)
	a, err := NewAuthority(SeedCredential{BearerID: testBearer, SeedRefreshToken: "seed-1"}, opts...)
	require.NoError(t, err)
	id := uuid.New()

	_, err = a.AccessToken(t.Context(), id)
	require.NoError(t, err)
	_, err = a.AccessToken(t.Context(), id)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"loaded",
		"refreshing",
		"rejected",
		"refreshing(seed)",
		"saved",
		"refreshed",
	}, obs.events)
}

func TestAuthority_TokenSource(t *testing.T) {
	cloud := newFakeCloud(t, "seed-1")
	a := cloud.newAuthority(t, "seed-1", NewMemoryStore())

	ts := a.TokenSource(t.Context())
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Equal(t, "refresh-1", tok.RefreshToken)
	assert.Equal(t, "Bearer", tok.Type())

	again, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, tok.AccessToken, again.AccessToken)
	assert.Len(t, cloud.refreshes(), 1)
}

func TestNewAuthority_RequiresBearer(t *testing.T) {
	_, err := NewAuthority(SeedCredential{SeedRefreshToken: "seed-1"})
	require.ErrorIs(t, err, ErrInvalidArgument)
}
