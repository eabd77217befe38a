package lightwave

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const testBearer = "test-bearer"

// fakeCloud emulates the LinkPlus token service and resource API. Each refresh
// rotates the refresh token and invalidates the previous access token.
type fakeCloud struct {
	t *testing.T

	mu             sync.Mutex
	validRefresh   map[string]bool
	validAccess    string
	issued         int
	refreshCalls   []string
	apiCalls       []string
	apiBodies      []string
	rejectAllCalls bool
	handler        http.HandlerFunc

	auth *httptest.Server
	api  *httptest.Server
}

func newFakeCloud(t *testing.T, validRefreshTokens ...string) *fakeCloud {
	t.Helper()

	c := &fakeCloud{
		t:            t,
		validRefresh: make(map[string]bool),
	}
	for _, rt := range validRefreshTokens {
		c.validRefresh[rt] = true
	}

	c.auth = httptest.NewServer(http.HandlerFunc(c.serveToken))
	c.api = httptest.NewServer(http.HandlerFunc(c.serveAPI))
	t.Cleanup(func() {
		c.auth.Close()
		c.api.Close()
	})
	return c
}

func (c *fakeCloud) serveToken(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/token" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	if r.Header.Get("Authorization") != "basic "+testBearer {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_client"})
		return
	}

	var body struct {
		GrantType    string `json:"grant_type"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.GrantType != "refresh_token" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_request"})
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.refreshCalls = append(c.refreshCalls, body.RefreshToken)
	if !c.validRefresh[body.RefreshToken] {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_token"})
		return
	}

	c.issued++
	delete(c.validRefresh, body.RefreshToken)
	access := fmt.Sprintf("access-%d", c.issued)
	refresh := fmt.Sprintf("refresh-%d", c.issued)
	c.validRefresh[refresh] = true
	c.validAccess = access

	json.NewEncoder(w).Encode(map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "bearer",
		"expires_in":    3600,
	})
}

func (c *fakeCloud) serveAPI(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	data, _ := io.ReadAll(r.Body)

	c.mu.Lock()
	c.apiCalls = append(c.apiCalls, r.Method+" "+path)
	c.apiBodies = append(c.apiBodies, string(data))
	authorized := !c.rejectAllCalls && c.validAccess != "" &&
		r.Header.Get("Authorization") == "bearer "+c.validAccess
	handler := c.handler
	c.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !authorized {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "Unauthorized"})
		return
	}

	if handler == nil {
		w.Write([]byte(`{}`))
		return
	}
	r.URL.Path = "/" + path
	r.Body = io.NopCloser(bytes.NewReader(data))
	handler(w, r)
}

func (c *fakeCloud) setHandler(h http.HandlerFunc) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// acceptAccessToken makes the API accept token without a refresh, as if it had
// been issued in an earlier run.
func (c *fakeCloud) acceptAccessToken(token string) {
	c.mu.Lock()
	c.validAccess = token
	c.mu.Unlock()
}

func (c *fakeCloud) rejectEverything() {
	c.mu.Lock()
	c.rejectAllCalls = true
	c.mu.Unlock()
}

func (c *fakeCloud) refreshes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.refreshCalls...)
}

func (c *fakeCloud) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.apiCalls...)
}

func (c *fakeCloud) lastBody() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.apiBodies) == 0 {
		return ""
	}
	return c.apiBodies[len(c.apiBodies)-1]
}

func (c *fakeCloud) options(store Store) []Option {
	return []Option{
		WithAuthURL(c.auth.URL),
		WithBaseURL(c.api.URL + "/v1/"),
		WithStore(store),
	}
}

func (c *fakeCloud) newAuthority(t *testing.T, seed string, store Store) *Authority {
	t.Helper()
	a, err := NewAuthority(SeedCredential{BearerID: testBearer, SeedRefreshToken: seed}, c.options(store)...)
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}
	return a
}

func (c *fakeCloud) newClient(t *testing.T, seed string, store Store) *Client {
	t.Helper()
	client, err := NewClient(SeedCredential{BearerID: testBearer, SeedRefreshToken: seed}, c.options(store)...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func snapshotStore(t *testing.T, access, refresh string) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	data, err := json.Marshal(map[string]string{"access_token": access, "refresh_token": refresh})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(t.Context(), data); err != nil {
		t.Fatal(err)
	}
	return store
}
