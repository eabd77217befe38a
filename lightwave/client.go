package lightwave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/google/uuid"
)

// Client is a LinkPlus API client. Every call obtains its access token from the
// Client's Authority and is retried once with a refreshed token on an
// authorization failure.
//
// A Client serializes token refreshes but is intended for one logical caller;
// several processes sharing one snapshot file are not coordinated beyond the file lock.
type Client struct {
	baseURL  string
	auth     *Authority
	http     *retry.Client
	logger   *slog.Logger
	observer Observer
}

// NewClient creates a client for the given credential.
//
//	client, err := lightwave.NewClient(
//		lightwave.SeedCredential{BearerID: bearer, SeedRefreshToken: refresh},
//		lightwave.WithStore(lightwave.NewFileStore(path)),
//	)
func NewClient(seed SeedCredential, opts ...Option) (*Client, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}

	auth, err := newAuthority(seed, s)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:  s.baseURL,
		auth:     auth,
		http:     s.retryClient,
		logger:   s.logger,
		observer: s.observer,
	}, nil
}

// Authority returns the token authority used by the client.
func (c *Client) Authority() *Authority {
	return c.auth
}

// Execute performs one logical API call against path (relative to the base URL).
// body is JSON encoded and required for POST; GET must not carry one. The decoded
// response is returned raw.
func (c *Client) Execute(ctx context.Context, path, method string, body any) (json.RawMessage, error) {
	switch method {
	case http.MethodGet:
		if body != nil {
			return nil, fmt.Errorf("%w: GET %s cannot carry a body", ErrInvalidArgument, path)
		}
	case http.MethodPost:
		if body == nil {
			return nil, fmt.Errorf("%w: POST %s requires a body", ErrInvalidArgument, path)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported method %q", ErrInvalidArgument, method)
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to marshal request body: %v", ErrInvalidArgument, err)
		}
	}

	id := uuid.New()
	defer c.auth.Finish(id)

	return c.execute(ctx, id, path, method, payload, false)
}

// execute issues the call with a token for id. On an authorization failure it
// recurses once with the same id, which makes the Authority force a refresh.
func (c *Client) execute(
	ctx context.Context,
	id uuid.UUID,
	path, method string,
	payload []byte,
	retried bool,
) (json.RawMessage, error) {
	token, err := c.auth.AccessToken(ctx, id)
	if err != nil {
		return nil, err
	}

	status, respBody, err := c.do(ctx, path, method, payload, token)
	if err != nil {
		return nil, err
	}

	if status >= 200 && status < 300 {
		if len(bytes.TrimSpace(respBody)) == 0 {
			return json.RawMessage("null"), nil
		}
		if !json.Valid(respBody) {
			return nil, malformed("response is not valid JSON", respBody)
		}
		return json.RawMessage(respBody), nil
	}

	if isAuthFailure(status, respBody) {
		if retried {
			return nil, fmt.Errorf("%w: %s %s returned %d", ErrAuthExhausted, method, path, status)
		}
		c.observer.AccessTokenRejected()
		c.logger.LogAttrs(ctx, slog.LevelInfo, "access_token_rejected",
			slog.String("request_id", id.String()),
			slog.String("path", path),
		)
		return c.execute(ctx, id, path, method, payload, true)
	}

	return nil, &RequestFailedError{StatusCode: status, Body: strings.TrimSpace(string(respBody))}
}

func (c *Client) do(
	ctx context.Context,
	path, method string,
	payload []byte,
	token string,
) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, apiRequestTimeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logRequest(ctx, method, path)
	start := time.Now()

	resp, err := c.http.DoWithContext(reqCtx, req)
	if err != nil {
		c.logResponse(ctx, method, path, 0, time.Since(start), err)
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logResponse(ctx, method, path, resp.StatusCode, time.Since(start), nil)
	return resp.StatusCode, respBody, nil
}

// isAuthFailure reports whether a non-success response means the access token
// was not accepted.
func isAuthFailure(status int, body []byte) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	var msg struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return false
	}
	return strings.EqualFold(msg.Message, "Unauthorized")
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Execute(ctx, path, http.MethodGet, nil)
}

func (c *Client) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Execute(ctx, path, http.MethodPost, body)
}
