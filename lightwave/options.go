package lightwave

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	retry "github.com/appleboy/go-httpretry"
)

const (
	// DefaultBaseURL is the LinkPlus public API base URL.
	DefaultBaseURL = "https://publicapi.lightwaverf.com/v1/"

	// DefaultAuthURL is the LinkPlus token service; the token endpoint is AuthURL+"token".
	DefaultAuthURL = "https://auth.lightwaverf.com/"

	// DefaultTimeout is the HTTP client timeout used when no client is supplied.
	DefaultTimeout = 30 * time.Second
)

// Timeouts applied per operation on top of the caller's context.
const (
	refreshTokenTimeout = 10 * time.Second
	apiRequestTimeout   = 15 * time.Second
)

// Option configures an Authority or a Client.
type Option func(*settings)

type settings struct {
	baseURL     string
	authURL     string
	httpClient  *http.Client
	retryClient *retry.Client
	store       Store
	logger      *slog.Logger
	observer    Observer
}

func defaultSettings() *settings {
	return &settings{
		baseURL:  DefaultBaseURL,
		authURL:  DefaultAuthURL,
		logger:   slog.New(slog.DiscardHandler),
		observer: NopObserver{},
	}
}

// WithBaseURL sets the resource API base URL.
func WithBaseURL(u string) Option {
	return func(s *settings) {
		s.baseURL = u
	}
}

// WithAuthURL sets the token service URL.
func WithAuthURL(u string) Option {
	return func(s *settings) {
		s.authURL = u
	}
}

// WithHTTPClient sets the HTTP client wrapped by the retry client.
// Ignored when WithRetryClient is also given.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) {
		s.httpClient = client
	}
}

// WithRetryClient sets a fully configured go-httpretry client.
func WithRetryClient(client *retry.Client) Option {
	return func(s *settings) {
		s.retryClient = client
	}
}

// WithStore sets where token snapshots are persisted. Defaults to a MemoryStore.
func WithStore(store Store) Option {
	return func(s *settings) {
		s.store = store
	}
}

// WithLogger configures structured logging of token decisions and API calls.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver registers an Observer for token lifecycle events.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		if o != nil {
			s.observer = o
		}
	}
}

func newSettings(opts []Option) (*settings, error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(s)
	}

	if err := ValidateServerURL(s.baseURL); err != nil {
		return nil, fmt.Errorf("%w: base URL: %v", ErrInvalidArgument, err)
	}
	if err := ValidateServerURL(s.authURL); err != nil {
		return nil, fmt.Errorf("%w: auth URL: %v", ErrInvalidArgument, err)
	}
	s.baseURL = withTrailingSlash(s.baseURL)
	s.authURL = withTrailingSlash(s.authURL)

	if s.store == nil {
		s.store = NewMemoryStore()
	}

	if s.retryClient == nil {
		httpClient := s.httpClient
		if httpClient == nil {
			httpClient = defaultHTTPClient()
		}
		rc, err := retry.NewClient(retry.WithHTTPClient(httpClient))
		if err != nil {
			return nil, fmt.Errorf("failed to create retry client: %w", err)
		}
		s.retryClient = rc
	}

	return s, nil
}

func defaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// ValidateServerURL checks that rawURL is an absolute http or https URL.
func ValidateServerURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("server URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}

func withTrailingSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
