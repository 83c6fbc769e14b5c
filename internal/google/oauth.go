package google

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/sarahdorsten/newsletter-digest/internal/logging"
)

var (
	// ErrNoCredentials is returned when the OAuth client credentials file is missing.
	ErrNoCredentials = errors.New("missing Gmail OAuth client credentials")

	// ErrReauthRequired is returned when no usable token is cached and the
	// user has to run the interactive login again.
	ErrReauthRequired = errors.New("gmail authorization required, run `newsletter-digest auth`")
)

// loginTimeout bounds how long Login waits for the browser redirect.
const loginTimeout = 5 * time.Minute

// LoadOAuthConfig reads a desktop-client credentials file and returns the
// OAuth2 configuration for the Gmail scopes.
func LoadOAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found (download the OAuth desktop client JSON from the Google Cloud console)", ErrNoCredentials, credentialsFile)
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	conf, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials file %s: %w", credentialsFile, err)
	}
	return conf, nil
}

// TokenCache stores an OAuth token as JSON on disk.
type TokenCache struct {
	path string
}

// NewTokenCache creates a cache backed by the file at path.
func NewTokenCache(path string) *TokenCache {
	return &TokenCache{path: path}
}

// Path returns the cache file location.
func (c *TokenCache) Path() string {
	return c.path
}

// Exists reports whether a cache file is present.
func (c *TokenCache) Exists() bool {
	_, err := os.Stat(c.path)
	return err == nil
}

// Load reads the cached token. A missing cache returns ErrReauthRequired.
// A corrupt or empty cache is deleted and also returns ErrReauthRequired.
func (c *TokenCache) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrReauthRequired
		}
		return nil, fmt.Errorf("failed to read token cache: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil || (tok.AccessToken == "" && tok.RefreshToken == "") {
		slog.Warn("discarding unreadable token cache", "path", c.path, logging.Err(err))
		if delErr := c.Delete(); delErr != nil {
			return nil, errors.Join(ErrReauthRequired, delErr)
		}
		return nil, ErrReauthRequired
	}
	return &tok, nil
}

// Save writes tok to the cache with owner-only permissions.
func (c *TokenCache) Save(tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// Delete removes the cache file. A missing file is not an error.
func (c *TokenCache) Delete() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete token cache: %w", err)
	}
	return nil
}

// HTTPClient returns an HTTP client authorized with the cached token.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors.
func HTTPClient(ctx context.Context, conf *oauth2.Config, cache *TokenCache, opts ...TokenSourceOption) (*http.Client, error) {
	ts, err := NewTokenSource(ctx, conf, cache, opts...)
	if err != nil {
		return nil, err
	}

	client := oauth2.NewClient(ctx, ts)

	// Force HTTP/1.1 by disabling HTTP/2
	if transport, ok := client.Transport.(*oauth2.Transport); ok {
		transport.Base = &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			ForceAttemptHTTP2: false,
		}
	}

	return client, nil
}

// Login runs the installed-app authorization flow: it listens on a loopback
// port, hands the consent URL to openURL, waits for the redirect, exchanges
// the code and caches the resulting token.
func Login(ctx context.Context, conf *oauth2.Config, cache *TokenCache, openURL func(string) error) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to open loopback listener: %w", err)
	}

	c := *conf
	c.RedirectURL = "http://" + ln.Addr().String() + "/"

	state, err := randomState()
	if err != nil {
		ln.Close()
		return nil, err
	}

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if e := q.Get("error"); e != "" {
				select {
				case errCh <- fmt.Errorf("authorization denied: %s", e):
				default:
				}
				fmt.Fprintln(w, "Authorization failed. You can close this window.")
				return
			}
			if q.Get("state") != state {
				http.Error(w, "state mismatch", http.StatusBadRequest)
				return
			}
			code := q.Get("code")
			if code == "" {
				http.Error(w, "missing code", http.StatusBadRequest)
				return
			}
			fmt.Fprintln(w, "Gmail authorization complete. You can close this window.")
			select {
			case codeCh <- code:
			default:
			}
		}),
	}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := c.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
	if err := openURL(authURL); err != nil {
		return nil, fmt.Errorf("failed to open authorization URL: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-waitCtx.Done():
		return nil, fmt.Errorf("timed out waiting for authorization: %w", waitCtx.Err())
	}

	tok, err := c.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	if err := cache.Save(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// OpenBrowser opens url in the user's default browser.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
