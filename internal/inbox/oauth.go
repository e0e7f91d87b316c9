package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Veraticus/billflow/internal/common"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const authTimeout = 5 * time.Minute

// callbackAddr is where the consent redirect lands. It must match a
// redirect URI allowed for the OAuth client.
var callbackAddr = "localhost:8089"

// OAuthConfig holds the Google client credentials and token location.
// Endpoint defaults to Google's.
type OAuthConfig struct {
	Endpoint     oauth2.Endpoint
	ClientID     string
	ClientSecret string
	TokenFile    string
}

func (c OAuthConfig) oauth2Config(redirectURL string) *oauth2.Config {
	endpoint := c.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  redirectURL,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}
}

func (c OAuthConfig) validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("%w: gmail.client_id and gmail.client_secret are required", common.ErrMissingConfig)
	}
	if c.TokenFile == "" {
		return fmt.Errorf("%w: gmail.token_file is required", common.ErrMissingConfig)
	}
	return nil
}

// Authorize runs the browser consent flow and stores the resulting token.
// The authorization URL is passed to announce so the caller decides how to
// show it.
func Authorize(ctx context.Context, cfg OAuthConfig, announce func(url string)) (*oauth2.Token, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", callbackAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback listener: %w", err)
	}
	oc := cfg.oauth2Config(redirectURL(listener.Addr()))

	codes := make(chan string, 1)
	errs := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			select {
			case errs <- errors.New("no authorization code received"):
			default:
			}
			http.Error(w, "authorization failed, no code received", http.StatusBadRequest)
			return
		}
		select {
		case codes <- code:
		default:
		}
		_, _ = fmt.Fprintln(w, "billflow is authorized. You can close this window.")
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			select {
			case errs <- fmt.Errorf("callback server failed: %w", serveErr):
			default:
			}
		}
	}()
	defer func() {
		if shutdownErr := server.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			slog.Warn("failed to stop callback server", "error", shutdownErr)
		}
	}()

	announce(oc.AuthCodeURL("billflow", oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	var code string
	select {
	case code = <-codes:
	case err := <-errs:
		return nil, err
	case <-time.After(authTimeout):
		return nil, fmt.Errorf("no authorization received within %s", authTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token, err := oc.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if err := SaveToken(cfg.TokenFile, token); err != nil {
		return nil, err
	}
	return token, nil
}

// redirectURL keeps the configured host name and takes the port actually
// bound, which differs from callbackAddr only when it asked for port 0.
func redirectURL(addr net.Addr) string {
	host, _, err := net.SplitHostPort(callbackAddr)
	if err != nil || host == "" {
		host = "localhost"
	}
	_, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "http://" + callbackAddr + "/callback"
	}
	return "http://" + net.JoinHostPort(host, port) + "/callback"
}

// LoadToken reads a token previously written by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Warn("failed to close token file", "error", closeErr)
		}
	}()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return token, nil
}

// SaveToken writes token to path with owner-only permissions.
func SaveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(token); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return f.Close()
}

// NewGmailService builds a Gmail client from the stored token. Refreshed
// tokens are written back so the next run starts from them.
func NewGmailService(ctx context.Context, cfg OAuthConfig) (*gmail.Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	token, err := LoadToken(cfg.TokenFile)
	if err != nil {
		return nil, common.NewUserError("gmail is not authorized, run `billflow gmail auth` first", err)
	}

	ts := cfg.oauth2Config("").TokenSource(ctx, token)
	fresh, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh gmail token: %w", err)
	}
	if fresh.AccessToken != token.AccessToken {
		if err := SaveToken(cfg.TokenFile, fresh); err != nil {
			slog.Warn("failed to save refreshed token", "error", err)
		}
	}

	svc, err := gmail.NewService(ctx, option.WithTokenSource(oauth2.ReuseTokenSource(fresh, ts)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return svc, nil
}
