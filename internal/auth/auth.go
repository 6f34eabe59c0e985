// Package auth loads the Google OAuth client, caches its token on disk and
// runs the first-time authorisation flow.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gsheet "google.golang.org/api/sheets/v4"

	"affsync/internal/log"
)

// ErrNoToken is returned when no cached token exists yet.
var ErrNoToken = errors.New("no cached OAuth token, run 'affsync authorise' first")

// Scope is the access requested for the spreadsheet.
const Scope = gsheet.SpreadsheetsScope

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Config reads an installed-app client secret file.
func Config(clientSecretPath string, scopes ...string) (*oauth2.Config, error) {
	if len(scopes) == 0 {
		scopes = []string{Scope}
	}
	b, err := os.ReadFile(ExpandHome(clientSecretPath))
	if err != nil {
		return nil, fmt.Errorf("read client secret: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse client secret: %w", err)
	}
	return cfg, nil
}

// LoadToken reads a cached token. A missing file is ErrNoToken.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(ExpandHome(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("open token: %w", err)
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	return tok, nil
}

// SaveToken writes tok to path with owner-only permissions, creating the
// parent directory.
func SaveToken(path string, tok *oauth2.Token) error {
	path = ExpandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return fmt.Errorf("write token: %w", err)
	}
	return f.Close()
}

// persistingSource writes every newly issued token back to the cache.
type persistingSource struct {
	mu     sync.Mutex
	src    oauth2.TokenSource
	path   string
	last   string
	logger *log.Logger
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		if err := SaveToken(p.path, tok); err != nil {
			p.logger.Warn("Failed to persist refreshed token", log.FieldError, err)
		} else {
			p.logger.Debug("Persisted refreshed token", "expiry", tok.Expiry)
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}

// TokenSource returns a source seeded from the token cache at path that
// refreshes through cfg and persists each refreshed token.
func TokenSource(ctx context.Context, cfg *oauth2.Config, path string, logger *log.Logger) (oauth2.TokenSource, error) {
	if logger == nil {
		logger = log.Discard()
	}
	tok, err := LoadToken(path)
	if err != nil {
		return nil, err
	}

	p := &persistingSource{
		src:    cfg.TokenSource(ctx, tok),
		path:   path,
		last:   tok.AccessToken,
		logger: logger.WithComponent(log.ComponentAuth),
	}
	return oauth2.ReuseTokenSource(tok, p), nil
}

// Authorise runs the browser consent flow. It prints the consent URL to out,
// waits for the redirect on localhost:port and caches the resulting token.
func Authorise(ctx context.Context, cfg *oauth2.Config, port, tokenPath string, out func(string)) (*oauth2.Token, error) {
	if port == "" {
		port = "8085"
	}
	ln, err := net.Listen("tcp", "localhost:"+port)
	if err != nil {
		return nil, fmt.Errorf("listen for redirect: %w", err)
	}

	c := *cfg
	c.RedirectURL = "http://localhost:" + port + "/callback"

	code, err := awaitCode(ctx, ln, &c, out)
	if err != nil {
		return nil, err
	}

	tok, err := c.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	if err := SaveToken(tokenPath, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

type callback struct {
	code string
	err  error
}

func awaitCode(ctx context.Context, ln net.Listener, cfg *oauth2.Config, out func(string)) (string, error) {
	state := fmt.Sprintf("affsync-%d", time.Now().UnixNano())
	results := make(chan callback, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callback
		switch {
		case q.Get("error") != "":
			res.err = fmt.Errorf("authorisation denied: %s", q.Get("error"))
			http.Error(w, "OAuth error: "+q.Get("error"), http.StatusBadRequest)
		case q.Get("state") != state:
			res.err = errors.New("authorisation state mismatch")
			http.Error(w, "state mismatch", http.StatusBadRequest)
		default:
			res.code = q.Get("code")
			fmt.Fprintln(w, "You may close this window and return to the terminal.")
		}
		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	if out != nil {
		out(cfg.AuthCodeURL(state, oauth2.AccessTypeOffline))
	}

	select {
	case res := <-results:
		return res.code, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("authorisation: %w", ctx.Err())
	}
}
