package auth

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"affsync/internal/log"
)

const clientSecret = `{"installed":{
	"client_id":"id.apps.googleusercontent.com",
	"client_secret":"shh",
	"auth_uri":"https://accounts.google.com/o/oauth2/auth",
	"token_uri":"https://oauth2.googleapis.com/token",
	"redirect_uris":["http://localhost"]
}}`

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".credentials", "token.json"), ExpandHome("~/.credentials/token.json"))
	assert.Equal(t, home, ExpandHome("~"))
	assert.Equal(t, "/etc/token.json", ExpandHome("/etc/token.json"))
	assert.Equal(t, "~other/x", ExpandHome("~other/x"))
}

func TestConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client_secret.json")
	require.NoError(t, os.WriteFile(path, []byte(clientSecret), 0o600))

	cfg, err := Config(path)
	require.NoError(t, err)
	assert.Equal(t, "id.apps.googleusercontent.com", cfg.ClientID)
	assert.Equal(t, []string{Scope}, cfg.Scopes)
}

func TestConfigErrors(t *testing.T) {
	_, err := Config(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))
	_, err = Config(path)
	assert.Error(t, err)
}

func TestTokenCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	tok := &oauth2.Token{AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour).Round(time.Second)}

	require.NoError(t, SaveToken(path, tok))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "at", got.AccessToken)
	assert.Equal(t, "rt", got.RefreshToken)
	assert.True(t, tok.Expiry.Equal(got.Expiry))
}

func TestLoadTokenMissing(t *testing.T) {
	_, err := LoadToken(filepath.Join(t.TempDir(), "token.json"))
	assert.ErrorIs(t, err, ErrNoToken)
}

type sequenceSource struct {
	tokens []*oauth2.Token
	n      int
}

func (s *sequenceSource) Token() (*oauth2.Token, error) {
	if s.n >= len(s.tokens) {
		return nil, errors.New("exhausted")
	}
	tok := s.tokens[s.n]
	s.n++
	return tok, nil
}

func TestPersistingSourceSavesRefreshedTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	src := &sequenceSource{tokens: []*oauth2.Token{
		{AccessToken: "old"},
		{AccessToken: "new", RefreshToken: "rt"},
	}}
	p := &persistingSource{src: src, path: path, last: "old", logger: log.Discard()}

	tok, err := p.Token()
	require.NoError(t, err)
	assert.Equal(t, "old", tok.AccessToken)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "unchanged token must not be written")

	tok, err = p.Token()
	require.NoError(t, err)
	assert.Equal(t, "new", tok.AccessToken)

	cached, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "new", cached.AccessToken)
}

func TestTokenSourceRefreshPersists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"fresh","token_type":"Bearer","refresh_token":"rt","expires_in":3600}`)
	}))
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, SaveToken(path, &oauth2.Token{AccessToken: "stale", RefreshToken: "rt", Expiry: time.Now().Add(-time.Hour)}))

	cfg := &oauth2.Config{ClientID: "id", ClientSecret: "shh", Endpoint: oauth2.Endpoint{TokenURL: srv.URL}}
	ts, err := TokenSource(context.Background(), cfg, path, nil)
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)

	cached, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh", cached.AccessToken)
}

func TestTokenSourceWithoutCache(t *testing.T) {
	_, err := TokenSource(context.Background(), &oauth2.Config{}, filepath.Join(t.TempDir(), "token.json"), nil)
	assert.ErrorIs(t, err, ErrNoToken)
}

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return strconv.Itoa(port)
}

func TestAuthorise(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"at","token_type":"Bearer","refresh_token":"rt","expires_in":3600}`)
	}))
	t.Cleanup(tokenSrv.Close)

	cfg := &oauth2.Config{
		ClientID: "id",
		Endpoint: oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: tokenSrv.URL},
	}
	path := filepath.Join(t.TempDir(), "token.json")
	port := freePort(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tok, err := Authorise(ctx, cfg, port, path, func(consent string) {
		u, err := url.Parse(consent)
		if err != nil {
			t.Errorf("consent URL: %v", err)
			return
		}
		assert.Equal(t, "http://localhost:"+port+"/callback", u.Query().Get("redirect_uri"))
		go func() {
			resp, err := http.Get(u.Query().Get("redirect_uri") + "?code=the-code&state=" + url.QueryEscape(u.Query().Get("state")))
			if err == nil {
				resp.Body.Close()
			}
		}()
	})
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)

	cached, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "rt", cached.RefreshToken)
}

func TestAuthoriseDenied(t *testing.T) {
	port := freePort(t)
	cfg := &oauth2.Config{ClientID: "id", Endpoint: oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth"}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := Authorise(ctx, cfg, port, filepath.Join(t.TempDir(), "token.json"), func(string) {
		go func() {
			resp, err := http.Get("http://localhost:" + port + "/callback?error=access_denied")
			if err == nil {
				resp.Body.Close()
			}
		}()
	})
	assert.ErrorContains(t, err, "access_denied")
}

func TestAuthoriseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Authorise(ctx, &oauth2.Config{}, freePort(t), filepath.Join(t.TempDir(), "token.json"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
