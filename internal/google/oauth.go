package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrNoToken is returned when the token file does not exist.
var ErrNoToken = errors.New("no Google OAuth token found, run `inboxagent auth login`")

// OAuth manages the user's Gmail OAuth token on disk.
type OAuth struct {
	config    *oauth2.Config
	tokenFile string
}

// NewOAuth returns an OAuth for the given client credentials. The token is
// stored as JSON in tokenFile.
func NewOAuth(clientID, clientSecret, tokenFile string) *OAuth {
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       GmailScopes,
		},
		tokenFile: tokenFile,
	}
}

// TokenFile returns the path of the token file.
func (o *OAuth) TokenFile() string {
	return o.tokenFile
}

// HasToken reports whether a token file exists.
func (o *OAuth) HasToken() bool {
	_, err := os.Stat(o.tokenFile)
	return err == nil
}

// AuthCodeURL returns the consent URL for state, redirecting to redirectURL.
func (o *OAuth) AuthCodeURL(state, redirectURL string) string {
	conf := *o.config
	conf.RedirectURL = redirectURL
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and saves it.
func (o *OAuth) Exchange(ctx context.Context, code, redirectURL string) (*oauth2.Token, error) {
	conf := *o.config
	conf.RedirectURL = redirectURL
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	if err := o.SaveToken(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// LoadToken reads the token file.
func (o *OAuth) LoadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(o.tokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("invalid token file %s: %w", o.tokenFile, err)
	}
	if tok.RefreshToken == "" && tok.AccessToken == "" {
		return nil, fmt.Errorf("invalid token file %s: no tokens", o.tokenFile)
	}
	return &tok, nil
}

// SaveToken writes tok to the token file with owner-only permissions.
func (o *OAuth) SaveToken(tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(o.tokenFile), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(o.tokenFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// TokenSource returns a source that refreshes the stored token and writes
// refreshed tokens back to the token file.
func (o *OAuth) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	tok, err := o.LoadToken()
	if err != nil {
		return nil, err
	}
	return &persistingTokenSource{
		base: o.config.TokenSource(ctx, tok),
		last: tok,
		save: o.SaveToken,
	}, nil
}

// HTTPClient returns an authenticated client for the Gmail API. HTTP/2 is
// disabled on the transport; Gmail batch endpoints reset HTTP/2 streams under
// load.
func (o *OAuth) HTTPClient(ctx context.Context) (*http.Client, error) {
	ts, err := o.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   &http.Transport{Proxy: http.ProxyFromEnvironment, ForceAttemptHTTP2: false},
		},
	}, nil
}

// Login runs the installed-app flow on a loopback redirect: it prints the
// consent URL to out, waits for Google to redirect back with a code, and saves
// the resulting token.
func (o *OAuth) Login(ctx context.Context, out io.Writer) error {
	if o.config.ClientID == "" || o.config.ClientSecret == "" {
		return errors.New("google client id and secret are required, set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to start callback listener: %w", err)
	}
	redirectURL := fmt.Sprintf("http://%s/callback", ln.Addr().String())
	state := uuid.NewString()

	codes := make(chan string, 1)
	errs := make(chan error, 1)
	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			switch {
			case r.URL.Path != "/callback":
				http.NotFound(w, r)
				return
			case q.Get("state") != state:
				http.Error(w, "state mismatch", http.StatusBadRequest)
				errs <- errors.New("oauth callback state mismatch")
				return
			case q.Get("error") != "":
				http.Error(w, "authorization failed", http.StatusBadRequest)
				errs <- fmt.Errorf("authorization failed: %s", q.Get("error"))
				return
			}
			fmt.Fprintln(w, "Authorization complete. You can close this tab.")
			codes <- q.Get("code")
		}),
	}
	go func() { _ = srv.Serve(ln) }()
	defer func() { _ = srv.Close() }()

	fmt.Fprintf(out, "Open this URL in your browser to authorize Gmail access:\n\n%s\n\n", o.AuthCodeURL(state, redirectURL))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errs:
		return err
	case code := <-codes:
		if _, err := o.Exchange(ctx, code, redirectURL); err != nil {
			return err
		}
		fmt.Fprintf(out, "Token saved to %s\n", o.tokenFile)
		return nil
	}
}
