package google

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// persistingTokenSource writes a token back to disk whenever the underlying
// source returns a new access token.
type persistingTokenSource struct {
	mu   sync.Mutex
	base oauth2.TokenSource
	last *oauth2.Token
	save func(*oauth2.Token) error
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh Google token: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || tok.AccessToken != s.last.AccessToken {
		if err := s.save(tok); err != nil {
			return nil, err
		}
		s.last = tok
	}
	return tok, nil
}

// CloudTokenSource returns a token source with the cloud-platform scope for
// Vertex AI. credentialsFile may be empty, in which case application default
// credentials are used.
func CloudTokenSource(ctx context.Context, credentialsFile string) (oauth2.TokenSource, error) {
	if credentialsFile == "" {
		creds, err := google.FindDefaultCredentials(ctx, CloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("failed to find default Google credentials: %w", err)
		}
		return creds.TokenSource, nil
	}
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, CloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return creds.TokenSource, nil
}
