package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/semmidev/pgvault/internal/adapter/storage"
	"github.com/semmidev/pgvault/internal/domain"
	"golang.org/x/oauth2"
)

// DriveAuthServer walks an operator through the OAuth consent flow once and
// hands back the refresh token to put into gdrive_refresh_token.
type DriveAuthServer struct {
	config *oauth2.Config
	logger domain.Logger
	state  string
	server *http.Server
	tokens chan *oauth2.Token
}

func NewDriveAuthServer(logger domain.Logger, clientSecretPath, addr string) (*DriveAuthServer, error) {
	if clientSecretPath == "" {
		return nil, errors.New("gdrive_client_secret_file is required for gdrive-auth")
	}

	cfg, err := storage.LoadDriveOAuthConfig(clientSecretPath)
	if err != nil {
		return nil, err
	}
	cfg.RedirectURL = "http://" + addr + "/auth/google/callback"

	state := make([]byte, 16)
	if _, err := rand.Read(state); err != nil {
		return nil, fmt.Errorf("failed to generate oauth state: %w", err)
	}

	s := &DriveAuthServer{
		config: cfg,
		logger: logger,
		state:  hex.EncodeToString(state),
		tokens: make(chan *oauth2.Token, 1),
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s, nil
}

// StartURL is the page the operator opens in a browser.
func (s *DriveAuthServer) StartURL() string {
	return "http://" + s.server.Addr + "/auth/google/drive"
}

func (s *DriveAuthServer) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth/google/drive", func(w http.ResponseWriter, r *http.Request) {
		authURL := s.config.AuthCodeURL(s.state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
		http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
	})

	mux.HandleFunc("GET /auth/google/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != s.state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code parameter", http.StatusBadRequest)
			return
		}

		token, err := s.config.Exchange(r.Context(), code)
		if err != nil {
			http.Error(w, fmt.Sprintf("token exchange failed: %v", err), http.StatusInternalServerError)
			return
		}

		if token.RefreshToken == "" {
			fmt.Fprintln(w, "No refresh token returned. Revoke the app's access in your Google account and try again.")
			return
		}

		fmt.Fprintf(w, "Refresh token received, set it as gdrive_refresh_token:\n\n%s\n", token.RefreshToken)

		select {
		case s.tokens <- token:
		default:
		}
	})

	return mux
}

// Run serves until a refresh token arrives or ctx is done.
func (s *DriveAuthServer) Run(ctx context.Context) (string, error) {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Google Drive OAuth server listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warnf("Failed to shutdown OAuth server: %v", err)
		}
	}()

	select {
	case token := <-s.tokens:
		return token.RefreshToken, nil
	case err := <-errCh:
		return "", fmt.Errorf("oauth server: %w", err)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
