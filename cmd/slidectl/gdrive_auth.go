package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"slidecast/internal/config"
	"slidecast/internal/storage"
)

func newGDriveAuthCommand() *cobra.Command {
	var clientID string
	var clientSecret string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "gdrive-auth",
		Short: "Obtain a Google Drive refresh token for the gdrive storage provider",
		Long: `Runs the OAuth loopback flow: open the printed URL, approve access, and the
refresh token is printed for GDRIVE_REFRESH_TOKEN.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if clientID == "" || clientSecret == "" {
				return fmt.Errorf("GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET are required (flags or environment)")
			}
			return runGDriveAuth(cmd, clientID, clientSecret, timeout)
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", config.Env("GDRIVE_CLIENT_ID", ""), "OAuth client id")
	cmd.Flags().StringVar(&clientSecret, "client-secret", config.Env("GDRIVE_CLIENT_SECRET", ""), "OAuth client secret")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "How long to wait for approval")

	return cmd
}

func runGDriveAuth(cmd *cobra.Command, clientID, clientSecret string, timeout time.Duration) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen for oauth callback: %w", err)
	}
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	redirectURL := fmt.Sprintf("http://127.0.0.1:%d/callback", port)
	conf := storage.DriveOAuthConfig(clientID, clientSecret, redirectURL)

	state := randomState()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	srv := &http.Server{
		Handler:      callbackHandler(state, codeCh, errCh),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	// Offline access with forced consent so Google returns a refresh token.
	authURL := conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)

	fmt.Fprintf(out, "Open this URL in your browser:\n\n%s\n\nWaiting for authorization on %s\n", authURL, redirectURL)

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("timed out waiting for authorization")
	case <-ctx.Done():
		return ctx.Err()
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	tok, err := conf.Exchange(exchangeCtx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}

	if strings.TrimSpace(tok.RefreshToken) == "" {
		return fmt.Errorf("no refresh token returned; revoke the app's access at https://myaccount.google.com/permissions and retry")
	}

	fmt.Fprintf(out, "\nGDRIVE_REFRESH_TOKEN=%s\n", tok.RefreshToken)
	return nil
}

// callbackHandler receives the OAuth redirect and reports the code or error.
func callbackHandler(state string, codeCh chan<- string, errCh chan<- error) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "invalid state", http.StatusBadRequest)
			report(errCh, fmt.Errorf("invalid oauth state"))
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, "auth error: "+e, http.StatusBadRequest)
			report(errCh, fmt.Errorf("auth error: %s", e))
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			report(errCh, fmt.Errorf("missing authorization code"))
			return
		}

		fmt.Fprintln(w, "Authorized. You can close this window and return to the terminal.")
		select {
		case codeCh <- code:
		default:
		}
	})
	return mux
}

func report(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
	}
}

func randomState() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
