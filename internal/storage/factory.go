package storage

import (
	"context"
	"fmt"

	"slidecast/internal/adapters/storage/gdrive"
	"slidecast/internal/adapters/storage/localfs"
	"slidecast/internal/config"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// NewProvider builds the configured provider. It returns nil, nil when no
// provider is configured.
func NewProvider(ctx context.Context, cfg config.Storage) (Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil

	case "localfs":
		if cfg.LocalRoot == "" {
			return nil, fmt.Errorf("localfs provider requires a root directory")
		}
		return localfs.New(cfg.LocalRoot), nil

	case "gdrive":
		return newGDriveProvider(ctx, cfg)

	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}

// DriveOAuthConfig is the OAuth client used both by the provider and by the
// slidectl gdrive-auth flow that mints its refresh token.
func DriveOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       []string{drive.DriveFileScope},
	}
}

func newGDriveProvider(ctx context.Context, cfg config.Storage) (Provider, error) {
	if cfg.GDriveClientID == "" || cfg.GDriveClientSecret == "" || cfg.GDriveRefreshToken == "" {
		return nil, fmt.Errorf("gdrive provider requires client id, client secret and refresh token")
	}

	conf := DriveOAuthConfig(cfg.GDriveClientID, cfg.GDriveClientSecret, "")

	tok := &oauth2.Token{RefreshToken: cfg.GDriveRefreshToken}
	httpClient := conf.Client(context.WithoutCancel(ctx), tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}

	return gdrive.NewClient(srv, cfg.GDriveFolderID), nil
}
