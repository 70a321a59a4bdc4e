package assets

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"

	"slidecast/internal/httpkit"
	"slidecast/internal/pkg/errors"
	"slidecast/internal/ports"
)

// CatalogScheme is the locator scheme for catalogued assets: asset://<id>.
const CatalogScheme = "asset"

// RowQuerier is the subset of *pgxpool.Pool the catalog needs.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CatalogFetcher resolves asset://<id> through the assets table and streams
// the object from the storage provider.
type CatalogFetcher struct {
	db RowQuerier
	sp ports.StorageProvider
}

func NewCatalogFetcher(db RowQuerier, sp ports.StorageProvider) *CatalogFetcher {
	return &CatalogFetcher{db: db, sp: sp}
}

type assetMetadata struct {
	ObjectKey string
	Mime      string
}

func (c *CatalogFetcher) Fetch(ctx context.Context, locator string, dst io.Writer) error {
	id, err := catalogID(locator)
	if err != nil {
		return errors.Fetch("assets.catalog", locator, err)
	}

	asset, err := c.lookup(ctx, id)
	if err != nil {
		return errors.Fetch("assets.catalog", locator, err).WithField("asset_id", id)
	}

	rc, _, _, err := c.sp.GetObject(ctx, asset.ObjectKey)
	if err != nil {
		return errors.Fetch("assets.catalog", locator, fmt.Errorf("storage %s: %w", c.sp.Provider(), err)).
			WithField("asset_id", id)
	}
	defer rc.Close()

	if _, err := io.Copy(dst, rc); err != nil {
		return errors.Fetch("assets.catalog", locator, fmt.Errorf("read object: %w", err)).
			WithField("asset_id", id)
	}
	return nil
}

func (c *CatalogFetcher) lookup(ctx context.Context, id string) (*assetMetadata, error) {
	var objectKey, mime string
	err := c.db.QueryRow(ctx,
		`SELECT object_key, mime FROM assets WHERE id=$1`,
		id,
	).Scan(&objectKey, &mime)

	switch {
	case err == nil:
		return &assetMetadata{ObjectKey: objectKey, Mime: mime}, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("asset %s not found", id)
	case httpkit.IsUndefinedTable(err):
		return nil, fmt.Errorf("asset catalog is not provisioned: %w", err)
	default:
		return nil, fmt.Errorf("asset lookup: %w", err)
	}
}

func catalogID(locator string) (string, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(u.Scheme, CatalogScheme) {
		return "", fmt.Errorf("not an asset locator")
	}
	id := strings.Trim(u.Host+u.Path, "/")
	if id == "" {
		return "", fmt.Errorf("asset locator has no id")
	}
	return id, nil
}
