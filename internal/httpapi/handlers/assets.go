package handlers

import (
	"database/sql"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"slidecast/internal/httpkit"
	"slidecast/internal/pkg/errors"
	"slidecast/internal/ports"
)

const maxUploadMemory = 32 << 20

// Asset is a catalogued upload, addressable in render jobs as asset://<id>.
type Asset struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Provider  string    `json:"provider"`
	ObjectKey string    `json:"object_key"`
	Mime      string    `json:"mime"`
	SizeBytes int64     `json:"size_bytes"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Locator   string    `json:"locator"`
}

func (h *Handler) catalogReady() error {
	if h.db == nil || h.sp == nil {
		return errors.Unavailable("asset catalog")
	}
	return nil
}

// PostAsset stores a multipart upload (fields: kind, label, file) and
// registers it in the catalog.
func (h *Handler) PostAsset(w http.ResponseWriter, r *http.Request) error {
	if err := h.catalogReady(); err != nil {
		return err
	}
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "httpapi.assets", "invalid multipart form")
	}

	kind := strings.TrimSpace(r.FormValue("kind"))
	switch kind {
	case "image", "audio":
	case "":
		return errors.ValidationField("kind", "kind is required")
	default:
		return errors.ValidationField("kind", fmt.Sprintf("unsupported asset kind %q", kind))
	}
	label := strings.TrimSpace(r.FormValue("label"))

	file, header, err := r.FormFile("file")
	if err != nil {
		return errors.ValidationField("file", "file is required")
	}
	defer file.Close()

	assetID := "ast_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	ext := filepath.Ext(header.Filename)
	if ext == "" {
		ext = guessExt(header.Header.Get("Content-Type"))
		if ext == "" {
			ext = ".bin"
		}
	}
	objectKey := fmt.Sprintf("assets/%s/original%s", assetID, ext)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(ext)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	out, err := h.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   objectKey,
		ContentType: contentType,
		Reader:      file,
		Size:        header.Size,
	})
	if err != nil {
		return errors.Wrap(err, "httpapi.assets", "storage put failed").WithField("provider", h.sp.Provider())
	}

	asset := Asset{
		ID:        assetID,
		Kind:      kind,
		Provider:  h.sp.Provider(),
		ObjectKey: out.ObjectKey,
		Mime:      contentType,
		SizeBytes: out.Size,
		Label:     label,
		CreatedAt: time.Now().UTC(),
		Locator:   "asset://" + assetID,
	}

	_, err = h.db.Exec(ctx,
		`INSERT INTO assets (id, kind, provider, object_key, mime, size_bytes, label, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		asset.ID, asset.Kind, asset.Provider, asset.ObjectKey, asset.Mime, asset.SizeBytes, nullIfEmpty(label), asset.CreatedAt,
	)
	if err != nil {
		_ = h.sp.DeleteObject(ctx, out.ObjectKey)
		return catalogError(err, "db insert asset failed")
	}

	h.log.FromContext(ctx).Info("asset stored", "asset_id", asset.ID, "kind", kind, "size", asset.SizeBytes)
	httpkit.WriteJSON(w, http.StatusCreated, map[string]any{"asset": asset})
	return nil
}

func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) error {
	if err := h.catalogReady(); err != nil {
		return err
	}
	asset, err := h.lookupAsset(r, chi.URLParam(r, "assetId"))
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"asset": asset})
	return nil
}

// StreamAsset serves the stored bytes of an asset.
func (h *Handler) StreamAsset(w http.ResponseWriter, r *http.Request) error {
	if err := h.catalogReady(); err != nil {
		return err
	}
	asset, err := h.lookupAsset(r, chi.URLParam(r, "assetId"))
	if err != nil {
		return err
	}

	rc, ct, _, err := h.sp.GetObject(r.Context(), asset.ObjectKey)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeNotFound, "httpapi.assets", "asset file missing").
			WithField("object_key", asset.ObjectKey)
	}
	defer rc.Close()

	if ct == "" {
		ct = asset.Mime
	}
	w.Header().Set("Content-Type", ct)
	if asset.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(asset.SizeBytes, 10))
	}
	_, _ = io.Copy(w, rc)
	return nil
}

func (h *Handler) DeleteAsset(w http.ResponseWriter, r *http.Request) error {
	if err := h.catalogReady(); err != nil {
		return err
	}
	ctx := r.Context()

	asset, err := h.lookupAsset(r, chi.URLParam(r, "assetId"))
	if err != nil {
		return err
	}

	if err := h.sp.DeleteObject(ctx, asset.ObjectKey); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "httpapi.assets", "storage delete failed").WithField("object_key", asset.ObjectKey)
	}

	if _, err := h.db.Exec(ctx, `DELETE FROM assets WHERE id=$1`, asset.ID); err != nil {
		return catalogError(err, "db delete failed")
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) lookupAsset(r *http.Request, assetID string) (*Asset, error) {
	var (
		a     Asset
		label sql.NullString
	)
	err := h.db.QueryRow(r.Context(),
		`SELECT id, kind, provider, object_key, mime, size_bytes, label, created_at
		 FROM assets WHERE id=$1`, assetID,
	).Scan(&a.ID, &a.Kind, &a.Provider, &a.ObjectKey, &a.Mime, &a.SizeBytes, &label, &a.CreatedAt)
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		return nil, errors.New(errors.CodeNotFound, "asset not found").WithField("asset_id", assetID)
	default:
		return nil, catalogError(err, "db query failed")
	}
	a.Label = label.String
	a.Locator = "asset://" + a.ID
	return &a, nil
}

// catalogError maps a missing assets table to UNAVAILABLE.
func catalogError(err error, msg string) error {
	if httpkit.IsUndefinedTable(err) {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "httpapi.assets", "asset catalog is not provisioned")
	}
	return errors.Wrap(err, "httpapi.assets", msg)
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func guessExt(contentType string) string {
	if contentType == "" {
		return ""
	}
	exts, err := mime.ExtensionsByType(contentType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
