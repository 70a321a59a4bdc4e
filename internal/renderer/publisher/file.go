package publisher

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"slidecast/internal/models"
	"slidecast/internal/pkg/errors"
)

// File copies a successful render to Dest.
type File struct {
	Dest string
}

func (f File) Publish(ctx context.Context, res models.RenderResult) error {
	if !res.Succeeded() {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.Dest), 0o755); err != nil {
		return errors.Wrap(err, "publisher.file", "create destination directory")
	}

	src, err := os.Open(res.ArtifactPath)
	if err != nil {
		return errors.Wrap(err, "publisher.file", "open artifact")
	}
	defer src.Close()

	dst, err := os.Create(f.Dest)
	if err != nil {
		return errors.Wrap(err, "publisher.file", "create destination")
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return errors.Wrap(err, "publisher.file", "copy artifact")
	}
	if err := dst.Close(); err != nil {
		return errors.Wrap(err, "publisher.file", "close destination")
	}
	return nil
}
