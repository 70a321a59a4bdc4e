package publisher

import (
	"context"
	"os"
	"path"

	"slidecast/internal/models"
	"slidecast/internal/pkg/errors"
	"slidecast/internal/pkg/logger"
	"slidecast/internal/ports"
)

// ObjectKey is where a rendered video is stored.
func ObjectKey(jobID, filename string) string {
	return path.Join("renders", jobID, filename)
}

// Storage uploads successful renders to a storage provider. Failures are not
// uploaded.
type Storage struct {
	sp  ports.StorageProvider
	log *logger.Logger
}

func NewStorage(sp ports.StorageProvider, log *logger.Logger) *Storage {
	if log == nil {
		log = logger.Discard()
	}
	return &Storage{sp: sp, log: log.WithComponent("storage_publisher")}
}

func (s *Storage) Publish(ctx context.Context, res models.RenderResult) error {
	if !res.Succeeded() {
		return nil
	}

	f, err := os.Open(res.ArtifactPath)
	if err != nil {
		return errors.Wrap(err, "publisher.storage", "open artifact").WithField(errors.FieldJobID, res.JobID)
	}
	defer f.Close()

	key := ObjectKey(res.JobID, res.DownloadFilename)
	out, err := s.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   key,
		ContentType: "video/mp4",
		Reader:      f,
		Size:        res.Size,
	})
	if err != nil {
		return errors.Wrap(err, "publisher.storage", "upload artifact").
			WithField(errors.FieldJobID, res.JobID).
			WithField("provider", s.sp.Provider())
	}

	s.log.FromContext(ctx).Info("artifact stored",
		"job_id", res.JobID,
		"provider", s.sp.Provider(),
		"object_key", out.ObjectKey,
		"size", out.Size,
	)
	return nil
}
