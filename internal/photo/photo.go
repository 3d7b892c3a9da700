package photo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/stalberm/osu-cs493-assignment-4/internal/entity"
	"github.com/stalberm/osu-cs493-assignment-4/internal/repository"
)

// Service is the ingestion and retrieval side of the pipeline. Ingest writes
// the original durably before publishing the derivation job, so a worker
// never sees a job for a photo that is not yet readable.
type Service struct {
	store  repository.BlobStore
	queue  repository.Queue
	jobs   string
	logger *slog.Logger

	mu      sync.Mutex
	orphans map[string]struct{}
}

type Config struct {
	Store  repository.BlobStore
	Queue  repository.Queue
	Jobs   string
	Logger *slog.Logger
}

func New(c Config) *Service {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return &Service{
		store:   c.Store,
		queue:   c.Queue,
		jobs:    c.Jobs,
		logger:  c.Logger,
		orphans: map[string]struct{}{},
	}
}

type IngestRequest struct {
	BusinessID  string
	Filename    string
	ContentType string
	Body        io.Reader
}

func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*entity.PhotoRef, error) {
	format, err := entity.ParseFormat(req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("parse format: %w", err)
	}

	if req.BusinessID == "" {
		return nil, fmt.Errorf("missing businessId: %w", entity.ErrValidation)
	}

	name := req.Filename
	if name == "" {
		name = "upload" + format.Ext()
	}

	// Reserved before the original is written; the thumbnail link returned
	// below is valid before the derivative bytes exist.
	derivativeID := uuid.NewString()

	id, err := s.store.Put(ctx, entity.NamespaceOriginals, "", name, req.Body, repository.ObjectMeta{
		ContentType:  format.ContentType(),
		BusinessID:   req.BusinessID,
		DerivativeID: derivativeID,
	})
	if err != nil {
		return nil, fmt.Errorf("store original: %w", err)
	}

	if err := s.queue.Publish(ctx, s.jobs, []byte(id)); err != nil {
		// The original now exists without a pending job. Keep it for the
		// reconciler rather than pretending the upload failed to persist.
		s.logger.Error(
			"job publish failed, original orphaned",
			slog.String("photo_id", id),
			slog.String("error", err.Error()),
		)

		s.mu.Lock()
		s.orphans[id] = struct{}{}
		s.mu.Unlock()

		return nil, fmt.Errorf("publish job for %s: %w", id, err)
	}

	return &entity.PhotoRef{
		ID:    id,
		Links: links(id),
	}, nil
}

func (s *Service) Metadata(ctx context.Context, id string) (*entity.Photo, error) {
	info, err := s.store.Stat(ctx, entity.NamespaceOriginals, id)
	if err != nil {
		return nil, fmt.Errorf("stat original: %w", err)
	}

	return &entity.Photo{
		ID:           info.ID,
		BusinessID:   info.Meta.BusinessID,
		ContentType:  info.Meta.ContentType,
		Filename:     info.Meta.Filename,
		Size:         info.Size,
		DerivativeID: info.Meta.DerivativeID,
		MediaURL:     links(info.ID).Photo,
		ThumbURL:     links(info.ID).Thumb,
	}, nil
}

func (s *Service) OpenOriginal(ctx context.Context, id string) (*repository.ObjectReader, error) {
	object, err := s.store.Get(ctx, entity.NamespaceOriginals, id)
	if err != nil {
		return nil, fmt.Errorf("get original: %w", err)
	}

	return object, nil
}

// OpenDerivative resolves photo id -> reserved derivative id -> derivative
// stream. ErrNotFound on the second hop is the expected race before the
// worker has processed the job.
func (s *Service) OpenDerivative(ctx context.Context, id string) (*repository.ObjectReader, error) {
	info, err := s.store.Stat(ctx, entity.NamespaceOriginals, id)
	if err != nil {
		return nil, fmt.Errorf("stat original: %w", err)
	}

	if info.Meta.DerivativeID == "" {
		return nil, fmt.Errorf("photo %s has no reserved derivative: %w", id, entity.ErrNotFound)
	}

	object, err := s.store.Get(ctx, entity.NamespaceDerivatives, info.Meta.DerivativeID)
	if err != nil {
		return nil, fmt.Errorf("get derivative: %w", err)
	}

	return object, nil
}

func links(id string) entity.PhotoLinks {
	return entity.PhotoLinks{
		Meta:  "/photos/" + id,
		Photo: "/media/photos/" + id,
		Thumb: "/media/thumbs/" + id,
	}
}
