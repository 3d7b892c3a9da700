package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/stalberm/osu-cs493-assignment-4/internal/entity"
	"github.com/stalberm/osu-cs493-assignment-4/internal/repository"
)

// Worker consumes derivation jobs and writes each thumbnail under the
// derivative id reserved at ingest time, which makes reprocessing a
// redelivered job an overwrite rather than a duplicate.
type Worker struct {
	store           repository.BlobStore
	queue           repository.Queue
	jobs            string
	size            int
	maxImageBytes   int64
	downloadTimeout time.Duration
	consumers       int
	logger          *slog.Logger
}

type Config struct {
	Store           repository.BlobStore
	Queue           repository.Queue
	Jobs            string
	Size            int
	MaxImageBytes   int64
	DownloadTimeout time.Duration
	Consumers       int
	Logger          *slog.Logger
}

func New(c Config) *Worker {
	if c.Size == 0 {
		c.Size = 100
	}
	if c.MaxImageBytes == 0 {
		c.MaxImageBytes = 32 << 20
	}
	if c.DownloadTimeout == 0 {
		c.DownloadTimeout = time.Minute
	}
	if c.Consumers == 0 {
		c.Consumers = 1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return &Worker{
		store:           c.Store,
		queue:           c.Queue,
		jobs:            c.Jobs,
		size:            c.Size,
		maxImageBytes:   c.MaxImageBytes,
		downloadTimeout: c.DownloadTimeout,
		consumers:       c.Consumers,
		logger:          c.Logger,
	}
}

// Run blocks until ctx is cancelled, processing jobs on the configured
// number of competing consumers.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, w.consumers)

	for i := 0; i < w.consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := w.queue.Consume(ctx, w.jobs, w.Handle); err != nil && !errors.Is(err, context.Canceled) {
				errs <- fmt.Errorf("consume: %w", err)
			}
		}()
	}

	wg.Wait()
	close(errs)

	return <-errs
}

// Handle processes one job: download, decode, resize, upload, then return
// nil so the delivery is acknowledged. Permanent classifications (missing
// original, oversize, corrupt image, malformed record) wrap
// entity.ErrPermanent so the queue dead-letters instead of redelivering.
func (w *Worker) Handle(ctx context.Context, payload []byte) error {
	id := string(bytes.TrimSpace(payload))
	if id == "" {
		return fmt.Errorf("empty job payload: %w", entity.ErrPermanent)
	}

	logger := w.logger.With(slog.String("photo_id", id))

	data, info, err := w.download(ctx, id)
	if err != nil {
		return err
	}

	if info.Meta.DerivativeID == "" {
		return fmt.Errorf("photo %s missing reserved derivative id: %w", id, entity.ErrPermanent)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("photo %s: %w: %w: %w", id, entity.ErrDecode, err, entity.ErrPermanent)
	}

	thumb := imaging.Thumbnail(img, w.size, w.size, imaging.Lanczos)
	bounds := thumb.Bounds()

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG); err != nil {
		return fmt.Errorf("encode thumbnail for %s: %w: %w", id, err, entity.ErrPermanent)
	}

	name := entity.DerivativeName(info.Name)
	if info.Name == "" {
		name = info.Meta.DerivativeID + entity.DerivativeExt
	}

	if _, err := w.store.Put(ctx, entity.NamespaceDerivatives, info.Meta.DerivativeID, name, &buf, repository.ObjectMeta{
		ContentType: entity.ContentTypeJPEG,
		PhotoID:     id,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}); err != nil {
		return fmt.Errorf("store derivative for %s: %w", id, err)
	}

	logger.Info(
		"derivative written",
		slog.String("derivative_id", info.Meta.DerivativeID),
		slog.Int("width", bounds.Dx()),
		slog.Int("height", bounds.Dy()),
	)

	return nil
}

func (w *Worker) download(ctx context.Context, id string) ([]byte, *repository.ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, w.downloadTimeout)
	defer cancel()

	object, err := w.store.Get(ctx, entity.NamespaceOriginals, id)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			// The photo record is gone or malformed; retrying cannot help.
			return nil, nil, fmt.Errorf("original %s: %w: %w", id, err, entity.ErrPermanent)
		}

		return nil, nil, fmt.Errorf("download original %s: %w", id, err)
	}
	defer object.Content.Close()

	data, err := io.ReadAll(io.LimitReader(object.Content, w.maxImageBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read original %s: %w: %w", id, entity.ErrStorageRead, err)
	}

	if int64(len(data)) > w.maxImageBytes {
		return nil, nil, fmt.Errorf("original %s exceeds %d bytes: %w", id, w.maxImageBytes, entity.ErrPermanent)
	}

	return data, &object.ObjectInfo, nil
}
