package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stalberm/osu-cs493-assignment-4/internal/entity"
	"github.com/stalberm/osu-cs493-assignment-4/internal/repository"
	"github.com/stalberm/osu-cs493-assignment-4/internal/repository/memory"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))); err != nil {
		t.Fatalf("encode test png: %v", err)
	}

	return buf.Bytes()
}

func newWorker(store repository.BlobStore) *Worker {
	return New(Config{
		Store: store,
		Queue: memory.NewQueue(),
		Jobs:  "photos",
		Size:  100,
	})
}

func putOriginal(t *testing.T, store repository.BlobStore, name string, data []byte, meta repository.ObjectMeta) string {
	t.Helper()

	id, err := store.Put(context.Background(), entity.NamespaceOriginals, "", name, bytes.NewReader(data), meta)
	if err != nil {
		t.Fatalf("put original: %v", err)
	}

	return id
}

func TestHandleProducesDerivative(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	worker := newWorker(store)

	id := putOriginal(t, store, "cat.png", pngBytes(t, 256, 256), repository.ObjectMeta{
		ContentType:  "image/png",
		BusinessID:   "biz",
		DerivativeID: "reserved-thumb-id",
	})

	if err := worker.Handle(ctx, []byte(id)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	object, err := store.Get(ctx, entity.NamespaceDerivatives, "reserved-thumb-id")
	if err != nil {
		t.Fatalf("derivative not stored under reserved id: %v", err)
	}
	defer object.Content.Close()

	if object.Meta.ContentType != entity.ContentTypeJPEG {
		t.Errorf("ContentType = %q, want %q", object.Meta.ContentType, entity.ContentTypeJPEG)
	}
	if object.Meta.PhotoID != id {
		t.Errorf("PhotoID = %q, want %q", object.Meta.PhotoID, id)
	}
	if object.Meta.Width != 100 || object.Meta.Height != 100 {
		t.Errorf("dimensions = %dx%d, want 100x100", object.Meta.Width, object.Meta.Height)
	}
	if want := "cat.jpg"; object.Name != want {
		t.Errorf("Name = %q, want %q", object.Name, want)
	}

	config, err := jpeg.DecodeConfig(object.Content)
	if err != nil {
		t.Fatalf("derivative is not a decodable jpeg: %v", err)
	}
	if config.Width > 100 || config.Height > 100 {
		t.Errorf("decoded dimensions = %dx%d, want within 100x100", config.Width, config.Height)
	}
}

func TestHandleNonSquareOriginal(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	worker := newWorker(store)

	id := putOriginal(t, store, "wide.png", pngBytes(t, 400, 200), repository.ObjectMeta{
		ContentType:  "image/png",
		DerivativeID: "thumb-wide",
	})

	if err := worker.Handle(ctx, []byte(id)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	info, err := store.Stat(ctx, entity.NamespaceDerivatives, "thumb-wide")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Meta.Width > 100 || info.Meta.Height > 100 {
		t.Errorf("dimensions = %dx%d, want within 100x100", info.Meta.Width, info.Meta.Height)
	}
}

func TestHandleIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	worker := newWorker(store)

	id := putOriginal(t, store, "cat.png", pngBytes(t, 256, 256), repository.ObjectMeta{
		ContentType:  "image/png",
		DerivativeID: "thumb-id",
	})

	// A redelivered job reprocesses onto the same reserved id.
	if err := worker.Handle(ctx, []byte(id)); err != nil {
		t.Fatalf("Handle() first delivery error = %v", err)
	}

	first, err := store.Stat(ctx, entity.NamespaceDerivatives, "thumb-id")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}

	if err := worker.Handle(ctx, []byte(id)); err != nil {
		t.Fatalf("Handle() redelivery error = %v", err)
	}

	second, err := store.Stat(ctx, entity.NamespaceDerivatives, "thumb-id")
	if err != nil {
		t.Fatalf("Stat() after redelivery error = %v", err)
	}

	if *first != *second {
		t.Errorf("redelivery changed the derivative: %+v != %+v", first, second)
	}
}

func TestHandlePermanentFailures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(t *testing.T, store repository.BlobStore) (payload string, worker *Worker)
	}{
		{
			name: "original deleted out of band",
			setup: func(t *testing.T, store repository.BlobStore) (string, *Worker) {
				return "no-such-photo", newWorker(store)
			},
		},
		{
			name: "empty payload",
			setup: func(t *testing.T, store repository.BlobStore) (string, *Worker) {
				return "", newWorker(store)
			},
		},
		{
			name: "corrupt image",
			setup: func(t *testing.T, store repository.BlobStore) (string, *Worker) {
				id := putOriginal(t, store, "bad.png", []byte("not a png"), repository.ObjectMeta{
					ContentType:  "image/png",
					DerivativeID: "thumb-id",
				})
				return id, newWorker(store)
			},
		},
		{
			name: "missing reserved derivative id",
			setup: func(t *testing.T, store repository.BlobStore) (string, *Worker) {
				id := putOriginal(t, store, "cat.png", pngBytes(t, 64, 64), repository.ObjectMeta{
					ContentType: "image/png",
				})
				return id, newWorker(store)
			},
		},
		{
			name: "oversize original",
			setup: func(t *testing.T, store repository.BlobStore) (string, *Worker) {
				id := putOriginal(t, store, "big.png", pngBytes(t, 256, 256), repository.ObjectMeta{
					ContentType:  "image/png",
					DerivativeID: "thumb-id",
				})
				w := New(Config{
					Store:         store,
					Queue:         memory.NewQueue(),
					Jobs:          "photos",
					MaxImageBytes: 16,
				})
				return id, w
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStorage()
			payload, worker := tt.setup(t, store)

			err := worker.Handle(ctx, []byte(payload))
			if !errors.Is(err, entity.ErrPermanent) {
				t.Fatalf("Handle() error = %v, want ErrPermanent", err)
			}

			// No derivative may appear for a failed job.
			if _, err := store.Stat(ctx, entity.NamespaceDerivatives, "thumb-id"); !errors.Is(err, entity.ErrNotFound) {
				t.Errorf("Stat(derivative) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestHandleCorruptImageIsDecodeError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	worker := newWorker(store)

	id := putOriginal(t, store, "bad.jpg", []byte("garbage"), repository.ObjectMeta{
		ContentType:  "image/jpeg",
		DerivativeID: "thumb-id",
	})

	err := worker.Handle(ctx, []byte(id))
	if !errors.Is(err, entity.ErrDecode) {
		t.Errorf("Handle() error = %v, want ErrDecode", err)
	}
}
