package repository

import (
	"context"
	"io"

	"github.com/stalberm/osu-cs493-assignment-4/internal/entity"
)

// ObjectMeta is attached to a stored object. Originals carry BusinessID and
// the reserved DerivativeID; derivatives carry PhotoID and the computed
// dimensions.
type ObjectMeta struct {
	ContentType  string
	Filename     string
	BusinessID   string
	DerivativeID string
	PhotoID      string
	Width        int
	Height       int
}

type ObjectInfo struct {
	ID   string
	Name string
	Size int64
	Meta ObjectMeta
}

// ObjectReader is a lazily consumed, finite, non-restartable byte stream. A
// read error after partial delivery fails the whole operation; callers must
// not treat bytes already consumed as a successful read.
type ObjectReader struct {
	ObjectInfo
	Content io.ReadCloser
}

// BlobStore is streaming object storage over two independent namespaces.
// Objects are immutable once Put returns; partial writes are never visible.
type BlobStore interface {
	// Put streams r to durable storage and returns the object id. An empty
	// id lets the store assign one; a non-empty id stores under that
	// reserved identifier (overwriting an equivalent earlier write).
	Put(ctx context.Context, ns entity.Namespace, id, name string, r io.Reader, meta ObjectMeta) (string, error)
	// Get locates an object by id or by display name.
	Get(ctx context.Context, ns entity.Namespace, idOrName string) (*ObjectReader, error)
	Stat(ctx context.Context, ns entity.Namespace, idOrName string) (*ObjectInfo, error)
}

// Handler processes one delivery. A nil return acknowledges the message. An
// error wrapping entity.ErrPermanent dead-letters it; any other error
// requeues it for bounded redelivery.
type Handler func(ctx context.Context, payload []byte) error

// Queue is a durable at-least-once FIFO channel. Handlers must be idempotent:
// the same payload may be delivered more than once.
type Queue interface {
	Publish(ctx context.Context, queue string, payload []byte) error
	// Consume blocks delivering messages to h until ctx is done. Concurrent
	// Consume calls on the same queue are competing consumers.
	Consume(ctx context.Context, queue string, h Handler) error
	Close() error
}
