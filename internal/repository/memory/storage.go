package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/stalberm/osu-cs493-assignment-4/internal/entity"
	"github.com/stalberm/osu-cs493-assignment-4/internal/repository"
)

type object struct {
	info repository.ObjectInfo
	data []byte
}

// Storage is a map-backed blob store used as the `memory` backend for local
// development and as the test double. An object becomes visible only after
// its put has fully buffered, matching the atomic-visibility contract of the
// durable backends.
type Storage struct {
	mu      sync.RWMutex
	objects map[entity.Namespace]map[string]*object
}

func NewStorage() *Storage {
	return &Storage{
		objects: map[entity.Namespace]map[string]*object{
			entity.NamespaceOriginals:   {},
			entity.NamespaceDerivatives: {},
		},
	}
}

func (s *Storage) Put(ctx context.Context, ns entity.Namespace, id, name string, r io.Reader, meta repository.ObjectMeta) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("buffer %s/%s: %w: %w", ns, name, entity.ErrStorageWrite, err)
	}

	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	objects, ok := s.objects[ns]
	if !ok {
		return "", fmt.Errorf("unknown namespace `%s`: %w", ns, entity.ErrStorageWrite)
	}

	meta.Filename = name
	objects[id] = &object{
		info: repository.ObjectInfo{
			ID:   id,
			Name: name,
			Size: int64(len(data)),
			Meta: meta,
		},
		data: data,
	}

	return id, nil
}

func (s *Storage) Get(ctx context.Context, ns entity.Namespace, idOrName string) (*repository.ObjectReader, error) {
	info, data, err := s.lookup(ns, idOrName)
	if err != nil {
		return nil, err
	}

	return &repository.ObjectReader{
		ObjectInfo: *info,
		Content:    io.NopCloser(bytes.NewReader(data)),
	}, nil
}

func (s *Storage) Stat(ctx context.Context, ns entity.Namespace, idOrName string) (*repository.ObjectInfo, error) {
	info, _, err := s.lookup(ns, idOrName)
	if err != nil {
		return nil, err
	}

	return info, nil
}

// Delete exists for out-of-band lifecycle management; the pipeline itself
// never removes objects.
func (s *Storage) Delete(ctx context.Context, ns entity.Namespace, idOrName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := entity.StripExt(idOrName)
	if objects, ok := s.objects[ns]; ok {
		delete(objects, id)
	}

	return nil
}

func (s *Storage) lookup(ns entity.Namespace, idOrName string) (*repository.ObjectInfo, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id := entity.StripExt(idOrName)

	objects, ok := s.objects[ns]
	if !ok {
		return nil, nil, fmt.Errorf("unknown namespace `%s`: %w", ns, entity.ErrStorageRead)
	}

	o, ok := objects[id]
	if !ok {
		return nil, nil, fmt.Errorf("object %s/%s: %w", ns, id, entity.ErrNotFound)
	}

	info := o.info

	return &info, o.data, nil
}
