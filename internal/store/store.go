// ABOUTME: Store interface and the lock-guarded DocumentStore shared by every medium
// ABOUTME: Load/Save/Update give readers a consistent snapshot and writers a critical section

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrStorageCorrupt is returned when persisted bytes cannot be parsed as a document.
var ErrStorageCorrupt = errors.New("storage corrupt")

// ErrStorageUnavailable is returned when the document cannot be read from or written to its medium.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Store provides access to the single roster document.
type Store interface {
	// Load returns a private copy of the current document, initializing an
	// empty one if nothing has been persisted yet.
	Load(ctx context.Context) (*Document, error)

	// Save atomically replaces the persisted document.
	Save(ctx context.Context, doc *Document) error

	// Update runs fn against the current document under the exclusive lock
	// and persists the result. If fn returns an error nothing is written
	// and that error is returned unchanged.
	Update(ctx context.Context, fn func(doc *Document) error) error

	Close() error
}

// Medium holds the serialized document bytes.
type Medium interface {
	// Read returns the persisted bytes, or nil with no error if nothing has
	// been written yet.
	Read(ctx context.Context) ([]byte, error)
	// Write replaces the persisted bytes. Readers must never observe a
	// partial write.
	Write(ctx context.Context, data []byte) error
	Close() error
	String() string
}

// DocumentStore implements Store over any Medium with a process-wide RWMutex.
type DocumentStore struct {
	mu      sync.RWMutex
	medium  Medium
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a DocumentStore.
type Option func(*DocumentStore)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *DocumentStore) {
		s.logger = logger.With("component", "store")
	}
}

// WithMetrics records operation counts and latencies.
func WithMetrics(m *Metrics) Option {
	return func(s *DocumentStore) {
		s.metrics = m
	}
}

// New creates a DocumentStore backed by the given medium.
func New(m Medium, opts ...Option) *DocumentStore {
	s := &DocumentStore{
		medium: m,
		logger: slog.Default().With("component", "store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Info("store initialized", "medium", m.String())
	return s
}

// Load implements Store.
func (s *DocumentStore) Load(ctx context.Context) (doc *Document, err error) {
	start := time.Now()
	defer func() { s.metrics.observe("load", start, err) }()

	s.mu.RLock()
	data, err := s.medium.Read(ctx)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrStorageUnavailable, s.medium, err)
	}
	if data != nil {
		return DecodeDocument(data)
	}

	return s.initialize(ctx)
}

// initialize persists an empty document unless a writer got there first.
func (s *DocumentStore) initialize(ctx context.Context) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.medium.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrStorageUnavailable, s.medium, err)
	}
	if data != nil {
		return DecodeDocument(data)
	}

	doc := NewDocument()
	if err := s.write(ctx, doc); err != nil {
		return nil, err
	}
	s.logger.Info("document created", "medium", s.medium.String())
	return doc, nil
}

// Save implements Store.
func (s *DocumentStore) Save(ctx context.Context, doc *Document) (err error) {
	start := time.Now()
	defer func() { s.metrics.observe("save", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, doc)
}

// Update implements Store.
func (s *DocumentStore) Update(ctx context.Context, fn func(doc *Document) error) (err error) {
	start := time.Now()
	defer func() { s.metrics.observe("update", start, err) }()

	waitStart := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.observeLockWait(time.Since(waitStart))

	data, err := s.medium.Read(ctx)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrStorageUnavailable, s.medium, err)
	}

	doc := NewDocument()
	if data != nil {
		doc, err = DecodeDocument(data)
		if err != nil {
			return err
		}
	}

	if err := fn(doc); err != nil {
		return err
	}
	return s.write(ctx, doc)
}

// write encodes and persists doc. Callers must hold the write lock.
func (s *DocumentStore) write(ctx context.Context, doc *Document) error {
	doc.normalize()
	data, err := doc.Encode()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := s.medium.Write(ctx, data); err != nil {
		s.logger.Error("document write failed", "medium", s.medium.String(), "error", err)
		return fmt.Errorf("%w: writing %s: %v", ErrStorageUnavailable, s.medium, err)
	}
	return nil
}

// Close releases the underlying medium.
func (s *DocumentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.medium.Close()
}
