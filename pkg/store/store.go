// Package store persists saga instances in a revisioned key/value bucket.
package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alekseev-bro/sagas/pkg/codec"
	"github.com/alekseev-bro/sagas/pkg/saga"
)

// Bucket is a key/value store with compare-and-set on revisions.
//
// Get returns ErrNotFound for a missing key. Put writes only when the stored
// revision equals revision, where zero means the key must not exist, and
// returns the new revision. A mismatch is reported as ErrRevisionMismatch.
type Bucket interface {
	Get(ctx context.Context, key string) ([]byte, uint64, error)
	Put(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
}

type record struct {
	ID        string      `json:"id"`
	Kind      string      `json:"kind"`
	State     saga.State  `json:"state"`
	Data      []byte      `json:"data,omitempty"`
	Processed []uuid.UUID `json:"processed,omitempty"`
	LastEvent uuid.UUID   `json:"last_event"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// SagaStore implements saga.Store on top of a Bucket. The bucket revision is
// the instance version.
type SagaStore struct {
	bucket Bucket
	codec  codec.Codec
	now    func() time.Time
}

type Option func(*SagaStore)

func WithCodec(c codec.Codec) Option {
	return func(s *SagaStore) {
		s.codec = c
	}
}

func New(b Bucket, opts ...Option) *SagaStore {
	s := &SagaStore{bucket: b, codec: codec.JSON, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key is the bucket key of a saga instance. Both parts are base64url encoded
// so any kind or id yields a valid key.
func Key(kind string, id saga.ID) string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(kind)) + "." + enc.EncodeToString([]byte(id))
}

func (s *SagaStore) Load(ctx context.Context, def *saga.Definition, id saga.ID) (*saga.Instance, error) {
	b, rev, err := s.bucket.Get(ctx, Key(def.Kind, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return saga.NewInstance(def.Kind, id), nil
		}
		return nil, fmt.Errorf("load %s/%s: %w", def.Kind, id, err)
	}
	var rec record
	if err := s.codec.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("load %s/%s: decode: %w", def.Kind, id, err)
	}
	return &saga.Instance{
		ID:        id,
		Kind:      def.Kind,
		State:     rec.State,
		Data:      rec.Data,
		Version:   rev,
		Processed: rec.Processed,
	}, nil
}

func (s *SagaStore) Save(ctx context.Context, inst *saga.Instance, eventID uuid.UUID) error {
	b, err := s.codec.Marshal(record{
		ID:        inst.ID.String(),
		Kind:      inst.Kind,
		State:     inst.State,
		Data:      inst.Data,
		Processed: inst.Processed,
		LastEvent: eventID,
		UpdatedAt: s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("save %s/%s: encode: %w", inst.Kind, inst.ID, err)
	}
	rev, err := s.bucket.Put(ctx, Key(inst.Kind, inst.ID), b, inst.Version)
	if err != nil {
		if errors.Is(err, ErrRevisionMismatch) {
			return fmt.Errorf("save %s/%s at version %d: %w", inst.Kind, inst.ID, inst.Version, saga.ErrConcurrencyConflict)
		}
		return fmt.Errorf("save %s/%s: %w", inst.Kind, inst.ID, err)
	}
	inst.Version = rev
	return nil
}
