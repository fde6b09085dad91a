package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/hupe1980/shardex/blobstore"
)

// lease is the body of a lock object.
type lease struct {
	Owner   string    `json:"owner"`
	Expires time.Time `json:"expires"`
}

// Lock implements blobstore.Locker with a lease object. The object is
// created with If-None-Match and renewed or taken over with If-Match on its
// ETag, so two writers never both believe they hold it.
func (s *Store) Lock(ctx context.Context, name string) (func() error, error) {
	key := s.key(name)
	owner := uuid.NewString()

	etag, err := s.writeLease(ctx, key, owner, precondition{absent: true})
	if errors.Is(err, blobstore.ErrConflict) {
		etag, err = s.takeOver(ctx, key, owner)
	}
	if err != nil {
		return nil, err
	}

	h := &leaseHandle{
		store: s,
		key:   key,
		owner: owner,
		etag:  etag,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go h.renew()
	return h.release, nil
}

// takeOver replaces an expired lease held by someone else.
func (s *Store) takeOver(ctx context.Context, key, owner string) (string, error) {
	cur, etag, err := s.readLease(ctx, key)
	if errors.Is(err, blobstore.ErrNotFound) {
		// Released in between; one more create-only attempt.
		etag, err = s.writeLease(ctx, key, owner, precondition{absent: true})
		if errors.Is(err, blobstore.ErrConflict) {
			return "", blobstore.ErrLocked
		}
		return etag, err
	}
	if err != nil {
		return "", err
	}
	if s.now().Before(cur.Expires) {
		return "", blobstore.ErrLocked
	}
	etag, err = s.writeLease(ctx, key, owner, precondition{etag: etag})
	if errors.Is(err, blobstore.ErrConflict) {
		return "", blobstore.ErrLocked
	}
	return etag, err
}

func (s *Store) writeLease(ctx context.Context, key, owner string, pre precondition) (string, error) {
	body, err := json.Marshal(lease{Owner: owner, Expires: s.now().Add(s.leaseTTL)})
	if err != nil {
		return "", err
	}
	etag, err := s.api.put(ctx, key, bytes.NewReader(body), int64(len(body)), pre)
	return etag, mapError(err)
}

func (s *Store) readLease(ctx context.Context, key string) (lease, string, error) {
	etag, size, err := s.api.stat(ctx, key)
	if err != nil {
		return lease{}, "", mapError(err)
	}
	var l lease
	if size == 0 {
		return l, etag, nil
	}
	r, err := s.api.get(ctx, key, etag, 0, size-1)
	if err != nil {
		return lease{}, "", mapError(err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return lease{}, "", mapError(err)
	}
	if err := json.Unmarshal(data, &l); err != nil {
		// Unreadable leases count as expired.
		return lease{}, etag, nil
	}
	return l, etag, nil
}

type leaseHandle struct {
	store *Store
	key   string
	owner string

	mu   sync.Mutex
	etag string

	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	relErr error
}

func (h *leaseHandle) renew() {
	defer close(h.done)

	ticker := time.NewTicker(h.store.leaseTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.mu.Lock()
			etag, err := h.store.writeLease(context.Background(), h.key, h.owner, precondition{etag: h.etag})
			if err == nil {
				h.etag = etag
			}
			h.mu.Unlock()
			// A lost renewal means the lease was taken over after expiry;
			// release then leaves the new owner's object alone.
		}
	}
}

func (h *leaseHandle) release() error {
	h.once.Do(func() {
		close(h.stop)
		<-h.done

		ctx := context.Background()
		cur, _, err := h.store.readLease(ctx, h.key)
		if errors.Is(err, blobstore.ErrNotFound) {
			return
		}
		if err != nil {
			h.relErr = fmt.Errorf("minio: unlock %s: %w", h.key, err)
			return
		}
		if cur.Owner != h.owner {
			return
		}
		if err := mapError(h.store.api.remove(ctx, h.key)); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			h.relErr = fmt.Errorf("minio: unlock %s: %w", h.key, err)
		}
	})
	return h.relErr
}
