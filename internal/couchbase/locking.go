package couchbase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/patientrecords/internal/dal"
)

const lockKeyPrefix = "lock::"

// Lock acquires a named lock by inserting a lock document that expires
// after ttl. An existing lock document means another process holds it.
func (s *Store) Lock(ctx context.Context, name string, ttl time.Duration) error {
	hostname, _ := os.Hostname()
	lockDoc := map[string]interface{}{
		"locked":    true,
		"lockedAt":  time.Now().UTC().Format(time.RFC3339),
		"lockedBy":  hostname,
		"expiresAt": time.Now().UTC().Add(ttl).Format(time.RFC3339),
	}

	col := s.conn.GetBucket().DefaultCollection()
	_, err := col.Insert(lockKeyPrefix+name, lockDoc, &gocb.InsertOptions{
		Expiry:  ttl,
		Context: ctx,
	})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentExists) {
			return fmt.Errorf("lock %s: %w", name, dal.ErrLocked)
		}
		return fmt.Errorf("failed to create lock document: %w", err)
	}

	log.Info().Str("lock", name).Dur("ttl", ttl).Msg("Lock acquired")
	return nil
}

// Unlock removes the lock document. Releasing an expired lock is not an error.
func (s *Store) Unlock(ctx context.Context, name string) error {
	col := s.conn.GetBucket().DefaultCollection()
	_, err := col.Remove(lockKeyPrefix+name, &gocb.RemoveOptions{Context: ctx})
	if err != nil && !errors.Is(err, gocb.ErrDocumentNotFound) {
		return fmt.Errorf("failed to remove lock document: %w", err)
	}

	log.Info().Str("lock", name).Msg("Lock released")
	return nil
}
