package sync_repository

import (
	"context"
	"sync"
	"time"

	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/platform/logger"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const unlockTimeout = 10 * time.Second

// advisoryLockKey folds the connection id into the bigint space of
// pg_try_advisory_lock.
func advisoryLockKey(connID domain.ConnectionID) int64 {
	id := uuid.UUID(connID)
	return int64(xxhash.Sum64(id[:]))
}

// TryLock takes a session level advisory lock on a connection of its own.
// The lock lives exactly as long as that session, so a crashed worker never
// leaves a connection locked.
func (s *SqlStore) TryLock(ctx context.Context, connID domain.ConnectionID) (func(), bool, error) {
	session, err := s.database.Conn(ctx)
	if err != nil {
		return nil, false, err
	}

	key := advisoryLockKey(connID)

	var acquired bool
	if err := session.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
		session.Close()
		return nil, false, err
	}

	if !acquired {
		session.Close()
		metrics.advisoryLockContentionCounter.Inc()
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
			defer cancel()

			if _, err := session.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, key); err != nil {
				logger.Log.WithFields(logrus.Fields{"connection_id": connID, "error": err}).Warn("Unable to release advisory lock")
			}
			session.Close()
		})
	}

	return release, true, nil
}

// memoryLocker is the in-process counterpart used with the memory store
type memoryLocker struct {
	held sync.Map
}

func (l *memoryLocker) TryLock(ctx context.Context, connID domain.ConnectionID) (func(), bool, error) {
	if _, loaded := l.held.LoadOrStore(connID, struct{}{}); loaded {
		metrics.advisoryLockContentionCounter.Inc()
		return nil, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.held.Delete(connID) })
	}, true, nil
}
