package session

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"learncode/internal/apperr"
	"learncode/internal/db"
	"learncode/internal/logger"
	"learncode/internal/metrics"
)

const (
	DefaultTTL       = time.Hour
	DefaultDeviceCap = 3
)

// Validator is what request authentication needs from the registry.
type Validator interface {
	Validate(ctx context.Context, token string) (*Session, error)
}

type Registry struct {
	repo      Repository
	tx        db.TxRunner
	ttl       time.Duration
	deviceCap int
	now       func() time.Time
}

func NewRegistry(repo Repository, tx db.TxRunner, ttl time.Duration, deviceCap int) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if deviceCap <= 0 {
		deviceCap = DefaultDeviceCap
	}
	return &Registry{repo: repo, tx: tx, ttl: ttl, deviceCap: deviceCap, now: time.Now}
}

func (r *Registry) TTL() time.Duration {
	return r.ttl
}

func (r *Registry) CreateSession(ctx context.Context, userID int, token string) (*Session, error) {
	s, err := r.repo.Create(ctx, userID, token, r.now().Add(r.ttl))
	if err != nil {
		return nil, err
	}
	metrics.RecordSession("created")
	return s, nil
}

// Login registers a new device session. When the user already holds
// deviceCap active sessions the oldest one is expired first.
func (r *Registry) Login(ctx context.Context, userID int, token string) (*Session, error) {
	var created *Session
	err := r.tx.InTx(ctx, func(tx *sqlx.Tx) error {
		repo := r.repo.WithTx(tx)
		now := r.now()

		if err := repo.LockUser(ctx, userID); err != nil {
			return err
		}

		active, err := repo.CountActive(ctx, userID, now)
		if err != nil {
			return err
		}
		if active >= r.deviceCap {
			n, err := repo.EvictOldest(ctx, userID, now)
			if err != nil {
				return err
			}
			if n > 0 {
				metrics.RecordSession("evicted")
				logger.Info("device cap reached, oldest session expired", "user_id", userID, "active", active)
			}
		}

		created, err = repo.Create(ctx, userID, token, now.Add(r.ttl))
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordSession("created")
	return created, nil
}

func (r *Registry) Expire(ctx context.Context, token string) error {
	n, err := r.repo.ExpireByToken(ctx, token)
	if err != nil {
		return err
	}
	if n > 0 {
		metrics.RecordSession("logout")
	}
	return nil
}

// Validate returns the session only when it exists, is not flagged and has
// not timed out. All failures look the same to the caller.
func (r *Registry) Validate(ctx context.Context, token string) (*Session, error) {
	s, err := r.repo.GetByToken(ctx, token)
	if err != nil {
		if apperr.IsKind(err, apperr.NotFound) {
			return nil, errInvalidSession()
		}
		return nil, err
	}
	if !s.Active(r.now()) {
		return nil, errInvalidSession()
	}
	return s, nil
}

func (r *Registry) ListActive(ctx context.Context, userID int) ([]Session, error) {
	return r.repo.ListActive(ctx, userID, r.now())
}

func (r *Registry) ExpireAll(ctx context.Context, userID int) (int64, error) {
	n, err := r.repo.ExpireAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.RecordSession("logout_all")
		logger.Info("all sessions expired", "user_id", userID, "count", n)
	}
	return n, nil
}

func (r *Registry) PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := r.repo.PurgeExpired(ctx, r.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("purged stale sessions", "count", n)
	}
	return n, nil
}

// RunPurger deletes sessions dead for longer than retention every interval
// until ctx is cancelled.
func (r *Registry) RunPurger(ctx context.Context, interval, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.PurgeExpired(ctx, retention); err != nil {
				logger.Error("session purge failed", "error", err)
			}
		}
	}
}

func errInvalidSession() error {
	return apperr.New(apperr.Unauthorized, "invalid or expired session")
}
