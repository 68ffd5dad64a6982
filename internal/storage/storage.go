package storage

import (
	"context"

	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
)

// KeyStore holds the authorized license keys
type KeyStore interface {
	HasKey(ctx context.Context, key string) (bool, error)
	// AddKey returns false when the key already exists.
	AddKey(ctx context.Context, key string) (bool, error)
	// RemoveKey returns false when the key was not present.
	RemoveKey(ctx context.Context, key string) (bool, error)
	ListKeys(ctx context.Context) ([]string, error)
}

// BanStore holds the ban list
type BanStore interface {
	// AddBan returns false when an entry with the same type and value exists.
	AddBan(ctx context.Context, ban domain.Ban) (bool, error)
	RemoveBan(ctx context.Context, banType domain.BanType, value string) (bool, error)
	ListBans(ctx context.Context) ([]domain.Ban, error)
	// FindBan returns the first ban matching any of the candidate values.
	FindBan(ctx context.Context, candidates map[domain.BanType]string) (*domain.Ban, error)
}

// ActivityStore records what clients do
type ActivityStore interface {
	RecordConnection(ctx context.Context, conn domain.Connection) error
	Connections(ctx context.Context) ([]domain.Connection, error)
	RecordFailedLogin(ctx context.Context, failed domain.FailedLogin) error
	FailedLogins(ctx context.Context) ([]domain.FailedLogin, error)
	AppendAttempt(ctx context.Context, attempt domain.Attempt) error
	// Attempts returns the most recent attempts, oldest first. A limit of
	// zero or less returns everything retained.
	Attempts(ctx context.Context, limit int) ([]domain.Attempt, error)
}

// matchBan returns the first ban in bans matching a candidate
func matchBan(bans []domain.Ban, candidates map[domain.BanType]string) *domain.Ban {
	for i := range bans {
		value, ok := candidates[bans[i].Type]
		if ok && value != "" && value == bans[i].Value {
			b := bans[i]
			return &b
		}
	}
	return nil
}
