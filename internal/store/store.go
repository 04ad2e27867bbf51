package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	auditmodel "github.com/vetlink/companion/backend/internal/model/audit"
	"github.com/vetlink/companion/backend/internal/model/chat"
)

// ErrUnknownDriver is returned by Open for unsupported storage drivers.
var ErrUnknownDriver = errors.New("unknown storage driver")

// Event is one persisted analytics event.
type Event struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Repository is the durable sink for review records, transcripts and
// analytics. Every Append is idempotent on the record ID.
type Repository interface {
	AppendFlag(ctx context.Context, entry auditmodel.FlaggedEntry) error
	AppendCrisisAlert(ctx context.Context, alert auditmodel.CrisisAlert) error
	AppendMessage(ctx context.Context, msg chat.Message) error
	AppendEvent(ctx context.Context, event Event) error

	ListFlags(ctx context.Context, limit int) ([]auditmodel.FlaggedEntry, error)
	ListCrisisAlerts(ctx context.Context, limit int) ([]auditmodel.CrisisAlert, error)
	ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open returns the repository selected by driver.
func Open(driver, sqlitePath, postgresDSN string) (Repository, error) {
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		s, err := NewSQLite(sqlitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgres(postgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

const defaultListLimit = 100

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultListLimit
	}
	return limit
}
