// Package store provides access to the host platform's user records and
// the per-user Marketo sync state.
package store

import (
	"context"
	"time"
)

// MetaKey is the fixed namespace key sync records are stored under in
// the user metadata table.
const MetaKey = "go_marketo"

// User is a host-platform user record.
type User struct {
	ID          int64
	Email       string
	Login       string
	DisplayName string
	Registered  time.Time
}

// SyncRecord is the locally persisted state of a user's last successful
// sync: the Marketo lead id and the unix time of the sync. It is
// overwritten on every successful createOrUpdate and never deleted; a
// "delete" sync action unsubscribes the lead remotely but keeps the
// local mapping.
type SyncRecord struct {
	MarketoID int   `json:"marketo_id"`
	Timestamp int64 `json:"timestamp"`
}

// UserStore exposes the host platform's user records and the
// do-not-email profile flag. Lookups return (nil, nil) when no user
// matches.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	DoNotEmail(ctx context.Context, id int64) (bool, error)
	SetDoNotEmail(ctx context.Context, id int64, flag bool) error
}

// SyncRecordStore persists per-user sync records under MetaKey.
type SyncRecordStore interface {
	// Get returns the user's sync record, or nil if the user was never
	// synced
	Get(ctx context.Context, userID int64) (*SyncRecord, error)

	// Put overwrites the user's sync record
	Put(ctx context.Context, userID int64, rec *SyncRecord) error
}
