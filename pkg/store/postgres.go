package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// doNotEmailKey is the metadata key for the user's do-not-email profile
// flag.
const doNotEmailKey = "do_not_email"

// PostgresStore reads users from the host platform's users table and
// keeps sync state in the user_meta table. The users table itself is
// owned by the host and only ever read here, except for the
// do-not-email flag which lives in user_meta alongside the sync record.
type PostgresStore struct {
	db     *DB
	logger *zap.Logger
}

func NewPostgresStore(db *DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*User, error) {
	return s.getUser(ctx,
		`SELECT id, email, login, display_name, registered FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx,
		`SELECT id, email, login, display_name, registered FROM users WHERE email = $1`, email)
}

func (s *PostgresStore) getUser(ctx context.Context, query string, arg interface{}) (*User, error) {
	var u User
	err := s.db.Pool().QueryRow(ctx, query, arg).
		Scan(&u.ID, &u.Email, &u.Login, &u.DisplayName, &u.Registered)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) DoNotEmail(ctx context.Context, id int64) (bool, error) {
	var raw []byte
	err := s.db.Pool().QueryRow(ctx,
		`SELECT meta_value FROM user_meta WHERE user_id = $1 AND meta_key = $2`,
		id, doNotEmailKey,
	).Scan(&raw)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load do_not_email flag: %w", err)
	}

	var flag bool
	if err := json.Unmarshal(raw, &flag); err != nil {
		return false, fmt.Errorf("failed to parse do_not_email flag: %w", err)
	}
	return flag, nil
}

func (s *PostgresStore) SetDoNotEmail(ctx context.Context, id int64, flag bool) error {
	raw, err := json.Marshal(flag)
	if err != nil {
		return fmt.Errorf("failed to encode do_not_email flag: %w", err)
	}

	_, err = s.db.Pool().Exec(ctx,
		`INSERT INTO user_meta (user_id, meta_key, meta_value)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, meta_key) DO UPDATE SET meta_value = $3`,
		id, doNotEmailKey, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to set do_not_email flag: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID int64) (*SyncRecord, error) {
	var raw []byte
	err := s.db.Pool().QueryRow(ctx,
		`SELECT meta_value FROM user_meta WHERE user_id = $1 AND meta_key = $2`,
		userID, MetaKey,
	).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sync record: %w", err)
	}

	var rec SyncRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse sync record: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) Put(ctx context.Context, userID int64, rec *SyncRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode sync record: %w", err)
	}

	_, err = s.db.Pool().Exec(ctx,
		`INSERT INTO user_meta (user_id, meta_key, meta_value)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, meta_key) DO UPDATE SET meta_value = $3`,
		userID, MetaKey, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to save sync record: %w", err)
	}

	s.logger.Debug("Saved sync record",
		zap.Int64("user_id", userID),
		zap.Int("marketo_id", rec.MarketoID))
	return nil
}

// ListUserIDs returns all user ids, for bulk resync runs.
func (s *PostgresStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.Pool().Query(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
