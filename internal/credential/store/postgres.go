package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"tripkey/internal/credential/models"
	id "tripkey/pkg/domain"
	"tripkey/pkg/platform/sentinel"
	txcontext "tripkey/pkg/platform/tx"
)

// PostgresStore keeps credentials in trip_credentials, one row per trip.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, cred *models.Credential) error {
	query := `
		INSERT INTO trip_credentials (trip_id, hash, created_at, rotated_at, rotated_by)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(cred.TripID),
		cred.Hash,
		cred.CreatedAt,
		cred.RotatedAt,
		nullableMember(cred.RotatedBy),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("credential for trip %s: %w", cred.TripID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, tripID id.TripID) (*models.Credential, error) {
	query := `
		SELECT trip_id, hash, created_at, rotated_at, rotated_by
		FROM trip_credentials
		WHERE trip_id = $1
	`
	cred, err := scanCredential(txcontext.ExecutorFor(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(tripID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return cred, nil
}

// Replace is a single UPDATE, so the old hash stops verifying the moment it commits.
func (s *PostgresStore) Replace(ctx context.Context, cred *models.Credential) error {
	query := `
		UPDATE trip_credentials
		SET hash = $2, rotated_at = $3, rotated_by = $4
		WHERE trip_id = $1
	`
	res, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(cred.TripID),
		cred.Hash,
		cred.RotatedAt,
		nullableMember(cred.RotatedBy),
	)
	if err != nil {
		return fmt.Errorf("replace credential: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace credential rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListOrdered(ctx context.Context) ([]*models.Credential, error) {
	query := `
		SELECT c.trip_id, c.hash, c.created_at, c.rotated_at, c.rotated_by
		FROM trip_credentials c
		JOIN trips t ON t.id = c.trip_id
		ORDER BY t.created_at, t.id
	`
	rows, err := txcontext.ExecutorFor(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []*models.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return out, nil
}

type row interface {
	Scan(dest ...any) error
}

func scanCredential(r row) (*models.Credential, error) {
	var cred models.Credential
	var tripID uuid.UUID
	var rotatedBy uuid.NullUUID
	if err := r.Scan(&tripID, &cred.Hash, &cred.CreatedAt, &cred.RotatedAt, &rotatedBy); err != nil {
		return nil, err
	}
	cred.TripID = id.TripID(tripID)
	if rotatedBy.Valid {
		actor := id.MemberID(rotatedBy.UUID)
		cred.RotatedBy = &actor
	}
	return &cred, nil
}

func nullableMember(m *id.MemberID) uuid.NullUUID {
	if m == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*m), Valid: true}
}
