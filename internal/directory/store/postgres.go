package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"tripkey/internal/directory/models"
	id "tripkey/pkg/domain"
	"tripkey/pkg/platform/sentinel"
	txcontext "tripkey/pkg/platform/tx"
)

// PostgresStore persists trips and members in PostgreSQL. Inside a transaction
// started by RunInTx it joins that transaction and locks trip rows on read.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const tripColumns = `id, name, start_date, end_date, timezone, role_map, member_count, activity_count, creator_id, created_at, updated_at`

func (s *PostgresStore) CreateTrip(ctx context.Context, trip *models.Trip) error {
	roleMap, err := json.Marshal(trip.RoleMap)
	if err != nil {
		return fmt.Errorf("encode role map: %w", err)
	}
	query := `
		INSERT INTO trips (` + tripColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(trip.ID),
		trip.Name,
		trip.StartDate,
		trip.EndDate,
		trip.Timezone,
		string(roleMap),
		trip.MemberCount,
		trip.ActivityCount,
		uuid.UUID(trip.CreatorID),
		trip.CreatedAt,
		trip.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("trip %s: %w", trip.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create trip: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindTrip(ctx context.Context, tripID id.TripID) (*models.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`
	if _, inTx := txcontext.From(ctx); inTx {
		query += ` FOR UPDATE`
	}
	trip, err := scanTrip(txcontext.ExecutorFor(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(tripID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find trip: %w", err)
	}
	return trip, nil
}

func (s *PostgresStore) UpdateTrip(ctx context.Context, trip *models.Trip) error {
	roleMap, err := json.Marshal(trip.RoleMap)
	if err != nil {
		return fmt.Errorf("encode role map: %w", err)
	}
	query := `
		UPDATE trips
		SET role_map = $2, member_count = $3, activity_count = $4, updated_at = $5
		WHERE id = $1
	`
	res, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(trip.ID),
		string(roleMap),
		trip.MemberCount,
		trip.ActivityCount,
		trip.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update trip: %w", err)
	}
	return requireRow(res, "update trip")
}

const memberColumns = `id, trip_id, display_name, role, state, is_creator, is_child, joined_at, removed_at`

// CreateMember relies on the partial unique index over active display names.
func (s *PostgresStore) CreateMember(ctx context.Context, member *models.Member) error {
	query := `
		INSERT INTO members (` + memberColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(member.ID),
		uuid.UUID(member.TripID),
		member.DisplayName,
		string(member.Role),
		string(member.State),
		member.IsCreator,
		member.IsChild,
		member.JoinedAt,
		member.RemovedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("display name %q: %w", member.DisplayName, sentinel.ErrAlreadyUsed)
		}
		if isForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("create member: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindMember(ctx context.Context, tripID id.TripID, memberID id.MemberID) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE trip_id = $1 AND id = $2`
	member, err := scanMember(txcontext.ExecutorFor(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(tripID), uuid.UUID(memberID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find member: %w", err)
	}
	return member, nil
}

func (s *PostgresStore) UpdateMember(ctx context.Context, member *models.Member) error {
	query := `
		UPDATE members
		SET display_name = $3, role = $4, state = $5, removed_at = $6
		WHERE trip_id = $1 AND id = $2
	`
	res, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(member.TripID),
		uuid.UUID(member.ID),
		member.DisplayName,
		string(member.Role),
		string(member.State),
		member.RemovedAt,
	)
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	return requireRow(res, "update member")
}

func (s *PostgresStore) ListActiveMembers(ctx context.Context, tripID id.TripID) ([]*models.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM members
		WHERE trip_id = $1 AND state = $2
		ORDER BY joined_at, id
	`
	rows, err := txcontext.ExecutorFor(ctx, s.db).QueryContext(ctx, query, uuid.UUID(tripID), string(models.MemberStateActive))
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []*models.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	if len(out) == 0 {
		if _, err := s.FindTrip(ctx, tripID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type row interface {
	Scan(dest ...any) error
}

func scanTrip(r row) (*models.Trip, error) {
	var trip models.Trip
	var tripID, creatorID uuid.UUID
	var roleMap []byte
	if err := r.Scan(&tripID, &trip.Name, &trip.StartDate, &trip.EndDate, &trip.Timezone, &roleMap,
		&trip.MemberCount, &trip.ActivityCount, &creatorID, &trip.CreatedAt, &trip.UpdatedAt); err != nil {
		return nil, err
	}
	trip.ID = id.TripID(tripID)
	trip.CreatorID = id.MemberID(creatorID)
	trip.RoleMap = make(map[id.MemberID]models.Role)
	if len(roleMap) > 0 {
		if err := json.Unmarshal(roleMap, &trip.RoleMap); err != nil {
			return nil, fmt.Errorf("decode role map: %w", err)
		}
	}
	return &trip, nil
}

func scanMember(r row) (*models.Member, error) {
	var m models.Member
	var memberID, tripID uuid.UUID
	var role, state string
	var removedAt sql.NullTime
	if err := r.Scan(&memberID, &tripID, &m.DisplayName, &role, &state, &m.IsCreator, &m.IsChild, &m.JoinedAt, &removedAt); err != nil {
		return nil, err
	}
	m.ID = id.MemberID(memberID)
	m.TripID = id.TripID(tripID)
	m.Role = models.Role(role)
	m.State = models.MemberState(state)
	if removedAt.Valid {
		t := removedAt.Time
		m.RemovedAt = &t
	}
	return &m, nil
}

func requireRow(res sql.Result, op string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
