package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/medsimlabs/vitalcast/internal/domain"
)

// dispatchColumns must match the Scan order in scanDispatch.
const dispatchColumns = `id, session_id, patient_id, title, src, scheduled_at, status, attempts, created_at, updated_at`

// DispatchRepo implements domain.DispatchStore backed by PostgreSQL.
type DispatchRepo struct {
	pool *pgxpool.Pool
}

func NewDispatchRepo(pool *pgxpool.Pool) *DispatchRepo {
	return &DispatchRepo{pool: pool}
}

// storeErr maps low-level pgx failures onto the domain error taxonomy.
// Statement-level errors from the server keep their own message; anything
// else (dial failures, pool exhaustion, timeouts) is a store outage.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrDispatchNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

func scanDispatch(row pgx.Row) (*domain.ScheduledDispatch, error) {
	var d domain.ScheduledDispatch
	err := row.Scan(
		&d.ID, &d.SessionID, &d.PatientID, &d.Title, &d.Src,
		&d.ScheduledAt, &d.Status, &d.Attempts, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DispatchRepo) Create(ctx context.Context, nd domain.NewDispatch) (*domain.ScheduledDispatch, error) {
	d, err := scanDispatch(r.pool.QueryRow(ctx, `
		INSERT INTO scheduled_dispatches (session_id, patient_id, title, src, scheduled_at)
		VALUES ($1, $2, $3, $4, date_trunc('minute', $5::timestamptz))
		RETURNING `+dispatchColumns,
		nd.SessionID, nd.PatientID, nd.Title, nd.Src, nd.ScheduledAt))
	if err != nil {
		return nil, storeErr("create dispatch", err)
	}
	return d, nil
}

func (r *DispatchRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledDispatch, error) {
	d, err := scanDispatch(r.pool.QueryRow(ctx,
		`SELECT `+dispatchColumns+` FROM scheduled_dispatches WHERE id = $1`, id))
	if err != nil {
		return nil, storeErr("get dispatch", err)
	}
	return d, nil
}

func (r *DispatchRepo) List(ctx context.Context, filter domain.DispatchFilter) ([]domain.ScheduledDispatch, error) {
	query := `SELECT ` + dispatchColumns + ` FROM scheduled_dispatches WHERE 1=1`
	args := []any{}

	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		query += fmt.Sprintf(" AND session_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY scheduled_at DESC, id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list dispatches", err)
	}
	defer rows.Close()

	return collectDispatches(rows, "list dispatches")
}

// ClaimDue flips due pending rows to dispatching and returns them. The
// subquery with FOR UPDATE SKIP LOCKED makes the claim atomic across
// instances: two concurrent scans never claim the same row. The caller
// passes now already minute-truncated; the truncation is repeated here so
// the comparison matches the persisted resolution regardless.
func (r *DispatchRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledDispatch, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE scheduled_dispatches
		SET status = 'dispatching', claimed_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM scheduled_dispatches
			WHERE status = 'pending' AND scheduled_at <= date_trunc('minute', $1::timestamptz)
			ORDER BY scheduled_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+dispatchColumns,
		now, limit)
	if err != nil {
		return nil, storeErr("claim due dispatches", err)
	}
	defer rows.Close()

	due, err := collectDispatches(rows, "claim due dispatches")
	if err != nil {
		return nil, err
	}

	// RETURNING does not guarantee row order; restore the scan order.
	sort.Slice(due, func(i, j int) bool {
		if !due[i].ScheduledAt.Equal(due[j].ScheduledAt) {
			return due[i].ScheduledAt.Before(due[j].ScheduledAt)
		}
		return due[i].ID.String() < due[j].ID.String()
	})
	return due, nil
}

func (r *DispatchRepo) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_dispatches
		SET status = 'completed', claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'dispatching'
	`, id)
	if err != nil {
		return storeErr("mark dispatch completed", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDispatchNotFound
	}
	return nil
}

func (r *DispatchRepo) ReleaseForRetry(ctx context.Context, id uuid.UUID, maxAttempts int) (domain.DispatchStatus, error) {
	var status domain.DispatchStatus
	err := r.pool.QueryRow(ctx, `
		UPDATE scheduled_dispatches
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= $2 THEN 'failed' ELSE 'pending' END,
		    claimed_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'dispatching'
		RETURNING status
	`, id, maxAttempts).Scan(&status)
	if err != nil {
		return "", storeErr("release dispatch for retry", err)
	}
	return status, nil
}

func (r *DispatchRepo) ReleaseStaleClaims(ctx context.Context, claimedBefore time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_dispatches
		SET status = 'pending', claimed_at = NULL, updated_at = NOW()
		WHERE status = 'dispatching' AND claimed_at < $1
	`, claimedBefore)
	if err != nil {
		return 0, storeErr("release stale claims", err)
	}
	return tag.RowsAffected(), nil
}

func collectDispatches(rows pgx.Rows, op string) ([]domain.ScheduledDispatch, error) {
	var result []domain.ScheduledDispatch
	for rows.Next() {
		var d domain.ScheduledDispatch
		err := rows.Scan(
			&d.ID, &d.SessionID, &d.PatientID, &d.Title, &d.Src,
			&d.ScheduledAt, &d.Status, &d.Attempts, &d.CreatedAt, &d.UpdatedAt,
		)
		if err != nil {
			return nil, storeErr(op, err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return result, nil
}
