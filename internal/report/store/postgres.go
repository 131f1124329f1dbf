package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"hash/fnv"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"freewalk/internal/geo"
	"freewalk/internal/outbox"
	"freewalk/internal/report/models"
	"freewalk/internal/report/service"
	id "freewalk/pkg/domain"
	"freewalk/pkg/platform/sentinel"
	txcontext "freewalk/pkg/platform/tx"
)

const defaultTxTimeout = 10 * time.Second

// PostgresStore persists violations, reports and balances in Postgres. A unit
// of work runs in one READ COMMITTED transaction holding transaction-scoped
// advisory locks for its keys; lock_timeout bounds the wait.
type PostgresStore struct {
	db          *sql.DB
	outbox      *outbox.PostgresStore
	lockTimeout time.Duration
	txTimeout   time.Duration
}

type PostgresOption func(*PostgresStore)

func WithPostgresLockTimeout(d time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithTxTimeout bounds a unit of work whose context carries no deadline.
func WithTxTimeout(d time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		db:          db,
		outbox:      outbox.NewPostgres(db),
		lockTimeout: defaultLockTimeout,
		txTimeout:   defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunInLock implements service.UnitOfWork.
func (s *PostgresStore) RunInLock(ctx context.Context, keys []string, fn func(ctx context.Context, tx service.Tx) error) (err error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if len(keys) > 0 {
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
			return classify(fmt.Errorf("set lock timeout: %w", err))
		}
		for _, key := range keys {
			if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryKey(key)); err != nil {
				return classify(fmt.Errorf("acquire advisory lock %q: %w", key, err))
			}
		}
	}

	if err = fn(txcontext.WithTx(ctx, tx), &postgresTx{tx: tx, outbox: s.outbox}); err != nil {
		return classify(err)
	}
	if err = tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func advisoryKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64()) //nolint:gosec // wraparound is fine for a lock id
}

// classify tags driver failures with the sentinel the service retries or
// reports on. Errors that are already tagged pass through.
func classify(err error) error {
	if err == nil || errors.Is(err, sentinel.ErrConflict) || errors.Is(err, sentinel.ErrUnavailable) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "55P03":
			return fmt.Errorf("%w: %w", sentinel.ErrConflict, err)
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03",
			pgErr.Code == "53300":
			return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
		}
		return err
	}
	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return err
}

type postgresTx struct {
	tx     *sql.Tx
	outbox *outbox.PostgresStore
}

const violationColumns = `id, category, latitude, longitude, entity_reference, ward_id, created_at, fresh_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanViolation(row rowScanner) (models.Violation, error) {
	var (
		v        models.Violation
		category string
		ref      sql.NullString
		wardID   sql.NullInt64
	)
	if err := row.Scan(&v.ID, &category, &v.Location.Lat, &v.Location.Lon, &ref, &wardID, &v.CreatedAt, &v.FreshAt); err != nil {
		return models.Violation{}, err
	}
	v.Category = id.Category(category)
	v.EntityRef = ref.String
	if wardID.Valid {
		w := id.WardID(wardID.Int64)
		v.WardID = &w
	}
	return v, nil
}

func (t *postgresTx) FindFreshByEntity(ctx context.Context, category id.Category, entityRef string, freshSince time.Time) (*models.Violation, error) {
	query := `SELECT ` + violationColumns + `
		FROM violations
		WHERE category = $1 AND entity_reference = $2 AND fresh_at >= $3
		ORDER BY id
		LIMIT 1`
	v, err := scanViolation(t.tx.QueryRowContext(ctx, query, string(category), entityRef, freshSince))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find violation by entity reference: %w", err)
	}
	return &v, nil
}

func (t *postgresTx) FindInBox(ctx context.Context, category id.Category, box geo.BBox, freshSince *time.Time) ([]models.Violation, error) {
	args := []any{string(category), box.MinLat, box.MaxLat}
	var lonClauses []string
	for _, r := range box.LonRanges() {
		args = append(args, r[0], r[1])
		lonClauses = append(lonClauses, fmt.Sprintf("longitude BETWEEN $%d AND $%d", len(args)-1, len(args)))
	}
	query := `SELECT ` + violationColumns + `
		FROM violations
		WHERE category = $1 AND latitude BETWEEN $2 AND $3
		AND (` + strings.Join(lonClauses, " OR ") + `)`
	if freshSince != nil {
		args = append(args, *freshSince)
		query += fmt.Sprintf(" AND fresh_at >= $%d", len(args))
	}
	query += " ORDER BY id"

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find violations in box: %w", err)
	}
	defer rows.Close()

	var out []models.Violation
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate violations: %w", err)
	}
	return out, nil
}

func (t *postgresTx) InsertViolation(ctx context.Context, v models.Violation) (id.ViolationID, error) {
	var wardID sql.NullInt64
	if v.WardID != nil {
		wardID = sql.NullInt64{Int64: int64(*v.WardID), Valid: true}
	}
	ref := sql.NullString{String: v.EntityRef, Valid: v.EntityRef != ""}

	query := `
		INSERT INTO violations (category, latitude, longitude, entity_reference, ward_id, created_at, fresh_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	var violationID id.ViolationID
	err := t.tx.QueryRowContext(ctx, query,
		string(v.Category), v.Location.Lat, v.Location.Lon, ref, wardID, v.CreatedAt, v.FreshAt,
	).Scan(&violationID)
	if err != nil {
		return 0, fmt.Errorf("insert violation: %w", err)
	}
	return violationID, nil
}

func (t *postgresTx) TouchViolation(ctx context.Context, violationID id.ViolationID, now time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE violations SET fresh_at = GREATEST(fresh_at, $2) WHERE id = $1`,
		int64(violationID), now,
	)
	if err != nil {
		return fmt.Errorf("touch violation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch violation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("touch violation %d: %w", violationID, sentinel.ErrNotFound)
	}
	return nil
}

func (t *postgresTx) InsertReport(ctx context.Context, r models.Report) (id.ReportID, error) {
	query := `
		INSERT INTO reports (violation_id, user_id, storage_reference, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var reportID id.ReportID
	err := t.tx.QueryRowContext(ctx, query,
		int64(r.ViolationID), r.UserID.String(), r.StorageRef, r.CreatedAt,
	).Scan(&reportID)
	if err != nil {
		return 0, fmt.Errorf("insert report: %w", err)
	}
	return reportID, nil
}

func (t *postgresTx) AddPoints(ctx context.Context, userID id.UserID, delta int64) (int64, error) {
	var total int64
	err := t.tx.QueryRowContext(ctx,
		`UPDATE users SET total_points = total_points + $2 WHERE id = $1 RETURNING total_points`,
		userID.String(), delta,
	).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("add points: %w", err)
	}
	return total, nil
}

func (t *postgresTx) Append(ctx context.Context, e outbox.Event) error {
	return t.outbox.Append(txcontext.WithTx(ctx, t.tx), e)
}
