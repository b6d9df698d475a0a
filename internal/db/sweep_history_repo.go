package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"lingopal/internal/types"
)

// SweepHistoryRepository records one row per driver tick. The sweep runner
// writes a running row before doing any work and finalizes it afterwards,
// so a crash mid-sweep leaves a visible running row rather than silence.
type SweepHistoryRepository struct {
	db DBTX
}

// NewSweepHistoryRepository creates a new SweepHistoryRepository backed by
// the given database connection (pool or transaction).
func NewSweepHistoryRepository(db DBTX) *SweepHistoryRepository {
	return &SweepHistoryRepository{db: db}
}

// sweepColumns is the standard column set for sweep history queries.
const sweepColumns = `id, kind, started_at, finished_at, status,
	processed, sent, failed, note`

// scanSweepRecord scans a single sweep history row. The columns must match
// the order defined in sweepColumns.
func scanSweepRecord(row pgx.Row) (*types.SweepRecord, error) {
	var rec types.SweepRecord
	var note *string

	err := row.Scan(
		&rec.ID,
		&rec.Kind,
		&rec.StartedAt,
		&rec.FinishedAt,
		&rec.Status,
		&rec.Processed,
		&rec.Sent,
		&rec.Failed,
		&note,
	)
	if err != nil {
		return nil, err
	}

	if note != nil {
		rec.Note = *note
	}

	return &rec, nil
}

// Start inserts a running history row for a new sweep. The id is generated
// by the caller so the same UUID can tag log lines and outbound trace
// headers before the insert lands.
func (r *SweepHistoryRepository) Start(ctx context.Context, id string, kind types.SweepKind, startedAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sweep_history (id, kind, started_at, status)
		 VALUES ($1, $2, $3, $4)`,
		id, string(kind), startedAt, string(types.SweepStatusRunning),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictSweepRunning, "sweep already recorded", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record sweep start", err)
	}
	return nil
}

// Finish finalizes a sweep row with its outcome and totals. The finish
// timestamp is computed here rather than in SQL so the row's duration is
// measured against the same clock the runner logs with.
func (r *SweepHistoryRepository) Finish(ctx context.Context, id string, status types.SweepStatus, totals types.SweepTotals, note string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE sweep_history
		 SET finished_at = $2, status = $3, processed = $4, sent = $5, failed = $6, note = $7
		 WHERE id = $1`,
		id, time.Now().UTC(), string(status),
		totals.Processed, totals.Sent, totals.Failed, nilIfEmpty(note),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finalize sweep record", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSweep, "sweep record not found", nil)
	}
	return nil
}

// Recent returns the most recently started sweeps, newest first. Backs the
// ops status endpoint.
func (r *SweepHistoryRepository) Recent(ctx context.Context, limit int) ([]types.SweepRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sweepColumns+`
		 FROM sweep_history
		 ORDER BY started_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query sweep history", err)
	}
	defer rows.Close()

	var records []types.SweepRecord
	for rows.Next() {
		rec, err := scanSweepRecord(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan sweep record", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating sweep history", err)
	}

	return records, nil
}

// FetchArchivable returns finished sweep rows that started before the
// cutoff, oldest first, up to limit. The cutoff is computed in Go by the
// caller to avoid PostgreSQL interval parsing incompatibilities.
func (r *SweepHistoryRepository) FetchArchivable(ctx context.Context, olderThan time.Time, limit int) ([]types.SweepRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sweepColumns+`
		 FROM sweep_history
		 WHERE started_at < $1 AND status != $2
		 ORDER BY started_at ASC
		 LIMIT $3`,
		olderThan, string(types.SweepStatusRunning), limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query archivable sweeps", err)
	}
	defer rows.Close()

	var records []types.SweepRecord
	for rows.Next() {
		rec, err := scanSweepRecord(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan sweep record", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating archivable sweeps", err)
	}

	return records, nil
}

// DeleteByIDs removes the given sweep rows after their archive batch is
// safely on disk. Returns the number of rows actually deleted.
func (r *SweepHistoryRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.db.Exec(ctx,
		`DELETE FROM sweep_history WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete archived sweeps", err)
	}
	return tag.RowsAffected(), nil
}
