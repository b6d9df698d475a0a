package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lingopal/internal/types"
)

// --- Mock Rows for Query ---

// mockRows implements pgx.Rows for testing Query results. Each entry is a
// scan function populating one row, in the style of mockRow.scanFn.
type mockRows struct {
	rows    []func(dest ...any) error
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func newMockRows(rows ...func(dest ...any) error) *mockRows {
	return &mockRows{rows: rows, idx: -1}
}

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.rows)
}

func (r *mockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	return r.rows[r.idx](dest...)
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

// sweepScanFn populates scan destinations in sweepColumns order from the
// given record.
func sweepScanFn(rec types.SweepRecord) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = rec.ID
		*dest[1].(*types.SweepKind) = rec.Kind
		*dest[2].(*time.Time) = rec.StartedAt
		*dest[3].(**time.Time) = rec.FinishedAt
		*dest[4].(*types.SweepStatus) = rec.Status
		*dest[5].(*int) = rec.Processed
		*dest[6].(*int) = rec.Sent
		*dest[7].(*int) = rec.Failed
		if rec.Note != "" {
			note := rec.Note
			*dest[8].(**string) = &note
		}
		return nil
	}
}

// --- SweepHistoryRepository Tests ---

func TestSweepHistoryRepository_Start_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSweepHistoryRepository(db)

	startedAt := time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sqlArgs := args.Get(2).([]any)
			assert.Equal(t, "sweep_abc", sqlArgs[0])
			assert.Equal(t, "nightly", sqlArgs[1])
			assert.Equal(t, startedAt, sqlArgs[2])
			assert.Equal(t, "running", sqlArgs[3])
		}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Start(context.Background(), "sweep_abc", types.SweepNightly, startedAt)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestSweepHistoryRepository_Start_Duplicate(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSweepHistoryRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"})

	err := repo.Start(context.Background(), "sweep_abc", types.SweepDispatch, time.Now().UTC())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictSweepRunning, appErr.Code)
}

func TestSweepHistoryRepository_Start_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSweepHistoryRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Start(context.Background(), "sweep_abc", types.SweepDispatch, time.Now().UTC())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestSweepHistoryRepository_Finish_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSweepHistoryRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sqlArgs := args.Get(2).([]any)
			assert.Equal(t, "sweep_abc", sqlArgs[0])
			assert.Equal(t, "succeeded", sqlArgs[2])
			assert.Equal(t, 12, sqlArgs[3])
			assert.Equal(t, 9, sqlArgs[4])
			assert.Equal(t, 1, sqlArgs[5])
			// empty note stored as NULL
			note, ok := sqlArgs[6].(*string)
			require.True(t, ok)
			assert.Nil(t, note)
		}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	totals := types.SweepTotals{Processed: 12, Sent: 9, Failed: 1}
	err := repo.Finish(context.Background(), "sweep_abc", types.SweepStatusSucceeded, totals, "")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestSweepHistoryRepository_Finish_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSweepHistoryRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.Finish(context.Background(), "sweep_missing", types.SweepStatusFailed, types.SweepTotals{}, "boom")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundSweep, appErr.Code)
}

func TestSweepHistoryRepository_Finish_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSweepHistoryRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("timeout"))

	err := repo.Finish(context.Background(), "sweep_abc", types.SweepStatusSucceeded, types.SweepTotals{}, "")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestSweepHistoryRepository_Recent_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSweepHistoryRepository(db)

	started := time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC)
	finished := started.Add(2 * time.Second)

	rows := newMockRows(
		sweepScanFn(types.SweepRecord{
			ID: "sweep_2", Kind: types.SweepDispatch, StartedAt: started.Add(time.Hour),
			FinishedAt: &finished, Status: types.SweepStatusSucceeded,
			Processed: 40, Sent: 3,
		}),
		sweepScanFn(types.SweepRecord{
			ID: "sweep_1", Kind: types.SweepNightly, StartedAt: started,
			Status: types.SweepStatusFailed, Note: "subscriber snapshot failed",
		}),
	)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	records, err := repo.Recent(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "sweep_2", records[0].ID)
	assert.Equal(t, types.SweepDispatch, records[0].Kind)
	require.NotNil(t, records[0].FinishedAt)
	assert.Equal(t, 40, records[0].Processed)
	assert.Empty(t, records[0].Note)

	assert.Equal(t, "sweep_1", records[1].ID)
	assert.Nil(t, records[1].FinishedAt)
	assert.Equal(t, types.SweepStatusFailed, records[1].Status)
	assert.Equal(t, "subscriber snapshot failed", records[1].Note)

	db.AssertExpectations(t)
}

func TestSweepHistoryRepository_Recent_QueryError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSweepHistoryRepository(db)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return((*mockRows)(nil), errors.New("connection refused"))

	records, err := repo.Recent(context.Background(), 20)
	require.Error(t, err)
	assert.Nil(t, records)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestSweepHistoryRepository_FetchArchivable_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSweepHistoryRepository(db)

	cutoff := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	old := cutoff.Add(-48 * time.Hour)

	rows := newMockRows(
		sweepScanFn(types.SweepRecord{
			ID: "sweep_old", Kind: types.SweepDispatch, StartedAt: old,
			Status: types.SweepStatusSucceeded,
		}),
	)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sqlArgs := args.Get(2).([]any)
			assert.Equal(t, cutoff, sqlArgs[0])
			assert.Equal(t, "running", sqlArgs[1])
			assert.Equal(t, 500, sqlArgs[2])
		}).
		Return(rows, nil)

	records, err := repo.FetchArchivable(context.Background(), cutoff, 500)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "sweep_old", records[0].ID)

	db.AssertExpectations(t)
}

func TestSweepHistoryRepository_FetchArchivable_ScanError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSweepHistoryRepository(db)

	rows := newMockRows(sweepScanFn(types.SweepRecord{}))
	rows.scanErr = errors.New("scan failed")

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	_, err := repo.FetchArchivable(context.Background(), time.Now().UTC(), 100)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestSweepHistoryRepository_DeleteByIDs_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSweepHistoryRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 2"), nil)

	deleted, err := repo.DeleteByIDs(context.Background(), []string{"sweep_1", "sweep_2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	db.AssertExpectations(t)
}

func TestSweepHistoryRepository_DeleteByIDs_EmptySkipsQuery(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSweepHistoryRepository(db)

	deleted, err := repo.DeleteByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, deleted)
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepHistoryRepository_DeleteByIDs_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSweepHistoryRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	_, err := repo.DeleteByIDs(context.Background(), []string{"sweep_1"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
