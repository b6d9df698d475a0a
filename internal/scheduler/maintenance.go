// Package scheduler implements the subscriber scheduling and lifecycle
// orchestration engine for the lingopal platform.
//
// This file implements sweep history archival: finished sweep rows older
// than the retention cutoff are serialized to JSONL, gzip-compressed, and
// written to cold storage before being deleted from the live table. The
// cycle runs in fixed-size batches so a long backlog cannot hold the
// database in one giant transaction-sized bite.
package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"lingopal/internal/types"
)

// DefaultHistoryRetention is how long finished sweep rows stay queryable
// before archival.
const DefaultHistoryRetention = 30 * 24 * time.Hour

// DefaultArchiveBatchSize is the maximum number of sweep rows per archive
// object.
const DefaultArchiveBatchSize = 500

// SweepHistoryStore defines the database operations needed by the
// HistoryArchiver.
type SweepHistoryStore interface {
	// FetchArchivable returns finished sweep rows started before the
	// cutoff, oldest first. Running rows are never archived.
	//
	// SQL: SELECT ... FROM sweep_history WHERE started_at < $1
	//      AND status != 'running' ORDER BY started_at ASC LIMIT $2
	FetchArchivable(ctx context.Context, olderThan time.Time, limit int) ([]types.SweepRecord, error)

	// DeleteByIDs removes sweep rows after their batch is safely in cold
	// storage. Returns the number of rows actually deleted.
	//
	// SQL: DELETE FROM sweep_history WHERE id = ANY($1)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// ArchiveStore abstracts cold storage for compressed sweep history
// batches. Single-node deployments use FilesystemArchiveStore; an object
// store client satisfies the same contract.
type ArchiveStore interface {
	// Put writes one archive object under the given slash-separated key.
	Put(ctx context.Context, key string, data []byte) error
}

// HistoryArchiver moves aged sweep history to cold storage.
type HistoryArchiver struct {
	history   SweepHistoryStore
	store     ArchiveStore
	retention time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewHistoryArchiver creates a new HistoryArchiver. Non-positive retention
// or batch size fall back to the package defaults.
func NewHistoryArchiver(history SweepHistoryStore, store ArchiveStore, retention time.Duration, batchSize int, logger *slog.Logger) *HistoryArchiver {
	if logger == nil {
		logger = slog.Default()
	}
	if retention <= 0 {
		retention = DefaultHistoryRetention
	}
	if batchSize <= 0 {
		batchSize = DefaultArchiveBatchSize
	}
	return &HistoryArchiver{
		history:   history,
		store:     store,
		retention: retention,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Archive runs the fetch-compress-put-delete cycle until the backlog older
// than the retention cutoff is drained:
//
//  1. Fetch a batch via FetchArchivable.
//  2. Serialize to JSONL and gzip-compress.
//  3. Put the object under "sweeps/YYYY/MM/batch_{uuid}.jsonl.gz".
//  4. Delete the archived rows via DeleteByIDs.
//
// The delete runs only after the put succeeds, so a failure at any point
// leaves the rows in place for the next run. A put that succeeds before a
// failed delete produces a duplicate archive object on retry, never data
// loss.
//
// Returns the count of rows archived and deleted.
func (a *HistoryArchiver) Archive(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-a.retention)
	totalArchived := 0

	for {
		records, err := a.history.FetchArchivable(ctx, cutoff, a.batchSize)
		if err != nil {
			return totalArchived, fmt.Errorf("fetching archivable sweeps: %w", err)
		}
		if len(records) == 0 {
			break
		}

		data, err := compressSweepRecords(records)
		if err != nil {
			return totalArchived, fmt.Errorf("serializing sweep archive: %w", err)
		}

		key := archiveKey(now)
		if err := a.store.Put(ctx, key, data); err != nil {
			return totalArchived, fmt.Errorf("storing sweep archive %s: %w", key, err)
		}

		ids := make([]string, len(records))
		for i, rec := range records {
			ids[i] = rec.ID
		}
		deleted, err := a.history.DeleteByIDs(ctx, ids)
		if err != nil {
			return totalArchived, fmt.Errorf("deleting archived sweeps: %w", err)
		}
		totalArchived += int(deleted)

		a.logger.InfoContext(ctx, "archived sweep history batch",
			"batch_size", len(records),
			"deleted", deleted,
			"key", key,
			"total_archived", totalArchived,
		)

		// No rows deleted means another process already removed them; a
		// refetch would return the same batch forever.
		if deleted == 0 {
			break
		}
		// A short batch means the backlog is drained.
		if len(records) < a.batchSize {
			break
		}
	}

	return totalArchived, nil
}

// Sweep adapts Archive to the driver signature shared by the sweep
// services. Processed counts archived rows; nothing is sent.
func (a *HistoryArchiver) Sweep(ctx context.Context, now time.Time) (types.SweepTotals, error) {
	archived, err := a.Archive(ctx, now)
	return types.SweepTotals{Processed: archived}, err
}

// archiveKey builds the object key for one batch, segmented by year and
// month of the run for cheap lifecycle rules on the storage side.
func archiveKey(now time.Time) string {
	return fmt.Sprintf("sweeps/%d/%02d/batch_%s.jsonl.gz",
		now.Year(), now.Month(), uuid.New().String())
}

// serializeSweepRecordsJSONL serializes sweep rows to newline-delimited
// JSON, one row per line.
func serializeSweepRecordsJSONL(records []types.SweepRecord) ([]byte, error) {
	var buf []byte
	for _, rec := range records {
		line, err := jsonMarshal(rec)
		if err != nil {
			return nil, fmt.Errorf("marshaling sweep record %s: %w", rec.ID, err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return buf, nil
}

// jsonMarshal is a package-level var so tests can inject marshal failures.
var jsonMarshal = json.Marshal

// compressSweepRecords serializes and gzip-compresses one batch.
func compressSweepRecords(records []types.SweepRecord) ([]byte, error) {
	raw, err := serializeSweepRecordsJSONL(records)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return nil, fmt.Errorf("compressing sweep archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing sweep archive: %w", err)
	}
	return buf.Bytes(), nil
}

// -----------------------------------------------------------------------------
// Filesystem Archive Store
// -----------------------------------------------------------------------------

// FilesystemArchiveStore writes archive objects under a root directory,
// mapping slash-separated keys to nested subdirectories.
type FilesystemArchiveStore struct {
	root string
}

// NewFilesystemArchiveStore creates a FilesystemArchiveStore rooted at dir.
// The directory is created on first Put, not here.
func NewFilesystemArchiveStore(dir string) *FilesystemArchiveStore {
	return &FilesystemArchiveStore{root: dir}
}

// Put writes the object to root/key. The write goes to a temp file first
// and is renamed into place only once complete, so a crashed run never
// leaves a truncated archive that looks finished.
func (s *FilesystemArchiveStore) Put(_ context.Context, key string, data []byte) error {
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating archive directory for %s: %w", key, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing archive %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalizing archive %s: %w", key, err)
	}
	return nil
}
