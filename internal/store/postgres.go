// Package store persists dataset metadata.
//
// Postgres is the production implementation; Memory backs tests and local
// tooling. Both satisfy core.DatasetStore.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/equipstat/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const datasetColumns = `id, owner_id, original_filename, blob_key, uploaded_at, row_count, summary`

// Postgres stores dataset metadata in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres returns a store over an open pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Ping verifies the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(row rowScanner) (core.Dataset, error) {
	var ds core.Dataset
	err := row.Scan(
		&ds.ID,
		&ds.OwnerID,
		&ds.OriginalFilename,
		&ds.BlobKey,
		&ds.UploadedAt,
		&ds.RowCount,
		&ds.Summary,
	)
	return ds, err
}

// Admit inserts ds and evicts the owner's datasets beyond keep.
//
// The transaction holds a per-owner advisory lock, so concurrent uploads by
// the same owner are serialized and can never leave more than keep rows.
func (p *Postgres) Admit(ctx context.Context, ds core.NewDataset, keep int) (core.Dataset, []core.Dataset, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return core.Dataset{}, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, ds.OwnerID); err != nil {
		return core.Dataset{}, nil, fmt.Errorf("lock owner: %w", err)
	}

	created, err := scanDataset(tx.QueryRow(ctx,
		`INSERT INTO datasets (owner_id, original_filename, blob_key, row_count, summary)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+datasetColumns,
		ds.OwnerID, ds.OriginalFilename, ds.BlobKey, ds.RowCount, ds.Summary,
	))
	if err != nil {
		return core.Dataset{}, nil, fmt.Errorf("insert dataset: %w", err)
	}

	refs, err := ownerRefs(ctx, tx, ds.OwnerID)
	if err != nil {
		return core.Dataset{}, nil, err
	}

	var evicted []core.Dataset
	if ids := core.SelectEvictions(refs, keep); len(ids) > 0 {
		rows, err := tx.Query(ctx,
			`DELETE FROM datasets WHERE owner_id = $1 AND id = ANY($2)
			 RETURNING `+datasetColumns,
			ds.OwnerID, ids,
		)
		if err != nil {
			return core.Dataset{}, nil, fmt.Errorf("evict datasets: %w", err)
		}
		evicted, err = collectDatasets(rows)
		if err != nil {
			return core.Dataset{}, nil, fmt.Errorf("evict datasets: %w", err)
		}
		core.SortDatasets(evicted)
	}

	if err := tx.Commit(ctx); err != nil {
		return core.Dataset{}, nil, fmt.Errorf("commit: %w", err)
	}
	return created, evicted, nil
}

func ownerRefs(ctx context.Context, tx pgx.Tx, ownerID string) ([]core.DatasetRef, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, uploaded_at FROM datasets
		 WHERE owner_id = $1
		 ORDER BY uploaded_at DESC, id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list owner datasets: %w", err)
	}
	refs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.DatasetRef, error) {
		var ref core.DatasetRef
		err := row.Scan(&ref.ID, &ref.UploadedAt)
		return ref, err
	})
	if err != nil {
		return nil, fmt.Errorf("list owner datasets: %w", err)
	}
	return refs, nil
}

func collectDatasets(rows pgx.Rows) ([]core.Dataset, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Dataset, error) {
		return scanDataset(row)
	})
}

// List returns up to limit of the owner's datasets, newest first.
func (p *Postgres) List(ctx context.Context, ownerID string, limit int) ([]core.Dataset, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+datasetColumns+` FROM datasets
		 WHERE owner_id = $1
		 ORDER BY uploaded_at DESC, id DESC
		 LIMIT $2`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	out, err := collectDatasets(rows)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	return out, nil
}

// Get returns one of the owner's datasets or core.ErrDatasetNotFound.
func (p *Postgres) Get(ctx context.Context, ownerID string, id int64) (core.Dataset, error) {
	ds, err := scanDataset(p.pool.QueryRow(ctx,
		`SELECT `+datasetColumns+` FROM datasets WHERE owner_id = $1 AND id = $2`,
		ownerID, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Dataset{}, core.ErrDatasetNotFound
	}
	if err != nil {
		return core.Dataset{}, fmt.Errorf("get dataset %d: %w", id, err)
	}
	return ds, nil
}

// Delete removes one of the owner's datasets and returns it.
func (p *Postgres) Delete(ctx context.Context, ownerID string, id int64) (core.Dataset, error) {
	ds, err := scanDataset(p.pool.QueryRow(ctx,
		`DELETE FROM datasets WHERE owner_id = $1 AND id = $2 RETURNING `+datasetColumns,
		ownerID, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Dataset{}, core.ErrDatasetNotFound
	}
	if err != nil {
		return core.Dataset{}, fmt.Errorf("delete dataset %d: %w", id, err)
	}
	return ds, nil
}

// RecordOrphan remembers a blob whose release failed. Recording the same key
// again bumps its attempt count.
func (p *Postgres) RecordOrphan(ctx context.Context, blobKey string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO orphaned_blobs (blob_key, last_error) VALUES ($1, $2)
		 ON CONFLICT (blob_key) DO UPDATE
		 SET attempts = orphaned_blobs.attempts + 1,
		     last_error = EXCLUDED.last_error,
		     updated_at = now()`,
		blobKey, msg,
	)
	if err != nil {
		return fmt.Errorf("record orphan: %w", err)
	}
	return nil
}

// Orphans returns up to limit orphaned blob keys, least recently recorded
// first, so keys that keep failing rotate behind newer ones.
func (p *Postgres) Orphans(ctx context.Context, limit int) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT blob_key FROM orphaned_blobs ORDER BY updated_at, blob_key LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list orphans: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list orphans: %w", err)
	}
	return keys, nil
}

// ResolveOrphan forgets a released blob.
func (p *Postgres) ResolveOrphan(ctx context.Context, blobKey string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM orphaned_blobs WHERE blob_key = $1`, blobKey); err != nil {
		return fmt.Errorf("resolve orphan: %w", err)
	}
	return nil
}
