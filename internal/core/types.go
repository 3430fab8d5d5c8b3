// Package core provides the business logic for equipment dataset analytics.
// This package has no transport dependencies and can be used by any frontend.
package core

import (
	"context"
	"io"
	"time"
)

// Dataset is the persisted record of one upload.
// RowCount and Summary are written once at creation and never updated.
type Dataset struct {
	ID               int64          `json:"id"`
	OwnerID          string         `json:"-"`
	OriginalFilename string         `json:"original_filename"`
	BlobKey          string         `json:"-"`
	UploadedAt       time.Time      `json:"uploaded_at"`
	RowCount         int            `json:"row_count"`
	Summary          DatasetSummary `json:"summary"`
}

// NewDataset holds the fields the caller supplies when admitting a dataset.
// The store assigns ID and UploadedAt.
type NewDataset struct {
	OwnerID          string
	OriginalFilename string
	BlobKey          string
	RowCount         int
	Summary          DatasetSummary
}

// DatasetRef is the minimal view of a dataset the retention policy needs.
type DatasetRef struct {
	ID         int64
	UploadedAt time.Time
}

// Ref returns the retention view of d.
func (d Dataset) Ref() DatasetRef {
	return DatasetRef{ID: d.ID, UploadedAt: d.UploadedAt}
}

// DatasetStore persists dataset metadata.
//
// Admit inserts a dataset and evicts the owner's datasets beyond keep in one
// step, returning the created record and the evicted ones. Implementations
// must serialize Admit per owner so two concurrent uploads cannot both keep
// more than keep datasets.
type DatasetStore interface {
	Admit(ctx context.Context, ds NewDataset, keep int) (Dataset, []Dataset, error)
	List(ctx context.Context, ownerID string, limit int) ([]Dataset, error)
	Get(ctx context.Context, ownerID string, id int64) (Dataset, error)
	Delete(ctx context.Context, ownerID string, id int64) (Dataset, error)

	// RecordOrphan remembers a blob whose release failed.
	RecordOrphan(ctx context.Context, blobKey string, cause error) error
	// Orphans returns up to limit blob keys awaiting release, least recently
	// recorded first.
	Orphans(ctx context.Context, limit int) ([]string, error)
	// ResolveOrphan forgets a blob that has now been released.
	ResolveOrphan(ctx context.Context, blobKey string) error
}

// BlobStore holds raw upload bytes behind opaque keys.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
