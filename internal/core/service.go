package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/equipstat/internal/logging"
	"github.com/JonMunkholm/equipstat/internal/metrics"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Aliases       *AliasTable
	RetentionCap  int
	UploadTimeout time.Duration
	MaxConcurrent int
	MaxWait       time.Duration
	Clock         clockwork.Clock
}

func (o *Options) withDefaults() {
	if o.Aliases == nil {
		o.Aliases = DefaultAliases()
	}
	if o.RetentionCap <= 0 {
		o.RetentionCap = DefaultRetentionCap
	}
	if o.UploadTimeout <= 0 {
		o.UploadTimeout = 10 * time.Minute
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
}

// Service provides dataset upload, listing, pagination and export.
type Service struct {
	store   DatasetStore
	blobs   BlobStore
	opts    Options
	limiter *UploadLimiter
}

// NewService creates a Service over a metadata store and a blob store.
func NewService(store DatasetStore, blobs BlobStore, opts Options) (*Service, error) {
	if store == nil {
		return nil, errors.New("dataset store is required")
	}
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	opts.withDefaults()

	return &Service{
		store:   store,
		blobs:   blobs,
		opts:    opts,
		limiter: NewUploadLimiter(opts.MaxConcurrent, opts.MaxWait),
	}, nil
}

// Aliases returns the alias table the service resolves headers with.
func (s *Service) Aliases() *AliasTable {
	return s.opts.Aliases
}

// RetentionCap returns the number of datasets kept per owner.
func (s *Service) RetentionCap() int {
	return s.opts.RetentionCap
}

// UploadResult is returned by Upload.
type UploadResult struct {
	Dataset   Dataset
	Retention RetentionReport
}

// Upload validates, stores and admits a new dataset for owner.
//
// The file is ingested before anything is written, so a validation failure
// leaves no trace. After admission, datasets beyond the retention cap are
// evicted and their bytes released; release failures are logged, counted and
// recorded as orphans but do not fail the upload.
func (s *Service) Upload(ctx context.Context, ownerID, fileName string, r io.Reader) (*UploadResult, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		metrics.RecordIngest(metrics.OutcomeRejected)
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.opts.UploadTimeout)
	defer cancel()

	log := logging.WithFields(ctx, "owner", ownerID, "file", fileName)
	start := s.opts.Clock.Now()

	data, err := io.ReadAll(r)
	if err != nil {
		metrics.RecordIngest(metrics.OutcomeFailed)
		return nil, fmt.Errorf("read upload: %w", err)
	}

	res, err := IngestCSV(bytes.NewReader(data), s.opts.Aliases)
	if err != nil {
		metrics.RecordIngest(metrics.OutcomeInvalid)
		log.Info("upload rejected", "error", err)
		return nil, err
	}

	key := newBlobKey()
	if err := s.blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		metrics.RecordIngest(metrics.OutcomeFailed)
		return nil, fmt.Errorf("store upload: %w", err)
	}

	created, evicted, err := s.store.Admit(ctx, NewDataset{
		OwnerID:          ownerID,
		OriginalFilename: fileName,
		BlobKey:          key,
		RowCount:         res.RowCount(),
		Summary:          res.Summary,
	}, s.opts.RetentionCap)
	if err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			s.recordOrphan(ctx, 0, key, delErr)
		}
		metrics.RecordIngest(metrics.OutcomeFailed)
		return nil, fmt.Errorf("admit dataset: %w", err)
	}

	report := s.releaseEvicted(ctx, evicted)

	metrics.RecordIngest(metrics.OutcomeAccepted)
	metrics.IngestDuration.Observe(s.opts.Clock.Since(start).Seconds())
	metrics.IngestRows.Observe(float64(res.RowCount()))

	log.Info("upload admitted",
		"dataset_id", created.ID,
		"rows", created.RowCount,
		"evicted", len(report.Evicted),
		"release_failures", len(report.ReleaseFailures),
	)

	return &UploadResult{Dataset: created, Retention: report}, nil
}

// releaseEvicted deletes the blobs of evicted datasets.
func (s *Service) releaseEvicted(ctx context.Context, evicted []Dataset) RetentionReport {
	var report RetentionReport
	for _, ds := range evicted {
		report.Evicted = append(report.Evicted, ds.ID)
		metrics.DatasetsEvicted.Inc()

		if err := s.blobs.Delete(ctx, ds.BlobKey); err != nil {
			report.ReleaseFailures = append(report.ReleaseFailures, ReleaseFailure{
				DatasetID: ds.ID,
				BlobKey:   ds.BlobKey,
				Err:       err,
			})
			s.recordOrphan(ctx, ds.ID, ds.BlobKey, err)
		}
	}
	return report
}

// recordOrphan surfaces a failed blob release.
func (s *Service) recordOrphan(ctx context.Context, datasetID int64, key string, cause error) {
	metrics.BlobReleaseFailures.Inc()
	logging.FromContext(ctx).Warn("blob release failed, dataset metadata already removed",
		"dataset_id", datasetID,
		"blob_key", key,
		"error", cause,
	)
	if err := s.store.RecordOrphan(ctx, key, cause); err != nil {
		logging.FromContext(ctx).Error("failed to record orphaned blob",
			"blob_key", key,
			"error", err,
		)
	}
}

// List returns the owner's newest datasets, up to the retention cap.
func (s *Service) List(ctx context.Context, ownerID string) ([]Dataset, error) {
	return s.store.List(ctx, ownerID, s.opts.RetentionCap)
}

// Get returns one of the owner's datasets.
func (s *Service) Get(ctx context.Context, ownerID string, id int64) (Dataset, error) {
	return s.store.Get(ctx, ownerID, id)
}

// Delete removes one of the owner's datasets and releases its bytes.
func (s *Service) Delete(ctx context.Context, ownerID string, id int64) error {
	ds, err := s.store.Delete(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, ds.BlobKey); err != nil {
		s.recordOrphan(ctx, ds.ID, ds.BlobKey, err)
	}
	return nil
}

// Reprocess re-runs the pipeline over the dataset's stored bytes.
func (s *Service) Reprocess(ctx context.Context, ownerID string, id int64) (Dataset, *IngestResult, error) {
	ds, err := s.store.Get(ctx, ownerID, id)
	if err != nil {
		return Dataset{}, nil, err
	}

	rc, err := s.blobs.Open(ctx, ds.BlobKey)
	if err != nil {
		return Dataset{}, nil, fmt.Errorf("open dataset %d: %w", id, err)
	}
	defer rc.Close()

	res, err := IngestCSV(rc, s.opts.Aliases)
	if err != nil {
		return Dataset{}, nil, err
	}
	return ds, res, nil
}

// Rows returns a page of the dataset's normalized rows.
func (s *Service) Rows(ctx context.Context, ownerID string, id int64, offset, limit int) (RowWindow, error) {
	_, res, err := s.Reprocess(ctx, ownerID, id)
	if err != nil {
		return RowWindow{}, err
	}
	return Window(res.Rows, offset, limit), nil
}

// UploadLimiterStatus returns the current upload limiter state.
func (s *Service) UploadLimiterStatus() UploadLimiterStatus {
	return s.limiter.Status()
}

// WaitForUploads blocks until in-flight uploads finish or ctx is done.
func (s *Service) WaitForUploads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func newBlobKey() string {
	return "datasets/" + uuid.NewString() + ".csv"
}
