package core

import "sort"

// DefaultRetentionCap is the number of datasets kept per owner.
const DefaultRetentionCap = 5

// SelectEvictions returns the IDs of datasets that fall outside the newest
// keep entries. Input is expected newest first; it is re-sorted by upload
// time descending with ties broken by ID descending, so the result does not
// depend on how the caller ordered same-instant uploads.
func SelectEvictions(datasets []DatasetRef, keep int) []int64 {
	if keep < 0 {
		keep = 0
	}
	if len(datasets) <= keep {
		return nil
	}

	ordered := make([]DatasetRef, len(datasets))
	copy(ordered, datasets)
	SortNewestFirst(ordered)

	evict := make([]int64, 0, len(ordered)-keep)
	for _, d := range ordered[keep:] {
		evict = append(evict, d.ID)
	}
	return evict
}

// SortNewestFirst orders refs by upload time descending, then ID descending.
func SortNewestFirst(refs []DatasetRef) {
	sort.SliceStable(refs, func(i, j int) bool {
		return newer(refs[i], refs[j])
	})
}

// SortDatasets orders datasets the same way as SortNewestFirst.
func SortDatasets(ds []Dataset) {
	sort.SliceStable(ds, func(i, j int) bool {
		return newer(ds[i].Ref(), ds[j].Ref())
	})
}

func newer(a, b DatasetRef) bool {
	if !a.UploadedAt.Equal(b.UploadedAt) {
		return a.UploadedAt.After(b.UploadedAt)
	}
	return a.ID > b.ID
}

// ReleaseFailure records a blob that could not be released after eviction.
type ReleaseFailure struct {
	DatasetID int64
	BlobKey   string
	Err       error
}

// RetentionReport describes one retention pass.
type RetentionReport struct {
	Evicted         []int64
	ReleaseFailures []ReleaseFailure
}

// Leaked reports whether any evicted dataset's bytes were not released.
func (r RetentionReport) Leaked() bool {
	return len(r.ReleaseFailures) > 0
}
