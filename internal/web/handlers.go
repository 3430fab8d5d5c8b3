package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/equipstat/internal/core"
	"github.com/JonMunkholm/equipstat/internal/logging"
	"github.com/JonMunkholm/equipstat/internal/report"
	"github.com/go-chi/chi/v5"
)

// multipartMemory is how much of a multipart form is buffered in memory
// before spilling to temporary files.
const multipartMemory = 8 << 20

// UploadResponse is returned by a successful upload.
type UploadResponse struct {
	Dataset   core.Dataset      `json:"dataset"`
	Retention RetentionResponse `json:"retention"`
}

// RetentionResponse reports what the upload's retention pass removed.
type RetentionResponse struct {
	Evicted         []int64 `json:"evicted"`
	ReleaseFailures int     `json:"release_failures"`
}

// RowsResponse is one page of a dataset's normalized rows.
type RowsResponse struct {
	DatasetID int64 `json:"dataset_id"`
	core.RowWindow
}

// owner returns the authenticated owner. The auth middleware guarantees one
// on every dataset route.
func owner(r *http.Request) string {
	id, _ := core.OwnerFromContext(r.Context())
	return id
}

// handleHealth reports liveness and upload slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"uploads": s.service.UploadLimiterStatus(),
	})
}

// handleListDatasets returns the owner's retained datasets, newest first.
func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.service.List(r.Context(), owner(r))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if datasets == nil {
		datasets = []core.Dataset{}
	}
	writeJSON(w, http.StatusOK, datasets)
}

// handleUpload ingests a multipart "file" field as a new dataset.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			s.respondError(w, r, fmt.Errorf("file too large: limit is %d bytes", s.cfg.Upload.MaxFileSize), http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, fmt.Errorf("no file provided: %w", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, fmt.Errorf("no file provided: %w", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	fileName := header.Filename
	if fileName == "" {
		fileName = "upload.csv"
	}

	res, err := s.service.Upload(r.Context(), owner(r), fileName, file)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	evicted := res.Retention.Evicted
	if evicted == nil {
		evicted = []int64{}
	}
	writeJSON(w, http.StatusCreated, UploadResponse{
		Dataset: res.Dataset,
		Retention: RetentionResponse{
			Evicted:         evicted,
			ReleaseFailures: len(res.Retention.ReleaseFailures),
		},
	})
}

// handleGetDataset returns one dataset's metadata and summary.
func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}
	ds, err := s.service.Get(r.Context(), owner(r), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// handleDeleteDataset removes a dataset and releases its stored bytes.
func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}
	if err := s.service.Delete(r.Context(), owner(r), id); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDatasetRows returns a window of normalized rows.
// Query: offset (default 0), limit (default from config, clamped to 1..2000).
func (s *Server) handleDatasetRows(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}

	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", s.cfg.Pagination.DefaultLimit)

	window, err := s.service.Rows(r.Context(), owner(r), id, offset, limit)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RowsResponse{DatasetID: id, RowWindow: window})
}

// handleDatasetCSV downloads the normalized rows as canonical CSV.
func (s *Server) handleDatasetCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}

	_, res, err := s.service.Reprocess(r.Context(), owner(r), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="dataset_%d.csv"`, id))

	// Headers are sent; a failure here can only be logged.
	if err := core.WriteCSV(w, res.Rows); err != nil {
		logging.FromContext(r.Context()).Warn("csv export interrupted", "dataset_id", id, "error", err)
	}
}

// handleDatasetReport renders the stored summary as an HTML report.
func (s *Server) handleDatasetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.datasetID(w, r)
	if !ok {
		return
	}

	ds, err := s.service.Get(r.Context(), owner(r), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="dataset_%d_report.html"`, id))
	if err := report.Dataset(ds).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Warn("report render interrupted", "dataset_id", id, "error", err)
	}
}

// datasetID parses the {id} URL parameter. An unparsable ID is reported as
// not found, the same as an ID owned by someone else.
func (s *Server) datasetID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, r, core.ErrDatasetNotFound, http.StatusNotFound)
		return 0, false
	}
	return id, true
}

// queryInt parses an integer query parameter, returning def when it is
// absent or malformed. Range clamping is left to the caller.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
