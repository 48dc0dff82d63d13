package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/justestif/spotify-catalog-etl/internal/config"
	"github.com/justestif/spotify-catalog-etl/internal/db"
	"github.com/justestif/spotify-catalog-etl/internal/logger"
	"github.com/justestif/spotify-catalog-etl/internal/pipeline"
	"github.com/justestif/spotify-catalog-etl/internal/spotify"
	"github.com/justestif/spotify-catalog-etl/internal/storage"
)

// FetchRunner runs the fetch pipeline. *pipeline.FetchService implements it.
type FetchRunner interface {
	Run(ctx context.Context, artistName string) (*pipeline.FetchResult, error)
}

// LoadRunner runs the load pipeline. *pipeline.Loader implements it.
type LoadRunner interface {
	Load(ctx context.Context, key string) (*pipeline.LoadResult, error)
}

// Handlers contains the trigger endpoints.
type Handlers struct {
	fetch      FetchRunner
	load       LoadRunner
	runTimeout time.Duration
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(fetch FetchRunner, load LoadRunner, runTimeout time.Duration) *Handlers {
	return &Handlers{
		fetch:      fetch,
		load:       load,
		runTimeout: runTimeout,
	}
}

// fetchRequest is the optional POST /fetch body.
type fetchRequest struct {
	ArtistName string `json:"artist_name"`
}

// loadRequest is the optional POST /load body.
type loadRequest struct {
	Key string `json:"key"`
}

type failedAlbum struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

type fetchResponse struct {
	Status        string        `json:"status"`
	Message       string        `json:"message"`
	RunID         string        `json:"run_id"`
	Artist        string        `json:"artist"`
	Key           string        `json:"key"`
	Location      string        `json:"location"`
	AlbumsListed  int           `json:"albums_listed"`
	AlbumsFetched int           `json:"albums_fetched"`
	Rows          int           `json:"rows"`
	Report        string        `json:"report"`
	FailedAlbums  []failedAlbum `json:"failed_albums,omitempty"`
}

type loadResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	RunID    string `json:"run_id"`
	Key      string `json:"key"`
	Location string `json:"location"`
	Table    string `json:"table"`
	Rows     int64  `json:"rows"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Health reports liveness (GET /healthz).
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Fetch runs the fetch pipeline (POST /fetch). The body is optional.
func (h *Handlers) Fetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if err := decodeOptional(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: "invalid request body"})
		return
	}

	ctx, cancel := h.runContext(r.Context())
	defer cancel()

	result, err := h.fetch.Run(ctx, req.ArtistName)
	if err != nil {
		h.writeError(w, "fetch", err)
		return
	}

	resp := fetchResponse{
		Status:        "success",
		Message:       result.Message,
		RunID:         result.RunID.String(),
		Artist:        result.Artist,
		Key:           result.Key,
		Location:      result.Location,
		AlbumsListed:  result.AlbumsListed,
		AlbumsFetched: result.AlbumsFetched,
		Rows:          result.Rows,
		Report:        result.Report.String(),
	}
	for _, f := range result.Report.Failed {
		resp.FailedAlbums = append(resp.FailedAlbums, failedAlbum{ID: f.AlbumID, Name: f.Name, Error: f.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Load runs the load pipeline (POST /load). The body is optional; without
// a key the configured default snapshot is loaded.
func (h *Handlers) Load(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := decodeOptional(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: "invalid request body"})
		return
	}

	ctx, cancel := h.runContext(r.Context())
	defer cancel()

	result, err := h.load.Load(ctx, req.Key)
	if err != nil {
		h.writeError(w, "load", err)
		return
	}

	writeJSON(w, http.StatusOK, loadResponse{
		Status:   "success",
		Message:  result.Message,
		RunID:    result.RunID.String(),
		Key:      result.Key,
		Location: result.Location,
		Table:    result.Table,
		Rows:     result.Rows,
	})
}

func (h *Handlers) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.runTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.runTimeout)
}

func (h *Handlers) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	logger.Error("%s failed (%d): %v", op, status, err)
	writeJSON(w, status, errorResponse{Status: "error", Message: err.Error()})
}

// statusFor maps a pipeline error to an HTTP status code.
func statusFor(err error) int {
	var (
		authErr     *spotify.AuthError
		upstreamErr *spotify.UpstreamError
		storageErr  *storage.StorageError
		loadErr     *db.LoadError
	)
	switch {
	case errors.Is(err, config.ErrMissingConfig):
		return http.StatusInternalServerError
	case errors.Is(err, spotify.ErrArtistNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &authErr), errors.As(err, &upstreamErr), errors.As(err, &storageErr):
		return http.StatusBadGateway
	case errors.As(err, &loadErr):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeOptional decodes a JSON body into v, treating an empty body as {}.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Writing response: %v", err)
	}
}
