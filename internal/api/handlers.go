package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"fit-analyse/dashboard/internal/constants"
	"fit-analyse/dashboard/internal/feed"
	"fit-analyse/dashboard/internal/logging"
	"fit-analyse/dashboard/internal/models/dtos"
	gormModels "fit-analyse/dashboard/internal/models/gorm"
	"fit-analyse/dashboard/internal/services"
	"fit-analyse/dashboard/internal/upload"

	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	deps *Dependencies
}

// NewHandlers creates a new handlers instance with injected dependencies
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		deps: deps,
	}
}

type startSessionRequest struct {
	Token string `json:"token"`
}

type feedResponse struct {
	feed.Snapshot
	State string `json:"state"`
}

type syncStatusResponse struct {
	InProgress  bool                `json:"in_progress"`
	LastRun     *gormModels.SyncRun `json:"last_run,omitempty"`
	LastSuccess *time.Time          `json:"last_success,omitempty"`
}

type uploadsResponse struct {
	Files        []upload.FileStatus `json:"files"`
	Progress     upload.Progress     `json:"progress"`
	HashesLoaded bool                `json:"hashes_loaded"`
	KnownHashes  int                 `json:"known_hashes"`
}

func newFeedResponse(snap feed.Snapshot) *feedResponse {
	return &feedResponse{Snapshot: snap, State: snap.State()}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// StartSession handles POST /api/v1/session
func (h *Handlers) StartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startSessionRequest
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &req); err != nil {
				respondWithError(w, http.StatusBadRequest, "Invalid request body")
				return
			}
		}
		if req.Token == "" {
			req.Token = r.Header.Get("Authorization")
		}

		s, err := h.deps.Services.Sessions.Start(req.Token)
		if err != nil {
			respondWithServiceError(w, err)
			return
		}
		respondWithSuccess(w, http.StatusAccepted, s)
	}
}

// GetSession handles GET /api/v1/session
func (h *Handlers) GetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := h.deps.Services.Sessions.Current()
		if s == nil {
			respondWithError(w, http.StatusNotFound, "No session started")
			return
		}
		respondWithSuccess(w, http.StatusOK, s)
	}
}

// GetFeed handles GET /api/v1/feed
func (h *Handlers) GetFeed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondWithSuccess(w, http.StatusOK, newFeedResponse(h.deps.Services.Feed.Snapshot()))
	}
}

// ChangeFeedFilter handles POST /api/v1/feed/filter
func (h *Handlers) ChangeFeedFilter() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dtos.FilterRequest
		if err := decodeJSON(r, &req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		f := h.deps.Services.Feed
		filter := f.Snapshot().Filter
		if req.Tab != nil {
			filter.Tab = constants.ActivityType(*req.Tab)
		}
		if req.SearchQuery != nil {
			filter.SearchQuery = *req.SearchQuery
		}

		snap, err := f.ChangeFilter(r.Context(), filter)
		if err != nil && !errors.Is(err, feed.ErrStaleResponse) {
			respondWithServiceError(w, err)
			return
		}
		respondWithSuccess(w, http.StatusOK, newFeedResponse(snap))
	}
}

// LoadNextFeedPage handles POST /api/v1/feed/next
func (h *Handlers) LoadNextFeedPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := h.deps.Services.Feed.LoadNextPage(r.Context())
		if err != nil && !errors.Is(err, feed.ErrStaleResponse) {
			respondWithServiceError(w, err)
			return
		}
		respondWithSuccess(w, http.StatusOK, newFeedResponse(snap))
	}
}

// ScrollFeed handles POST /api/v1/feed/scroll
func (h *Handlers) ScrollFeed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var pos feed.ScrollPosition
		if err := decodeJSON(r, &pos); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		snap, _, err := h.deps.Services.Feed.OnScroll(r.Context(), pos)
		if err != nil && !errors.Is(err, feed.ErrStaleResponse) {
			respondWithServiceError(w, err)
			return
		}
		respondWithSuccess(w, http.StatusOK, newFeedResponse(snap))
	}
}

// GetSyncStatus handles GET /api/v1/sync/status
func (h *Handlers) GetSyncStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := &syncStatusResponse{InProgress: h.deps.Services.Sync.InProgress()}

		lastRun, err := h.deps.Repo.SyncRuns.LastRun(r.Context(), constants.SyncEventFullSync)
		if err != nil {
			logging.Warn("Failed to read sync history", "error", err)
		}
		resp.LastRun = lastRun

		lastSuccess, err := h.deps.Repo.SyncRuns.LastSuccessfulSyncTime(r.Context(), constants.SyncEventFullSync)
		if err != nil {
			logging.Warn("Failed to read last successful sync", "error", err)
		}
		resp.LastSuccess = lastSuccess

		respondWithSuccess(w, http.StatusOK, resp)
	}
}

// StartUpload handles POST /api/v1/uploads. The batch runs in the background;
// poll GET /api/v1/uploads for progress.
func (h *Handlers) StartUpload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dtos.UploadRequest
		if err := decodeJSON(r, &req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		uploader := h.deps.Services.Uploader
		files, err := uploader.SelectFiles(req.Paths)
		if err != nil {
			respondWithServiceError(w, err)
			return
		}
		if len(files) == 0 {
			respondWithError(w, http.StatusBadRequest, "No .fit or .gpx files selected")
			return
		}

		ctx := h.deps.BaseCtx
		go func() {
			if !uploader.HashesLoaded() {
				uploader.LoadKnownHashes(ctx)
			}
			if _, err := uploader.Run(ctx); err != nil {
				logging.Warn("Batch upload stopped", "error", err)
			}
		}()

		respondWithSuccess(w, http.StatusAccepted, h.uploadsSnapshot())
	}
}

// GetUploads handles GET /api/v1/uploads
func (h *Handlers) GetUploads() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondWithSuccess(w, http.StatusOK, h.uploadsSnapshot())
	}
}

func (h *Handlers) uploadsSnapshot() *uploadsResponse {
	uploader := h.deps.Services.Uploader
	return &uploadsResponse{
		Files:        uploader.Files(),
		Progress:     uploader.Progress(),
		HashesLoaded: uploader.HashesLoaded(),
		KnownHashes:  uploader.Hashes().Len(),
	}
}

// GetActivity handles GET /api/v1/activity/{id}
func (h *Handlers) GetActivity() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := h.deps.Services.Activities.GetActivity(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respondWithServiceError(w, err)
			return
		}
		respondWithSuccess(w, http.StatusOK, detail)
	}
}

// GetPowerCurve handles GET /api/v1/activity/{id}/power-curve
func (h *Handlers) GetPowerCurve() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		curve := h.deps.Services.Activities.GetPowerCurve(r.Context(), chi.URLParam(r, "id"))
		respondWithSuccess(w, http.StatusOK, &curve)
	}
}

// UpdateActivity handles PATCH /api/v1/activity/{id}
func (h *Handlers) UpdateActivity() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dtos.UpdateActivityRequest
		if err := decodeJSON(r, &req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Name == nil && req.Date == nil && req.Tags == nil {
			respondWithError(w, http.StatusBadRequest, "Nothing to update")
			return
		}

		date, err := services.ParseEditDate(req.Date)
		if err != nil {
			respondWithServiceError(w, err)
			return
		}
		tags := cleanTags(req.Tags)

		updated, err := h.deps.Services.Activities.UpdateActivity(r.Context(), chi.URLParam(r, "id"), req.Name, date, tags)
		if err != nil {
			respondWithServiceError(w, err)
			return
		}
		respondWithSuccess(w, http.StatusOK, updated)
	}
}

// DeleteActivity handles DELETE /api/v1/activity/{id}
func (h *Handlers) DeleteActivity() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := h.deps.Services.Activities.DeleteActivity(r.Context(), id); err != nil {
			respondWithServiceError(w, err)
			return
		}
		respondWithSuccess(w, http.StatusOK, &map[string]string{"activity_id": id})
	}
}

// cleanTags trims tags and drops empty ones, keeping order
func cleanTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
