// Package upload sends activity files to the service one at a time,
// skipping files whose content hash the service already holds.
package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"fit-analyse/dashboard/internal/constants"
	"fit-analyse/dashboard/internal/logging"
	"fit-analyse/dashboard/internal/metrics"
	"fit-analyse/dashboard/internal/providers"
)

// Status is the per-file upload state
type Status string

const (
	StatusPending   Status = "pending"
	StatusHashing   Status = "hashing"
	StatusSkipped   Status = "skipped"
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

// ErrBatchRunning is returned when Run is called while a batch is in flight
var ErrBatchRunning = errors.New("upload: batch already running")

// FileStatus is one selected file and where it is in the pipeline
type FileStatus struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Status     Status `json:"status"`
	Hash       string `json:"hash,omitempty"`
	ActivityID string `json:"activity_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Progress counts files that reached skipped, success or error
type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// BatchUploader processes the selected files strictly in order
type BatchUploader struct {
	source  providers.ActivitySource
	hashes  *HashSet
	metrics *metrics.MetricsRegistry

	// OnStatus is called after every status transition
	OnStatus func(index int, file FileStatus)

	mu           sync.Mutex
	files        []FileStatus
	processed    int
	running      bool
	hashesLoaded bool
}

// NewBatchUploader creates an uploader with an empty hash set. m may be nil.
func NewBatchUploader(source providers.ActivitySource, m *metrics.MetricsRegistry) *BatchUploader {
	return &BatchUploader{
		source:  source,
		hashes:  NewHashSet(),
		metrics: m,
	}
}

// Hashes exposes the known hash set
func (u *BatchUploader) Hashes() *HashSet {
	return u.hashes
}

// IsSupported reports whether name has an uploadable extension
func IsSupported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range constants.UploadExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// SelectFiles replaces the selection with the supported paths, all pending
func (u *BatchUploader) SelectFiles(paths []string) ([]FileStatus, error) {
	files := make([]FileStatus, 0, len(paths))
	for _, p := range paths {
		if !IsSupported(p) {
			logging.Debug("Ignoring unsupported upload file", "path", p)
			continue
		}
		files = append(files, FileStatus{
			Name:   filepath.Base(p),
			Path:   p,
			Status: StatusPending,
		})
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.running {
		return nil, ErrBatchRunning
	}
	u.files = files
	u.processed = 0
	return u.filesLocked(), nil
}

// LoadKnownHashes fetches the service's hash list once. On failure the set
// stays empty and every file will be uploaded.
func (u *BatchUploader) LoadKnownHashes(ctx context.Context) error {
	hashes, err := u.source.FetchKnownHashes(ctx)

	u.mu.Lock()
	u.hashesLoaded = true
	u.mu.Unlock()

	if err != nil {
		logging.Warn("Failed to fetch known hashes, duplicates will not be skipped", "error", err)
		return err
	}
	u.hashes.Replace(hashes)
	logging.Info("Loaded known activity hashes", "count", u.hashes.Len())
	return nil
}

// HashesLoaded reports whether LoadKnownHashes has completed
func (u *BatchUploader) HashesLoaded() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hashesLoaded
}

// ResetHashes forgets the known hashes, e.g. on a new session
func (u *BatchUploader) ResetHashes() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.hashesLoaded = false
	u.hashes.Reset()
}

// Files returns a copy of the current per-file statuses
func (u *BatchUploader) Files() []FileStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.filesLocked()
}

// Progress returns processed/total
func (u *BatchUploader) Progress() Progress {
	u.mu.Lock()
	defer u.mu.Unlock()
	return Progress{Processed: u.processed, Total: len(u.files)}
}

// Run hashes and uploads every pending file in selection order. A failing
// file is marked as error and the batch continues.
func (u *BatchUploader) Run(ctx context.Context) ([]FileStatus, error) {
	u.mu.Lock()
	if u.running {
		u.mu.Unlock()
		return nil, ErrBatchRunning
	}
	u.running = true
	total := len(u.files)
	u.mu.Unlock()

	defer func() {
		u.mu.Lock()
		u.running = false
		u.mu.Unlock()
	}()

	log := logging.WithComponent("batch_upload")
	log.Infow("Starting batch upload", "files", total, "known_hashes", u.hashes.Len())

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			log.Warnw("Batch upload cancelled", "processed", u.Progress().Processed, "error", err)
			return u.Files(), err
		}
		u.processOne(ctx, i)
	}

	progress := u.Progress()
	log.Infow("Completed batch upload", "processed", progress.Processed, "total", progress.Total)
	return u.Files(), nil
}

func (u *BatchUploader) processOne(ctx context.Context, index int) {
	u.mu.Lock()
	file := u.files[index]
	u.mu.Unlock()
	if file.Status != StatusPending {
		return
	}

	u.transition(index, StatusHashing, nil)

	hash, err := HashFile(file.Path)
	if err != nil {
		u.finish(index, StatusError, func(f *FileStatus) { f.Error = err.Error() })
		return
	}
	setHash := func(f *FileStatus) { f.Hash = hash }

	if u.hashes.Has(hash) {
		u.finish(index, StatusSkipped, setHash)
		return
	}

	u.transition(index, StatusUploading, setHash)

	created, err := u.upload(ctx, file.Name, file.Path)
	if err != nil {
		logging.Warn("Upload failed", "file", file.Name, "error", err)
		u.finish(index, StatusError, func(f *FileStatus) { f.Error = err.Error() })
		return
	}

	known := created.ValHash
	if known == "" {
		known = hash
	}
	u.hashes.Add(known)

	u.finish(index, StatusSuccess, func(f *FileStatus) { f.ActivityID = created.ActivityID })
}

func (u *BatchUploader) upload(ctx context.Context, name, path string) (*uploadResult, error) {
	content, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer content.Close()

	created, err := u.source.UploadActivity(ctx, name, content)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return &uploadResult{}, nil
	}
	return &uploadResult{ActivityID: created.ActivityID, ValHash: created.ValHash}, nil
}

type uploadResult struct {
	ActivityID string
	ValHash    string
}

func (u *BatchUploader) transition(index int, status Status, mutate func(*FileStatus)) {
	u.mu.Lock()
	u.files[index].Status = status
	if mutate != nil {
		mutate(&u.files[index])
	}
	file := u.files[index]
	cb := u.OnStatus
	u.mu.Unlock()

	if cb != nil {
		cb(index, file)
	}
}

// finish moves a file to a terminal status and counts it as processed
func (u *BatchUploader) finish(index int, status Status, mutate func(*FileStatus)) {
	u.mu.Lock()
	u.processed++
	u.mu.Unlock()

	if u.metrics != nil {
		u.metrics.UploadsTotal.WithLabelValues(string(status)).Inc()
	}
	u.transition(index, status, mutate)
}

func (u *BatchUploader) filesLocked() []FileStatus {
	out := make([]FileStatus, len(u.files))
	copy(out, u.files)
	return out
}
