// Package session ties the sync, the feed and the uploader to one
// authenticated user session.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"fit-analyse/dashboard/internal/feed"
	"fit-analyse/dashboard/internal/jobs"
	"fit-analyse/dashboard/internal/logging"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrNoToken is returned when Start is called without a bearer token
var ErrNoToken = errors.New("session: bearer token is required")

// ErrNoSession is returned by Wait before any session was started
var ErrNoSession = errors.New("session: no session started")

// TokenSetter receives the bearer token used for remote calls
type TokenSetter interface {
	SetToken(token string)
}

// Syncer runs the full sync
type Syncer interface {
	Run(ctx context.Context, sessionID string) (jobs.SyncResult, error)
	InProgress() bool
}

// FeedLoader loads the first page of a filter context
type FeedLoader interface {
	ChangeFilter(ctx context.Context, filter feed.Filter) (feed.Snapshot, error)
	Snapshot() feed.Snapshot
}

// HashLoader is the uploader's known-hash set
type HashLoader interface {
	ResetHashes()
	LoadKnownHashes(ctx context.Context) error
}

// Session is one authenticated session
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
	Expired   bool      `json:"expired"`
}

type run struct {
	session *Session
	token   string
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// Manager starts sessions. Work started by a session runs on the manager's
// base context, not on the caller's, and is cancelled by the next Start.
type Manager struct {
	base     context.Context
	tokens   TokenSetter
	syncer   Syncer
	feed     FeedLoader
	hashes   HashLoader
	onExpire func(err error)

	mu      sync.Mutex
	current *run
}

// NewManager creates a session manager. onExpire is called when the service
// rejects the token and may be nil.
func NewManager(base context.Context, tokens TokenSetter, syncer Syncer, f FeedLoader, hashes HashLoader, onExpire func(err error)) *Manager {
	return &Manager{
		base:     base,
		tokens:   tokens,
		syncer:   syncer,
		feed:     f,
		hashes:   hashes,
		onExpire: onExpire,
	}
}

// Start begins a session: the full sync, the feed's first page and the known
// hash fetch run concurrently in the background.
func (m *Manager) Start(token string) (*Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, ErrNoToken
	}

	s := &Session{
		ID:        uuid.NewString(),
		UserID:    UserFromToken(token),
		StartedAt: time.Now().UTC(),
	}
	log := logging.WithSession(s.ID, s.UserID)

	ctx, cancel := context.WithCancel(m.base)
	r := &run{session: s, token: token, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	prev := m.current
	m.current = r
	m.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	m.tokens.SetToken(token)
	m.hashes.ResetHashes()
	log.Infow("Session started")

	var g errgroup.Group
	g.Go(func() error {
		_, err := m.syncer.Run(ctx, s.ID)
		return err
	})
	g.Go(func() error {
		filter := m.feed.Snapshot().Filter
		_, err := m.feed.ChangeFilter(ctx, filter)
		if errors.Is(err, feed.ErrStaleResponse) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		// The uploader works with an empty set when this fails
		m.hashes.LoadKnownHashes(ctx)
		return nil
	})

	go func() {
		defer close(r.done)
		r.err = g.Wait()
		if r.err != nil {
			log.Warnw("Session start finished with errors", "error", r.err)
			return
		}
		log.Infow("Session start finished")
	}()

	return s, nil
}

// Wait blocks until the current session's start work has finished and
// returns its first error
func (m *Manager) Wait() error {
	m.mu.Lock()
	r := m.current
	m.mu.Unlock()

	if r == nil {
		return ErrNoSession
	}
	<-r.done
	return r.err
}

// Current returns a copy of the current session, or nil
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	s := *m.current.session
	return &s
}

// SyncInProgress reports whether the session's full sync is still draining
func (m *Manager) SyncInProgress() bool {
	return m.syncer.InProgress()
}

// HandleUnauthorized marks the session expired and notifies the caller's hook.
// It is meant to be installed as the activity source's 401 hook. A 401 for a
// token other than the current session's comes from a replaced session's
// request and is ignored.
func (m *Manager) HandleUnauthorized(token string, err error) {
	m.mu.Lock()
	if m.current == nil || m.current.token != token {
		m.mu.Unlock()
		logging.Debug("Ignoring 401 for a token that is no longer in use", "error", err)
		return
	}
	m.current.session.Expired = true
	id := m.current.session.ID
	m.mu.Unlock()

	logging.Warn("Activity service rejected the session token", "session_id", id, "error", err)
	if m.onExpire != nil {
		m.onExpire(err)
	}
}

// Close cancels the current session's background work and waits for it
func (m *Manager) Close() {
	m.mu.Lock()
	r := m.current
	m.mu.Unlock()
	if r != nil {
		r.cancel()
		<-r.done
	}
}

// UserFromToken reads the user from the token's claims without verifying the
// signature; the service does that. Opaque tokens yield "".
func UserFromToken(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		logging.Debug("Session token is not a JWT", "error", err)
		return ""
	}
	for _, key := range []string{"sub", "user_id", "email"} {
		if v, ok := claims[key]; ok && v != nil {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	return ""
}
