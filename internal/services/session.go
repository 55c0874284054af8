package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/portalsync/internal/shared"
	"github.com/fsnotify/fsnotify"
)

// Session is an imported portal login: the cookie plus any headers the portal checks.
type Session struct {
	BaseURL    string            `json:"baseUrl"`
	Cookie     string            `json:"cookie"`
	Headers    map[string]string `json:"headers,omitempty"`
	ImportedAt time.Time         `json:"importedAt"`
}

// SessionFromCurl converts a captured browser request into a session.
func SessionFromCurl(c *shared.CurlCapture, now time.Time) (*Session, error) {
	if c == nil || c.Cookie == "" {
		return nil, fmt.Errorf("%w: captured request has no cookie", shared.ErrInvalidInput)
	}
	return &Session{
		BaseURL:    c.Origin(),
		Cookie:     c.Cookie,
		Headers:    c.Headers,
		ImportedAt: now,
	}, nil
}

// SessionStore keeps the current session in memory and on disk. It implements [Authenticator].
type SessionStore struct {
	path    string
	logger  *log.Logger
	mu      sync.RWMutex
	session *Session
	expired bool
	signal  chan struct{}
}

// NewSessionStore creates a store backed by path. Nothing is read until [SessionStore.Load].
func NewSessionStore(path string, logger *log.Logger) *SessionStore {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SessionStore{
		path:   path,
		logger: shared.WithLogger(logger, "component", "session"),
		signal: make(chan struct{}, 1),
	}
}

// Path is the session file location.
func (s *SessionStore) Path() string { return s.path }

// Load reads the session file. A missing file returns [shared.ErrMissingSession].
func (s *SessionStore) Load() (*Session, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", shared.ErrMissingSession, s.path)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: session file %s: %v", shared.ErrInvalidConfig, s.path, err)
	}
	if sess.Cookie == "" {
		return nil, fmt.Errorf("%w: session file has no cookie", shared.ErrMissingSession)
	}

	s.mu.Lock()
	s.session = &sess
	s.expired = false
	s.mu.Unlock()
	return &sess, nil
}

// Save writes sess to disk and makes it current.
func (s *SessionStore) Save(sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	s.mu.Lock()
	s.session = sess
	s.expired = false
	s.mu.Unlock()
	return nil
}

// Current returns the loaded session, or nil.
func (s *SessionStore) Current() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// IsAuthenticated implements [Authenticator].
func (s *SessionStore) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session != nil && !s.expired
}

// Expired implements [Authenticator].
func (s *SessionStore) Expired() <-chan struct{} { return s.signal }

// MarkExpired invalidates the session until it is reloaded and notifies listeners.
func (s *SessionStore) MarkExpired(reason string) {
	s.mu.Lock()
	already := s.expired
	s.expired = true
	s.mu.Unlock()

	if already {
		return
	}
	s.logger.Warn("session expired", "reason", reason)
	s.notify()
}

// notify sends without blocking; one pending signal is enough to trigger invalidation.
func (s *SessionStore) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Watch follows the session file until ctx is done.
//
// Removing or renaming the file expires the session. Writing a different cookie
// loads it and signals listeners, since cached data belongs to the previous identity.
func (s *SessionStore) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch session directory %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			s.handleFileEvent(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("session watcher error", "err", err)
		}
	}
}

func (s *SessionStore) handleFileEvent(ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		s.mu.Lock()
		s.session = nil
		s.mu.Unlock()
		s.MarkExpired("session file removed")
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		prev := s.Current()
		next, err := s.Load()
		if err != nil {
			s.logger.Debug("ignoring unreadable session write", "err", err)
			return
		}
		if prev == nil || prev.Cookie != next.Cookie {
			s.logger.Info("session replaced", "path", s.path)
			s.notify()
		}
	}
}
