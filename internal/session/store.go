package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/reasoner/internal/event"
	"github.com/opencode-ai/reasoner/pkg/types"
)

// DefaultTitle is used when a session is created without a title.
const DefaultTitle = "New Operation"

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Store keeps sessions in memory. Sessions do not survive a restart.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
	bus      *event.Bus
	now      func() time.Time
}

// NewStore creates an empty store. bus may be nil.
func NewStore(bus *event.Bus) *Store {
	return &Store{
		sessions: make(map[string]*types.Session),
		bus:      bus,
		now:      time.Now,
	}
}

// Create creates a new session.
func (s *Store) Create(ctx context.Context, title string) (*types.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}

	now := s.now().UnixMilli()
	session := &types.Session{
		ID:      generateID(),
		Title:   title,
		History: []types.Turn{},
		Time:    types.SessionTime{Created: now, Updated: now},
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	out := session.Clone()
	s.mu.Unlock()

	s.publish(event.SessionCreated, event.SessionCreatedData{Info: out.Info()})
	return out, nil
}

// Get returns a copy of the session.
func (s *Store) Get(ctx context.Context, id string) (*types.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return session.Clone(), nil
}

// List returns all sessions, most recently created first.
func (s *Store) List(ctx context.Context) ([]types.SessionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	infos := make([]types.SessionInfo, 0, len(s.sessions))
	for _, session := range s.sessions {
		infos = append(infos, session.Info())
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Time.Created != infos[j].Time.Created {
			return infos[i].Time.Created > infos[j].Time.Created
		}
		return infos[i].ID > infos[j].ID
	})
	return infos, nil
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	session, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.sessions, id)
	s.mu.Unlock()

	s.publish(event.SessionDeleted, event.SessionDeletedData{Info: session.Info()})
	return nil
}

// Append adds turns to the end of the session history.
func (s *Store) Append(ctx context.Context, id string, turns ...types.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, t := range turns {
		if t.Role != types.RoleUser && t.Role != types.RoleAssistant {
			return fmt.Errorf("invalid turn role %q", t.Role)
		}
	}

	s.mu.Lock()
	session, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	session.History = append(session.History, turns...)
	session.Time.Updated = s.now().UnixMilli()
	info := session.Info()
	s.mu.Unlock()

	s.publish(event.SessionUpdated, event.SessionUpdatedData{Info: info})
	return nil
}

// Rename changes the session title.
func (s *Store) Rename(ctx context.Context, id, title string) (*types.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}

	s.mu.Lock()
	session, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	session.Title = title
	session.Time.Updated = s.now().UnixMilli()
	out := session.Clone()
	s.mu.Unlock()

	s.publish(event.SessionUpdated, event.SessionUpdatedData{Info: out.Info()})
	return out, nil
}

// History returns a copy of the session history.
func (s *Store) History(ctx context.Context, id string) ([]types.Turn, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return session.History, nil
}

func (s *Store) publish(t event.EventType, data any) {
	if s.bus != nil {
		s.bus.Publish(event.Event{Type: t, Data: data})
	}
}

func generateID() string {
	return ulid.Make().String()
}

// NewRunID returns a sortable id for a run.
func NewRunID() string {
	return "run_" + generateID()
}
