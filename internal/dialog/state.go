package dialog

import (
	"sync"

	"github.com/mtbar/concerts/pkg/models"
)

// Kind tags the active state of a conversation
type Kind int

const (
	Idle Kind = iota
	AwaitingField
	AwaitingDisambiguation
	AwaitingPhotoTarget
)

func (k Kind) String() string {
	switch k {
	case AwaitingField:
		return "awaiting_single_field"
	case AwaitingDisambiguation:
		return "awaiting_disambiguation"
	case AwaitingPhotoTarget:
		return "awaiting_photo_target"
	default:
		return "idle"
	}
}

// State is the tagged variant held for one conversation. Only the fields
// relevant to Kind are set.
type State struct {
	Kind Kind

	// AwaitingField, AwaitingPhotoTarget
	EventID int64
	Field   models.Field

	// AwaitingDisambiguation
	Text       string
	Fragment   string
	Candidates []int64

	// AwaitingPhotoTarget
	PhotoID int64
}

// HasCandidate reports whether id was offered during disambiguation
func (s State) HasCandidate(id int64) bool {
	for _, c := range s.Candidates {
		if c == id {
			return true
		}
	}
	return false
}

type session struct {
	selected int64
	state    State
	jobs     []func()
	running  bool
}

// Manager keeps per-conversation short-term memory. Nothing survives a restart.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*session
	wg       sync.WaitGroup
}

// NewManager creates an empty dialog manager
func NewManager() *Manager {
	return &Manager{sessions: make(map[int64]*session)}
}

// Enqueue runs job after every job already queued for the conversation.
// Jobs of one conversation run one at a time in arrival order, conversations run concurrently.
func (m *Manager) Enqueue(chatID int64, job func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.ensure(chatID)
	if s.running {
		s.jobs = append(s.jobs, job)
		return
	}
	s.running = true
	m.wg.Add(1)
	go m.drain(s, job)
}

// Wait blocks until every enqueued job has finished
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) drain(s *session, job func()) {
	defer m.wg.Done()
	for job != nil {
		job()
		job = m.next(s)
	}
}

func (m *Manager) next(s *session) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(s.jobs) == 0 {
		s.running = false
		return nil
	}
	job := s.jobs[0]
	s.jobs[0] = nil
	s.jobs = s.jobs[1:]
	return job
}

// Select makes eventID the conversation's current event
func (m *Manager) Select(chatID, eventID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(chatID).selected = eventID
}

// Selected returns the current event id, zero when none
func (m *Manager) Selected(chatID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[chatID]; ok {
		return s.selected
	}
	return 0
}

// Current returns the active state without changing it
func (m *Manager) Current(chatID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[chatID]; ok {
		return s.state
	}
	return State{}
}

// Take returns the active state and resets the conversation to idle
func (m *Manager) Take(chatID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[chatID]
	if !ok {
		return State{}
	}
	st := s.state
	s.state = State{}
	return st
}

// Reset clears the active state
func (m *Manager) Reset(chatID int64) {
	m.set(chatID, State{})
}

// AwaitField arms a single-field input for the next message
func (m *Manager) AwaitField(chatID, eventID int64, field models.Field) {
	m.set(chatID, State{Kind: AwaitingField, EventID: eventID, Field: field})
}

// AwaitDisambiguation stores the message to replay once a candidate is chosen
func (m *Manager) AwaitDisambiguation(chatID int64, text, fragment string, candidates []int64) {
	m.set(chatID, State{
		Kind:       AwaitingDisambiguation,
		Text:       text,
		Fragment:   fragment,
		Candidates: append([]int64(nil), candidates...),
	})
}

// AwaitPhotoTarget waits for an explicit attach or discard of a pending photo
func (m *Manager) AwaitPhotoTarget(chatID, eventID, photoID int64) {
	m.set(chatID, State{Kind: AwaitingPhotoTarget, EventID: eventID, PhotoID: photoID})
}

func (m *Manager) set(chatID int64, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(chatID).state = st
}

// ensure must be called with m.mu held
func (m *Manager) ensure(chatID int64) *session {
	s, ok := m.sessions[chatID]
	if !ok {
		s = &session{}
		m.sessions[chatID] = s
	}
	return s
}
