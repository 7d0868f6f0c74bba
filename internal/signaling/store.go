package signaling

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the lifecycle of a broadcast session. The waiting set is only
// meaningful in StateNoInstructor; it is drained the moment an instructor
// joins and is notified.
type State int

const (
	StateNoInstructor State = iota
	StateInstructorPresent
	StateBroadcasting
)

func (s State) String() string {
	switch s {
	case StateNoInstructor:
		return "no-instructor"
	case StateInstructorPresent:
		return "instructor-present"
	case StateBroadcasting:
		return "broadcasting"
	}
	return "unknown"
}

// Session is one instructor-to-many-students broadcast context, keyed by a
// caller-chosen session id. InstructorConnID is the only connection allowed
// to toggle broadcasting; InstructorIdentity is caller-asserted and stored
// verbatim, never verified.
type Session struct {
	ID                 string
	InstructorConnID   string
	InstructorIdentity string
	State              State
	Students           map[string]string   // connID -> asserted student id
	Waiting            map[string]struct{} // connIDs joined before an instructor
	LastActivity       time.Time
}

// Role distinguishes the two departure shapes a connection removal produces.
type Role int

const (
	RoleInstructor Role = iota
	RoleStudent
)

// Departure describes what a connection's removal from the store means for
// the rest of the session, so the router can notify the survivors. An
// instructor departure kills the whole session; a student departure only
// shrinks it.
type Departure struct {
	SessionID string
	Role      Role

	// Instructor departures: every remaining student connection, to be told
	// the session is over.
	Students []string

	// Student departures: the instructor to notify, empty when none joined.
	InstructorConnID string
	StudentConnID    string
}

// StudentJoinResult is the session snapshot a joining student is answered
// with.
type StudentJoinResult struct {
	InstructorConnID string // empty when waiting
	Broadcasting     bool
	Waiting          bool
}

// Store owns all live session state. Mutations arrive serialized through the
// hub goroutine (plus the reaper's sweep); the mutex exists because the stats
// and metrics surfaces read concurrently. The byConn reverse index makes
// disconnect cleanup O(1) instead of a scan over every session.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byConn   map[string]string // connID -> sessionID
	log      zerolog.Logger
}

// NewStore creates an empty session store.
func NewStore(log zerolog.Logger) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		byConn:   make(map[string]string),
		log:      log.With().Str("component", "session-store").Logger(),
	}
}

// JoinInstructor records connID as the session's instructor, creating the
// session if it does not exist. A second instructor-join for a live session
// is a takeover: the previous instructor connection is overwritten without a
// teardown signal. Returns the drained waiting set and the overwritten
// instructor connection id, if any.
func (s *Store) JoinInstructor(sessionID, connID, identity string, now time.Time) (waiting []string, prev string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = newSession(sessionID)
		s.sessions[sessionID] = sess
	}

	prev = sess.InstructorConnID
	if prev == connID {
		prev = ""
	}

	sess.InstructorConnID = connID
	sess.InstructorIdentity = identity
	sess.LastActivity = now
	if sess.State == StateNoInstructor {
		sess.State = StateInstructorPresent
	}

	// Drain the waiting set; these connections are about to be notified and
	// must not be notified again on a later instructor reconnect.
	waiting = make([]string, 0, len(sess.Waiting))
	for id := range sess.Waiting {
		waiting = append(waiting, id)
	}
	sess.Waiting = make(map[string]struct{})

	s.byConn[connID] = sessionID
	return waiting, prev
}

// JoinStudent adds connID to the session's student set, creating a
// placeholder session (no instructor) if the id is unseen. Students joining
// before an instructor is present land in the waiting set.
func (s *Store) JoinStudent(sessionID, connID, studentID string, now time.Time) StudentJoinResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = newSession(sessionID)
		s.sessions[sessionID] = sess
	}

	sess.Students[connID] = studentID
	sess.LastActivity = now
	if sess.State == StateNoInstructor {
		sess.Waiting[connID] = struct{}{}
	}
	s.byConn[connID] = sessionID

	return StudentJoinResult{
		InstructorConnID: sess.InstructorConnID,
		Broadcasting:     sess.State == StateBroadcasting,
		Waiting:          sess.State == StateNoInstructor,
	}
}

// SetBroadcasting toggles the session's broadcasting state. Only the
// connection recorded as the session's instructor may do so; everything else
// is dropped. Returns the student connections the state change fans out to.
func (s *Store) SetBroadcasting(sessionID, connID string, on bool, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrUnknownSession
	}
	if sess.InstructorConnID != connID {
		return nil, ErrNotInstructor
	}

	if on {
		sess.State = StateBroadcasting
	} else {
		sess.State = StateInstructorPresent
	}
	sess.LastActivity = now

	students := make([]string, 0, len(sess.Students))
	for id := range sess.Students {
		students = append(students, id)
	}
	return students, nil
}

// Remove detaches a connection from whatever session it belongs to and
// reports the resulting departure, or nil when the connection was not a
// session member. Instructor removal deletes the session outright; student
// departures never delete a session.
func (s *Store) Remove(connID string) *Departure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(connID)
}

// Detach removes a connection from its current session unless that session
// is exceptID. Used on joins: a connection belongs to at most one session,
// so joining a new one first departs the old one.
func (s *Store) Detach(connID, exceptID string) *Departure {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byConn[connID] == exceptID {
		return nil
	}
	return s.removeLocked(connID)
}

func (s *Store) removeLocked(connID string) *Departure {
	sessionID, ok := s.byConn[connID]
	if !ok {
		return nil
	}
	delete(s.byConn, connID)

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}

	if sess.InstructorConnID == connID {
		// The session dies with its instructor.
		students := make([]string, 0, len(sess.Students))
		for id := range sess.Students {
			students = append(students, id)
			delete(s.byConn, id)
		}
		delete(s.sessions, sessionID)
		s.log.Info().Str("session", sessionID).Int("students", len(students)).
			Msg("session deleted, instructor gone")
		return &Departure{SessionID: sessionID, Role: RoleInstructor, Students: students}
	}

	if _, isStudent := sess.Students[connID]; !isStudent {
		return nil
	}
	delete(sess.Students, connID)
	delete(sess.Waiting, connID)
	return &Departure{
		SessionID:        sessionID,
		Role:             RoleStudent,
		InstructorConnID: sess.InstructorConnID,
		StudentConnID:    connID,
	}
}

// Sweep deletes placeholder sessions (no instructor, no students) whose last
// activity is older than ttl. Student departures never delete sessions, so
// these placeholders are the one way the store leaks without a reaper.
func (s *Store) Sweep(ttl time.Duration, now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var swept []string
	for id, sess := range s.sessions {
		if sess.State != StateNoInstructor || len(sess.Students) > 0 {
			continue
		}
		if now.Sub(sess.LastActivity) < ttl {
			continue
		}
		delete(s.sessions, id)
		swept = append(swept, id)
	}
	if len(swept) > 0 {
		s.log.Info().Int("sessions", len(swept)).Msg("swept idle placeholder sessions")
	}
	return swept
}

// Get returns a copy of a session's state for inspection. The copy shares no
// maps with the store.
func (s *Store) Get(sessionID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	cp := *sess
	cp.Students = make(map[string]string, len(sess.Students))
	for k, v := range sess.Students {
		cp.Students[k] = v
	}
	cp.Waiting = make(map[string]struct{}, len(sess.Waiting))
	for k := range sess.Waiting {
		cp.Waiting[k] = struct{}{}
	}
	return cp, true
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Stats returns session store statistics for the ops surface.
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	broadcasting := 0
	waiting := 0
	students := 0
	for _, sess := range s.sessions {
		if sess.State == StateBroadcasting {
			broadcasting++
		}
		waiting += len(sess.Waiting)
		students += len(sess.Students)
	}
	return map[string]int{
		"live_sessions":    len(s.sessions),
		"broadcasting":     broadcasting,
		"students":         students,
		"waiting_students": waiting,
	}
}

func newSession(id string) *Session {
	return &Session{
		ID:       id,
		State:    StateNoInstructor,
		Students: make(map[string]string),
		Waiting:  make(map[string]struct{}),
	}
}
