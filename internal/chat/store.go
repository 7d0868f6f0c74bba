package chat

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Participant is the caller-asserted identity recorded at chat-join.
type Participant struct {
	UserID   string
	UserName string
	UserRole string
	JoinedAt time.Time
}

// Store owns all chat room state: room id -> connection id -> participant.
// A room with zero participants is deleted on the spot; no empty rooms
// persist. A connection may sit in any number of rooms, so the reverse index
// maps connID to a room set.
type Store struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]Participant
	byConn map[string]map[string]struct{} // connID -> set of roomIDs
	log    zerolog.Logger
}

// NewStore creates an empty chat room store.
func NewStore(log zerolog.Logger) *Store {
	return &Store{
		rooms:  make(map[string]map[string]Participant),
		byConn: make(map[string]map[string]struct{}),
		log:    log.With().Str("component", "chat-store").Logger(),
	}
}

// Join records a participant in a room, creating the room on first join.
// Returns the connection ids of the other participants, for the joined
// notification fan-out.
func (s *Store) Join(roomID, connID string, p Participant) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		room = make(map[string]Participant)
		s.rooms[roomID] = room
		s.log.Debug().Str("room", roomID).Msg("room created")
	}

	others := make([]string, 0, len(room))
	for id := range room {
		if id != connID {
			others = append(others, id)
		}
	}
	room[connID] = p

	if s.byConn[connID] == nil {
		s.byConn[connID] = make(map[string]struct{})
	}
	s.byConn[connID][roomID] = struct{}{}
	return others
}

// Leave removes a connection from a room, deleting the room if it is now
// empty. Returns the departed participant's record, the remaining
// connections to notify, and whether the connection was actually a member.
func (s *Store) Leave(roomID, connID string) (Participant, []string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaveLocked(roomID, connID)
}

// Members returns the connection ids of every participant in a room,
// including the caller. Returns false when the connection is not a member
// or the room does not exist.
func (s *Store) Members(roomID, connID string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	if _, member := room[connID]; !member {
		return nil, false
	}
	members := make([]string, 0, len(room))
	for id := range room {
		members = append(members, id)
	}
	return members, true
}

// Others returns the connection ids of every participant except the caller.
// Returns false when the caller is not a member.
func (s *Store) Others(roomID, connID string) ([]string, bool) {
	members, ok := s.Members(roomID, connID)
	if !ok {
		return nil, false
	}
	others := members[:0]
	for _, id := range members {
		if id != connID {
			others = append(others, id)
		}
	}
	return others, true
}

// RoomDeparture describes one room a disconnecting connection was removed
// from.
type RoomDeparture struct {
	RoomID      string
	Participant Participant
	Remaining   []string
}

// RemoveConn removes a connection from every room it joined, deleting rooms
// that become empty. This is the disconnect path; explicit chat-leave uses
// Leave.
func (s *Store) RemoveConn(connID string) []RoomDeparture {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomIDs, ok := s.byConn[connID]
	if !ok {
		return nil
	}

	departures := make([]RoomDeparture, 0, len(roomIDs))
	for roomID := range roomIDs {
		if p, remaining, member := s.leaveLocked(roomID, connID); member {
			departures = append(departures, RoomDeparture{
				RoomID:      roomID,
				Participant: p,
				Remaining:   remaining,
			})
		}
	}
	return departures
}

func (s *Store) leaveLocked(roomID, connID string) (Participant, []string, bool) {
	room, ok := s.rooms[roomID]
	if !ok {
		return Participant{}, nil, false
	}
	p, member := room[connID]
	if !member {
		return Participant{}, nil, false
	}

	delete(room, connID)
	if set := s.byConn[connID]; set != nil {
		delete(set, roomID)
		if len(set) == 0 {
			delete(s.byConn, connID)
		}
	}

	if len(room) == 0 {
		delete(s.rooms, roomID)
		s.log.Debug().Str("room", roomID).Msg("room deleted, last participant left")
		return p, nil, true
	}

	remaining := make([]string, 0, len(room))
	for id := range room {
		remaining = append(remaining, id)
	}
	return p, remaining, true
}

// Count returns the number of live rooms.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Stats returns chat store statistics for the ops surface.
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	participants := 0
	for _, room := range s.rooms {
		participants += len(room)
	}
	return map[string]int{
		"live_rooms":   len(s.rooms),
		"participants": participants,
	}
}
