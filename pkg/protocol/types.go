package protocol

import "encoding/json"

// Envelope is the wire frame exchanged in both directions: an event name
// plus an event-specific JSON payload. Relay payloads (SDP offers/answers,
// ICE candidates, chat messages) stay raw so they are re-emitted
// byte-identical to what the sender produced.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals a payload into an outbound envelope.
func NewEnvelope(event string, payload any) (*Envelope, error) {
	if payload == nil {
		return &Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, ErrInvalidPayload
	}
	return &Envelope{Event: event, Data: data}, nil
}

// Inbound payloads.

type InstructorJoin struct {
	SessionID    string `json:"sessionId"`
	InstructorID string `json:"instructorId"`
}

type StudentJoin struct {
	SessionID string `json:"sessionId"`
	StudentID string `json:"studentId"`
}

// BroadcastState covers both broadcast-started and broadcast-stopped.
type BroadcastState struct {
	SessionID string `json:"sessionId"`
}

type Offer struct {
	TargetID string          `json:"targetId"`
	Offer    json.RawMessage `json:"offer"`
}

type Answer struct {
	InstructorID string          `json:"instructorId"`
	Answer       json.RawMessage `json:"answer"`
}

type ICECandidate struct {
	TargetID  string          `json:"targetId"`
	Candidate json.RawMessage `json:"candidate"`
}

type ChatJoin struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	UserRole string `json:"userRole"`
}

type ChatMessage struct {
	RoomID  string          `json:"roomId"`
	Message json.RawMessage `json:"message"`
}

type ChatTyping struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

type ChatLeave struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// Outbound payloads. Identity fields carry connection ids, the only identity
// the server vouches for; userId/userName values are echoed as asserted.

type InstructorArrived struct {
	InstructorID string `json:"instructorId"`
}

type WaitingStudents struct {
	Students []string `json:"students"`
}

// StudentInfo is the caller-asserted identity attached to student-joined.
type StudentInfo struct {
	StudentID string `json:"studentId"`
}

type StudentJoined struct {
	StudentID   string      `json:"studentId"`
	StudentInfo StudentInfo `json:"studentInfo"`
}

// InstructorInfo answers a student-join. InstructorID is null and Waiting is
// true when no instructor has joined the session yet.
type InstructorInfo struct {
	InstructorID   *string `json:"instructorId"`
	IsBroadcasting bool    `json:"isBroadcasting"`
	Waiting        bool    `json:"waiting,omitempty"`
}

type OfferRelay struct {
	Offer        json.RawMessage `json:"offer"`
	InstructorID string          `json:"instructorId"`
}

type AnswerRelay struct {
	Answer    json.RawMessage `json:"answer"`
	StudentID string          `json:"studentId"`
}

type ICECandidateRelay struct {
	Candidate json.RawMessage `json:"candidate"`
	From      string          `json:"from"`
}

type UserJoinedChat struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	UserRole string `json:"userRole"`
}

type NewMessage struct {
	Message json.RawMessage `json:"message"`
	RoomID  string          `json:"roomId"`
}

type UserTyping struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

type UserLeftChat struct {
	UserID string `json:"userId"`
}

type StudentLeft struct {
	StudentID string `json:"studentId"`
}
