package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"liverelay/internal/chat"
	"liverelay/internal/hub"
	"liverelay/internal/monitoring"
	"liverelay/internal/signaling"
	"liverelay/internal/websocket"
	"liverelay/pkg/protocol"
)

// relay is the full stack mounted on an httptest server: registry, stores,
// routers, hub, and the websocket handler, wired the way the application
// assembles them.
type relay struct {
	srv      *httptest.Server
	sessions *signaling.Store
	rooms    *chat.Store
}

func newRelay(t *testing.T) *relay {
	t.Helper()

	log := zerolog.Nop()
	registry := websocket.NewRegistry()
	sessions := signaling.NewStore(log)
	rooms := chat.NewStore(log)
	metrics := monitoring.New(
		func() float64 { return float64(registry.Count()) },
		func() float64 { return float64(sessions.Count()) },
		func() float64 { return float64(rooms.Count()) },
	)

	h := hub.New(
		signaling.NewRouter(sessions, registry, log),
		chat.NewRouter(rooms, registry, log),
		metrics,
		0,
		log,
	)
	if err := h.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { h.Stop() })

	handler := websocket.NewHandler(registry, h, websocket.Options{
		AllowedOrigin:  "*",
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteTimeout:   5 * time.Second,
		SendBuffer:     64,
		MaxMessageSize: 65536,
	}, log)

	srv := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(srv.Close)

	return &relay{srv: srv, sessions: sessions, rooms: rooms}
}

// client is one WebSocket participant.
type client struct {
	t    *testing.T
	conn *gws.Conn
}

func (r *relay) connect(t *testing.T) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(r.srv.URL, "http")
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(event string, payload any) {
	c.t.Helper()
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		c.t.Fatal(err)
	}
	if err := c.conn.WriteJSON(env); err != nil {
		c.t.Fatalf("send %s: %v", event, err)
	}
}

// expect reads frames until one with the given event arrives. Frames for
// other events are discarded; ordering is only guaranteed per event source.
func (c *client) expect(event string) *protocol.Envelope {
	c.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		c.conn.SetReadDeadline(deadline)
		var env protocol.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.t.Fatalf("waiting for %s: %v", event, err)
		}
		if env.Event == event {
			return &env
		}
	}
}

func decode[T any](t *testing.T, env *protocol.Envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode %s: %v", env.Event, err)
	}
	return v
}

func TestRelay_StudentWaitsForInstructor(t *testing.T) {
	r := newRelay(t)
	student := r.connect(t)
	instructor := r.connect(t)

	student.send(protocol.EventStudentJoin,
		protocol.StudentJoin{SessionID: "math-101", StudentID: "alice"})
	info := decode[protocol.InstructorInfo](t, student.expect(protocol.EventInstructorInfo))
	if info.InstructorID != nil || !info.Waiting {
		t.Fatalf("instructor-info = %+v, want waiting with null instructor", info)
	}

	instructor.send(protocol.EventInstructorJoin,
		protocol.InstructorJoin{SessionID: "math-101", InstructorID: "teacher"})

	arrived := decode[protocol.InstructorArrived](t, student.expect(protocol.EventInstructorArrived))
	waiting := decode[protocol.WaitingStudents](t, instructor.expect(protocol.EventWaitingStudents))
	if len(waiting.Students) != 1 {
		t.Fatalf("waiting students = %v, want one", waiting.Students)
	}
	if arrived.InstructorID == "" || waiting.Students[0] == "" {
		t.Error("both sides should learn the peer's connection id")
	}
}

func TestRelay_HandshakeRoundTrip(t *testing.T) {
	r := newRelay(t)
	instructor := r.connect(t)
	student := r.connect(t)

	instructor.send(protocol.EventInstructorJoin,
		protocol.InstructorJoin{SessionID: "math-101", InstructorID: "teacher"})
	instructor.expect(protocol.EventWaitingStudents)

	student.send(protocol.EventStudentJoin,
		protocol.StudentJoin{SessionID: "math-101", StudentID: "alice"})
	info := decode[protocol.InstructorInfo](t, student.expect(protocol.EventInstructorInfo))
	joined := decode[protocol.StudentJoined](t, instructor.expect(protocol.EventStudentJoined))
	if joined.StudentInfo.StudentID != "alice" {
		t.Fatalf("student-joined = %+v", joined)
	}

	// Offer instructor -> student, byte-identical.
	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 1 1 IN IP4 0.0.0.0"}`)
	instructor.send(protocol.EventOffer, protocol.Offer{TargetID: joined.StudentID, Offer: offer})
	offerRelay := decode[protocol.OfferRelay](t, student.expect(protocol.EventOffer))
	if !bytes.Equal(offerRelay.Offer, offer) {
		t.Errorf("offer bytes = %s, want %s", offerRelay.Offer, offer)
	}

	// Answer student -> instructor, addressed by the relayed sender id.
	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	student.send(protocol.EventAnswer, protocol.Answer{InstructorID: *info.InstructorID, Answer: answer})
	answerRelay := decode[protocol.AnswerRelay](t, instructor.expect(protocol.EventAnswer))
	if !bytes.Equal(answerRelay.Answer, answer) || answerRelay.StudentID != joined.StudentID {
		t.Errorf("answer relay = %+v", answerRelay)
	}

	// ICE candidates flow both ways.
	candidate := json.RawMessage(`{"candidate":"candidate:0 1 UDP 1 127.0.0.1 9 typ host"}`)
	instructor.send(protocol.EventICECandidate,
		protocol.ICECandidate{TargetID: joined.StudentID, Candidate: candidate})
	iceRelay := decode[protocol.ICECandidateRelay](t, student.expect(protocol.EventICECandidate))
	if !bytes.Equal(iceRelay.Candidate, candidate) || iceRelay.From != *info.InstructorID {
		t.Errorf("ice relay = %+v", iceRelay)
	}
}

func TestRelay_LateJoinerSeesLiveBroadcast(t *testing.T) {
	r := newRelay(t)
	instructor := r.connect(t)

	instructor.send(protocol.EventInstructorJoin,
		protocol.InstructorJoin{SessionID: "math-101", InstructorID: "teacher"})
	instructor.expect(protocol.EventWaitingStudents)

	instructor.send(protocol.EventBroadcastStarted,
		protocol.BroadcastState{SessionID: "math-101"})

	late := r.connect(t)
	late.send(protocol.EventStudentJoin,
		protocol.StudentJoin{SessionID: "math-101", StudentID: "bob"})
	info := decode[protocol.InstructorInfo](t, late.expect(protocol.EventInstructorInfo))
	if !info.IsBroadcasting {
		t.Error("late joiner should see isBroadcasting")
	}
	late.expect(protocol.EventBroadcastStarted)
}

func TestRelay_BroadcastStopFansOut(t *testing.T) {
	r := newRelay(t)
	instructor := r.connect(t)
	student := r.connect(t)

	instructor.send(protocol.EventInstructorJoin,
		protocol.InstructorJoin{SessionID: "math-101", InstructorID: "teacher"})
	instructor.expect(protocol.EventWaitingStudents)
	student.send(protocol.EventStudentJoin,
		protocol.StudentJoin{SessionID: "math-101", StudentID: "alice"})
	student.expect(protocol.EventInstructorInfo)

	instructor.send(protocol.EventBroadcastStarted, protocol.BroadcastState{SessionID: "math-101"})
	student.expect(protocol.EventBroadcastStarted)

	instructor.send(protocol.EventBroadcastStopped, protocol.BroadcastState{SessionID: "math-101"})
	student.expect(protocol.EventBroadcastStopped)
}

func TestRelay_ChatRoom(t *testing.T) {
	r := newRelay(t)
	alice := r.connect(t)
	bob := r.connect(t)

	alice.send(protocol.EventChatJoin, protocol.ChatJoin{
		RoomID: "math-101", UserID: "alice", UserName: "Alice", UserRole: "student"})
	bob.send(protocol.EventChatJoin, protocol.ChatJoin{
		RoomID: "math-101", UserID: "bob", UserName: "Bob", UserRole: "student"})

	joined := decode[protocol.UserJoinedChat](t, alice.expect(protocol.EventUserJoinedChat))
	if joined.UserID != "bob" {
		t.Fatalf("user-joined-chat = %+v", joined)
	}

	message := json.RawMessage(`{"text":"hello room","id":"m1"}`)
	bob.send(protocol.EventChatMessage, protocol.ChatMessage{RoomID: "math-101", Message: message})

	for _, c := range []*client{alice, bob} {
		msg := decode[protocol.NewMessage](t, c.expect(protocol.EventNewMessage))
		if !bytes.Equal(msg.Message, message) {
			t.Errorf("message bytes = %s, want %s", msg.Message, message)
		}
	}

	bob.send(protocol.EventChatTyping, protocol.ChatTyping{
		RoomID: "math-101", UserID: "bob", UserName: "Bob", IsTyping: true})
	typing := decode[protocol.UserTyping](t, alice.expect(protocol.EventUserTyping))
	if typing.UserID != "bob" || !typing.IsTyping {
		t.Errorf("user-typing = %+v", typing)
	}

	bob.send(protocol.EventChatLeave, protocol.ChatLeave{RoomID: "math-101", UserID: "bob"})
	left := decode[protocol.UserLeftChat](t, alice.expect(protocol.EventUserLeftChat))
	if left.UserID != "bob" {
		t.Errorf("user-left-chat = %+v", left)
	}
}

func TestRelay_DisconnectPropagates(t *testing.T) {
	r := newRelay(t)
	instructor := r.connect(t)
	student := r.connect(t)

	instructor.send(protocol.EventInstructorJoin,
		protocol.InstructorJoin{SessionID: "math-101", InstructorID: "teacher"})
	instructor.expect(protocol.EventWaitingStudents)
	student.send(protocol.EventStudentJoin,
		protocol.StudentJoin{SessionID: "math-101", StudentID: "alice"})
	student.expect(protocol.EventInstructorInfo)
	instructor.expect(protocol.EventStudentJoined)

	instructor.send(protocol.EventChatJoin, protocol.ChatJoin{
		RoomID: "math-101", UserID: "teacher", UserName: "T", UserRole: "instructor"})
	student.send(protocol.EventChatJoin, protocol.ChatJoin{
		RoomID: "math-101", UserID: "alice", UserName: "A", UserRole: "student"})
	instructor.expect(protocol.EventUserJoinedChat)

	instructor.conn.Close()

	// The surviving student hears about both departures; session cleanup
	// runs before chat cleanup, so instructor-left arrives first.
	student.expect(protocol.EventInstructorLeft)
	left := decode[protocol.UserLeftChat](t, student.expect(protocol.EventUserLeftChat))
	if left.UserID != "teacher" {
		t.Errorf("user-left-chat userId = %q, want teacher", left.UserID)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.sessions.Count() == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if r.sessions.Count() != 0 {
		t.Error("session should be deleted after instructor disconnect")
	}
	if r.rooms.Count() != 1 {
		t.Errorf("rooms = %d, want 1 (student still present)", r.rooms.Count())
	}
}

func TestRelay_StudentDisconnectNotifiesInstructor(t *testing.T) {
	r := newRelay(t)
	instructor := r.connect(t)
	student := r.connect(t)

	instructor.send(protocol.EventInstructorJoin,
		protocol.InstructorJoin{SessionID: "math-101", InstructorID: "teacher"})
	instructor.expect(protocol.EventWaitingStudents)
	student.send(protocol.EventStudentJoin,
		protocol.StudentJoin{SessionID: "math-101", StudentID: "alice"})
	joined := decode[protocol.StudentJoined](t, instructor.expect(protocol.EventStudentJoined))

	student.conn.Close()

	left := decode[protocol.StudentLeft](t, instructor.expect(protocol.EventStudentLeft))
	if left.StudentID != joined.StudentID {
		t.Errorf("student-left id = %q, want %q", left.StudentID, joined.StudentID)
	}
}
