package signaling

import (
	"time"

	"github.com/rs/zerolog"

	"liverelay/pkg/interfaces"
	"liverelay/pkg/protocol"
)

// Registry is the connection lookup the router needs. Defined locally to
// avoid coupling to the websocket package's concrete registry; tests register
// fake connections.
type Registry interface {
	Get(connID string) (interfaces.Connection, bool)
}

// Router maintains broadcast session topology and relays WebRTC handshake
// payloads by connection id. It never inspects offer/answer/candidate bodies;
// the actual negotiation state machine lives in the browsers. All handlers
// run on the hub goroutine, one message at a time.
type Router struct {
	store    *Store
	registry Registry
	log      zerolog.Logger
}

// NewRouter creates a signaling router over the given store and registry.
func NewRouter(store *Store, registry Registry, log zerolog.Logger) *Router {
	return &Router{
		store:    store,
		registry: registry,
		log:      log.With().Str("component", "signaling").Logger(),
	}
}

// HandleInstructorJoin makes the sender the session's instructor, creating
// the session on first sight. Every student that was waiting for an
// instructor is told one arrived, and the instructor is answered with the
// full waiting list so its client can initiate peer connections proactively.
// Duplicate joins are idempotent takeovers; the displaced instructor
// connection gets no teardown signal.
func (r *Router) HandleInstructorJoin(conn interfaces.Connection, env *protocol.Envelope) error {
	var p protocol.InstructorJoin
	if err := env.Decode(&p); err != nil {
		return err
	}
	if !protocol.IsValidID(p.SessionID) {
		return protocol.ErrInvalidID
	}

	r.emitDeparture(r.store.Detach(conn.ID(), p.SessionID))

	waiting, prev := r.store.JoinInstructor(p.SessionID, conn.ID(), p.InstructorID, time.Now())
	if prev != "" {
		r.log.Warn().Str("session", p.SessionID).Str("displaced", prev).
			Str("instructor", conn.ID()).Msg("instructor takeover")
	}

	for _, studentConnID := range waiting {
		r.send(studentConnID, protocol.EventInstructorArrived,
			protocol.InstructorArrived{InstructorID: conn.ID()})
	}
	r.sendTo(conn, protocol.EventWaitingStudents, protocol.WaitingStudents{Students: waiting})

	r.log.Info().Str("session", p.SessionID).Str("instructor", conn.ID()).
		Int("waiting", len(waiting)).Msg("instructor joined")
	return nil
}

// HandleStudentJoin adds the sender to the session's student set, creating a
// placeholder session when the id is unseen. The student is answered with the
// instructor's connection id and broadcast state; if the broadcast is already
// live the student additionally gets the broadcast-started push a punctual
// joiner would have seen.
func (r *Router) HandleStudentJoin(conn interfaces.Connection, env *protocol.Envelope) error {
	var p protocol.StudentJoin
	if err := env.Decode(&p); err != nil {
		return err
	}
	if !protocol.IsValidID(p.SessionID) {
		return protocol.ErrInvalidID
	}

	r.emitDeparture(r.store.Detach(conn.ID(), p.SessionID))

	res := r.store.JoinStudent(p.SessionID, conn.ID(), p.StudentID, time.Now())

	if res.Waiting {
		r.sendTo(conn, protocol.EventInstructorInfo, protocol.InstructorInfo{Waiting: true})
		r.log.Info().Str("session", p.SessionID).Str("student", conn.ID()).
			Msg("student joined, waiting for instructor")
		return nil
	}

	instructorID := res.InstructorConnID
	r.sendTo(conn, protocol.EventInstructorInfo, protocol.InstructorInfo{
		InstructorID:   &instructorID,
		IsBroadcasting: res.Broadcasting,
	})
	r.send(instructorID, protocol.EventStudentJoined, protocol.StudentJoined{
		StudentID:   conn.ID(),
		StudentInfo: protocol.StudentInfo{StudentID: p.StudentID},
	})
	if res.Broadcasting {
		// Late joiner: replay the signal to initiate a peer connection.
		r.sendTo(conn, protocol.EventBroadcastStarted, nil)
	}

	r.log.Info().Str("session", p.SessionID).Str("student", conn.ID()).
		Bool("broadcasting", res.Broadcasting).Msg("student joined")
	return nil
}

// HandleBroadcastState turns the session's broadcasting flag on or off and
// fans the event out to every student in the session. Only the recorded
// instructor connection is honored; anything else is dropped silently.
func (r *Router) HandleBroadcastState(conn interfaces.Connection, env *protocol.Envelope, on bool) error {
	var p protocol.BroadcastState
	if err := env.Decode(&p); err != nil {
		return err
	}

	students, err := r.store.SetBroadcasting(p.SessionID, conn.ID(), on, time.Now())
	if err != nil {
		return err
	}

	event := protocol.EventBroadcastStopped
	if on {
		event = protocol.EventBroadcastStarted
	}
	for _, studentConnID := range students {
		r.send(studentConnID, event, nil)
	}

	r.log.Info().Str("session", p.SessionID).Bool("broadcasting", on).
		Int("students", len(students)).Msg("broadcast state changed")
	return nil
}

// HandleOffer relays an SDP offer to the addressed connection, byte-identical,
// tagged with the sender's connection id. The sender is not verified to be an
// instructor; integrity relies on caller discipline.
func (r *Router) HandleOffer(conn interfaces.Connection, env *protocol.Envelope) error {
	var p protocol.Offer
	if err := env.Decode(&p); err != nil {
		return err
	}

	target, ok := r.registry.Get(p.TargetID)
	if !ok {
		return ErrUnknownTarget
	}
	r.sendTo(target, protocol.EventOffer, protocol.OfferRelay{
		Offer:        p.Offer,
		InstructorID: conn.ID(),
	})
	return nil
}

// HandleAnswer relays an SDP answer back to the instructor connection, tagged
// with the answering student's connection id.
func (r *Router) HandleAnswer(conn interfaces.Connection, env *protocol.Envelope) error {
	var p protocol.Answer
	if err := env.Decode(&p); err != nil {
		return err
	}

	target, ok := r.registry.Get(p.InstructorID)
	if !ok {
		return ErrUnknownTarget
	}
	r.sendTo(target, protocol.EventAnswer, protocol.AnswerRelay{
		Answer:    p.Answer,
		StudentID: conn.ID(),
	})
	return nil
}

// HandleICECandidate relays an ICE candidate to the addressed connection,
// tagged with the sender's connection id.
func (r *Router) HandleICECandidate(conn interfaces.Connection, env *protocol.Envelope) error {
	var p protocol.ICECandidate
	if err := env.Decode(&p); err != nil {
		return err
	}

	target, ok := r.registry.Get(p.TargetID)
	if !ok {
		return ErrUnknownTarget
	}
	r.sendTo(target, protocol.EventICECandidate, protocol.ICECandidateRelay{
		Candidate: p.Candidate,
		From:      conn.ID(),
	})
	return nil
}

// HandleDisconnect performs the session-side cleanup for a lost connection.
// There is no explicit leave in the protocol, so this is the only departure
// path.
func (r *Router) HandleDisconnect(conn interfaces.Connection) {
	r.emitDeparture(r.store.Remove(conn.ID()))
}

// emitDeparture notifies the survivors of a membership removal. Instructor
// departures tell every student the session is over; student departures tell
// the instructor, if one is present.
func (r *Router) emitDeparture(dep *Departure) {
	if dep == nil {
		return
	}
	switch dep.Role {
	case RoleInstructor:
		for _, studentConnID := range dep.Students {
			r.send(studentConnID, protocol.EventInstructorLeft, nil)
		}
	case RoleStudent:
		if dep.InstructorConnID != "" {
			r.send(dep.InstructorConnID, protocol.EventStudentLeft,
				protocol.StudentLeft{StudentID: dep.StudentConnID})
		}
	}
}

// send delivers an event to a connection id. Sends to ids that are no longer
// connected are no-ops, matching the transport's swallow semantics.
func (r *Router) send(connID, event string, payload any) {
	conn, ok := r.registry.Get(connID)
	if !ok {
		return
	}
	r.sendTo(conn, event, payload)
}

func (r *Router) sendTo(conn interfaces.Connection, event string, payload any) {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		r.log.Error().Err(err).Str("event", event).Msg("failed to build envelope")
		return
	}
	if err := conn.WriteJSON(env); err != nil {
		r.log.Debug().Err(err).Str("event", event).Str("conn", conn.ID()).
			Msg("outbound send dropped")
	}
}
