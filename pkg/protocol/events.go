package protocol

// Inbound event names. These are the only events clients may send;
// anything else is dropped by the hub.
const (
	EventInstructorJoin   = "instructor-join"
	EventStudentJoin      = "student-join"
	EventBroadcastStarted = "broadcast-started"
	EventBroadcastStopped = "broadcast-stopped"
	EventOffer            = "offer"
	EventAnswer           = "answer"
	EventICECandidate     = "ice-candidate"
	EventChatJoin         = "chat-join"
	EventChatMessage      = "chat-message"
	EventChatTyping       = "chat-typing"
	EventChatLeave        = "chat-leave"
)

// Outbound event names. broadcast-started/stopped and offer/answer/ice-candidate
// reuse the inbound names on the way out.
const (
	EventInstructorArrived = "instructor-arrived"
	EventWaitingStudents   = "waiting-students"
	EventStudentJoined     = "student-joined"
	EventInstructorInfo    = "instructor-info"
	EventUserJoinedChat    = "user-joined-chat"
	EventNewMessage        = "new-message"
	EventUserTyping        = "user-typing"
	EventUserLeftChat      = "user-left-chat"
	EventInstructorLeft    = "instructor-left"
	EventStudentLeft       = "student-left"
)

// IsInboundEvent reports whether clients are allowed to send this event.
func IsInboundEvent(event string) bool {
	switch event {
	case EventInstructorJoin,
		EventStudentJoin,
		EventBroadcastStarted,
		EventBroadcastStopped,
		EventOffer,
		EventAnswer,
		EventICECandidate,
		EventChatJoin,
		EventChatMessage,
		EventChatTyping,
		EventChatLeave:
		return true
	default:
		return false
	}
}
