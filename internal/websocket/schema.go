package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer    Action = "answer"
	ActionPageEvent Action = "page_event"
	ActionHostEvent Action = "host_event"
	ActionHostAck   Action = "host_ack"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest is sent by the client to record a single answer.
// Empty option and text clears the answer.
type AnswerRequest struct {
	Action       Action `json:"action"`
	QuestionID   string `json:"question_id"`
	OptionID     string `json:"option_id,omitempty"`
	TextResponse string `json:"text_response,omitempty"`
}

// PageEventRequest reports a raw browser-layer signal.
type PageEventRequest struct {
	Action Action `json:"action"`
	Type   string `json:"type"`
	Chord  string `json:"chord,omitempty"`
}

// HostEventRequest reports a raw kiosk-layer signal.
type HostEventRequest struct {
	Action Action `json:"action"`
	Type   string `json:"type"`
	Chord  string `json:"chord,omitempty"`
}

// HostAckRequest acknowledges a window command sent by the server.
type HostAckRequest struct {
	Action  Action `json:"action"`
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// SubmitRequest asks to finish the attempt. Confirmed must be true for a
// manual submit with unanswered questions.
type SubmitRequest struct {
	Action    Action `json:"action"`
	Confirmed bool   `json:"confirmed"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState   Event = "state"
	EventCommand Event = "command"
	EventError   Event = "error"
	EventPong    Event = "pong"
)

// Window commands carried by CommandResponse.
const (
	CommandOpenWindow          = "open_window"
	CommandReleaseRestrictions = "release_restrictions"
	CommandCloseWindow         = "close_window"
)

// StateResponse pushes the current session snapshot. Payload is a
// lockdown.Snapshot; kept untyped here to avoid an import cycle with the
// handler layer.
type StateResponse struct {
	Event Event       `json:"event"`
	State interface{} `json:"state"`
}

// CommandResponse instructs the kiosk shell to act on its window.
type CommandResponse struct {
	Event   Event  `json:"event"`
	Command string `json:"command"`
	QuizID  string `json:"quiz_id,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
