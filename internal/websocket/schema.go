package websocket

import "encoding/json"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSave   Action = "save"
	ActionMark   Action = "mark"
	ActionSubmit Action = "submit"
	ActionLog    Action = "log"
	ActionPing   Action = "ping"
)

// Request wraps every client message. Data holds the same JSON body the
// matching REST endpoint accepts.
type Request struct {
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventMarked    Event = "marked"
	EventSubmitted Event = "submitted"
	EventLogged    Event = "logged"
	EventPong      Event = "pong"
)

// Response is sent for every handled message.
type Response struct {
	Event Event  `json:"event"`
	Data  any    `json:"data,omitempty"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}
