package websocket

import "encoding/json"

// Actions pushed to review screens.
const (
	ActionTransactionUpdated      = "transaction.updated"
	ActionSyncCompleted           = "sync.completed"
	ActionCategorizationCompleted = "categorization.completed"
	ActionQBSyncCompleted         = "qb_sync.completed"
	ActionError                   = "error"
	ActionPong                    = "pong"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string      `json:"action"`
	Payload interface{} `json:"payload"`
}

// NewMessage encodes a message.
func NewMessage(action string, payload interface{}) []byte {
	b, _ := json.Marshal(Message{Action: action, Payload: payload})
	return b
}

// NewErrorMessage encodes an error message.
func NewErrorMessage(msg string) []byte {
	return NewMessage(ActionError, map[string]string{"message": msg})
}
