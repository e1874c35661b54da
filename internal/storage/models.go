package storage

import (
	"encoding/json"
	"time"
)

// Registry action kinds and outcomes. The sequence of actions for an object
// id is the durable state machine behind exactly-once submission.
const (
	ActionCheck  = "check"
	ActionSubmit = "submit"

	OutcomeSkip  = "skip"
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// AlertRecord is one raw alert as received from the stream.
type AlertRecord struct {
	ObjectID   string
	Candid     string
	Topic      string
	EmittedJD  float64
	ReceivedAt time.Time
	Payload    json.RawMessage
}

// DecisionRecord is one filter verdict. Written once, never updated.
type DecisionRecord struct {
	ObjectID  string
	Candid    string
	Topic     string
	DecidedAt time.Time
	Passed    bool
	Reason    string
	Metrics   json.RawMessage
}

// RegistryActionRecord is one dedup check or submission attempt.
type RegistryActionRecord struct {
	ObjectID string
	Candid   string
	At       time.Time
	Action   string
	Outcome  string
	Detail   string
}
