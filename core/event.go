package core

import (
	"encoding/json"
	"time"
)

// ActionEvent is an immutable server-side audit record for an action.
// The client only reads events and orders them by CreatedAt.
type ActionEvent struct {
	ID        string          `json:"id"`
	ActionID  string          `json:"action_id"`
	EventType string          `json:"event_type"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// PolicyInfo describes the governor's active policy file. Read-only,
// consumed by a peripheral banner.
type PolicyInfo struct {
	PolicyFile    string `json:"policy_file"`
	PolicyPath    string `json:"policy_path"`
	Exists        bool   `json:"exists"`
	PolicyVersion string `json:"policy_version,omitempty"`
}
