package core

import "time"

type Decision string

const (
	DecisionAllow           Decision = "allow"
	DecisionDeny            Decision = "deny"
	DecisionRequireApproval Decision = "require_approval"
)

type Status string

const (
	StatusPendingDecision Status = "pending_decision"
	StatusAllowed         Status = "allowed"
	StatusDenied          Status = "denied"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusExecuting       Status = "executing"
	StatusSucceeded       Status = "succeeded"
	StatusFailed          Status = "failed"
	StatusTimeout         Status = "timeout"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Action is a governed request tracked through the decision/execution
// lifecycle. Created server-side on submit; the client only replaces whole
// records with freshly received ones.
type Action struct {
	ID            string                 `json:"id"`
	AgentID       string                 `json:"agent_id"`
	Tool          string                 `json:"tool"`
	Operation     string                 `json:"operation"`
	Params        map[string]interface{} `json:"params"`
	Context       map[string]interface{} `json:"context"`
	Status        Status                 `json:"status"`
	Decision      Decision               `json:"decision,omitempty"`
	Reason        string                 `json:"reason,omitempty"`
	RiskLevel     RiskLevel              `json:"risk_level,omitempty"`
	ApprovalToken string                 `json:"approval_token,omitempty"`
	PolicyVersion string                 `json:"policy_version,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// IsTerminal returns true if the action is in a final state.
func (a *Action) IsTerminal() bool {
	switch a.Status {
	case StatusDenied, StatusSucceeded, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

// Startable returns true if the action is eligible for Start.
func (a *Action) Startable() bool {
	return a.Status == StatusAllowed || a.Status == StatusApproved
}

// RedactedToken returns the approval token safe for logs and table output.
// The full token is only for explicit user-initiated copy.
func (a *Action) RedactedToken() string {
	if a.ApprovalToken == "" {
		return ""
	}
	if len(a.ApprovalToken) <= 4 {
		return "****"
	}
	return a.ApprovalToken[:4] + "****"
}
