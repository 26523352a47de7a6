package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/faramesh/faracore-go/core"
)

// actionRow is the CLI view of an action. The approval token is always
// redacted here; the full token is only printed by an explicit copy request.
type actionRow struct {
	ID            string `json:"id"`
	AgentID       string `json:"agent_id"`
	Tool          string `json:"tool"`
	Operation     string `json:"operation"`
	Status        string `json:"status"`
	Decision      string `json:"decision,omitempty"`
	Reason        string `json:"reason,omitempty"`
	RiskLevel     string `json:"risk_level,omitempty"`
	ApprovalToken string `json:"approval_token,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func toRow(a core.Action) actionRow {
	return actionRow{
		ID:            a.ID,
		AgentID:       a.AgentID,
		Tool:          a.Tool,
		Operation:     a.Operation,
		Status:        string(a.Status),
		Decision:      string(a.Decision),
		Reason:        a.Reason,
		RiskLevel:     string(a.RiskLevel),
		ApprovalToken: a.RedactedToken(),
		CreatedAt:     a.CreatedAt.Local().Format(time.RFC3339),
		UpdatedAt:     a.UpdatedAt.Local().Format(time.RFC3339),
	}
}

func toRows(actions []core.Action) []actionRow {
	rows := make([]actionRow, 0, len(actions))
	for _, a := range actions {
		rows = append(rows, toRow(a))
	}
	return rows
}

func printResult(v interface{}) {
	if output == "json" {
		json.NewEncoder(os.Stdout).Encode(v)
		return
	}
	printTable(v)
}

func printTable(v interface{}) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	switch data := v.(type) {
	case []actionRow:
		if len(data) == 0 {
			fmt.Println("No actions found.")
			return
		}
		fmt.Fprintln(w, "ID\tAGENT\tTOOL\tOPERATION\tSTATUS\tRISK\tUPDATED")
		for _, a := range data {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				shortID(a.ID), a.AgentID, a.Tool, a.Operation, a.Status, a.RiskLevel, a.UpdatedAt)
		}
	case actionRow:
		fmt.Fprintf(w, "ID:\t%s\n", data.ID)
		fmt.Fprintf(w, "Agent:\t%s\n", data.AgentID)
		fmt.Fprintf(w, "Tool:\t%s\n", data.Tool)
		fmt.Fprintf(w, "Operation:\t%s\n", data.Operation)
		fmt.Fprintf(w, "Status:\t%s\n", data.Status)
		if data.Decision != "" {
			fmt.Fprintf(w, "Decision:\t%s\n", data.Decision)
		}
		if data.Reason != "" {
			fmt.Fprintf(w, "Reason:\t%s\n", data.Reason)
		}
		if data.RiskLevel != "" {
			fmt.Fprintf(w, "Risk:\t%s\n", data.RiskLevel)
		}
		if data.ApprovalToken != "" {
			fmt.Fprintf(w, "Approval token:\t%s (use --copy-token for the full value)\n", data.ApprovalToken)
		}
		fmt.Fprintf(w, "Created:\t%s\n", data.CreatedAt)
		fmt.Fprintf(w, "Updated:\t%s\n", data.UpdatedAt)
	case []core.ActionEvent:
		if len(data) == 0 {
			fmt.Println("No events found.")
			return
		}
		fmt.Fprintln(w, "TIME\tEVENT\tMETA")
		for _, e := range data {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				e.CreatedAt.Local().Format(time.RFC3339), e.EventType, truncate(string(e.Meta), 60))
		}
	case core.PolicyInfo:
		fmt.Fprintf(w, "Policy file:\t%s\n", data.PolicyFile)
		fmt.Fprintf(w, "Path:\t%s\n", data.PolicyPath)
		fmt.Fprintf(w, "Exists:\t%v\n", data.Exists)
		if data.PolicyVersion != "" {
			fmt.Fprintf(w, "Version:\t%s\n", data.PolicyVersion)
		}
	default:
		json.NewEncoder(os.Stdout).Encode(v)
	}
	w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
