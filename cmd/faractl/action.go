package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/faramesh/faracore-go/client"
	"github.com/faramesh/faracore-go/core"
)

var (
	submitParams   string
	submitContext  string
	submitWait     bool
	submitStart    bool
	submitApproval bool

	getCopyToken  bool
	resolveReason string

	listLimit  int
	listAgent  string
	listTool   string
	listStatus string

	watchInterval time.Duration
	watchTimeout  time.Duration
)

var actionCmd = &cobra.Command{
	Use:     "action",
	Aliases: []string{"a"},
	Short:   "Action lifecycle commands",
}

var actionSubmitCmd = &cobra.Command{
	Use:   "submit <agent-id> <tool> <operation>",
	Short: "Submit an action for a policy decision",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		req := client.SubmitRequest{
			AgentID:   args[0],
			Tool:      args[1],
			Operation: args[2],
		}
		if err := decodeJSONFlag(submitParams, &req.Params); err != nil {
			fatal(fmt.Errorf("--params: %w", err))
		}
		if err := decodeJSONFlag(submitContext, &req.Context); err != nil {
			fatal(fmt.Errorf("--context: %w", err))
		}

		c := newClient()
		ctx := context.Background()

		var a core.Action
		var err error
		if submitWait {
			a, err = c.SubmitAndWait(ctx, req, client.WaitOptions{
				RequireApproval: submitApproval,
				AutoStart:       submitStart,
				PollInterval:    watchInterval,
				Timeout:         watchTimeout,
			})
		} else {
			a, err = c.Submit(ctx, req)
		}
		if err != nil {
			fatal(err)
		}
		printResult(toRow(a))
		if a.Status == core.StatusPendingApproval {
			fmt.Printf("\nAction is pending approval. Resolve it with:\n")
			fmt.Printf("  faractl action approve %s\n", a.ID)
		}
	},
}

var actionGetCmd = &cobra.Command{
	Use:   "get <action-id>",
	Short: "Show one action",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newClient().Get(context.Background(), args[0])
		if err != nil && core.KindOf(err) != core.KindDenied {
			fatal(err)
		}
		printResult(toRow(a))
		if getCopyToken && a.ApprovalToken != "" {
			// explicit user-initiated copy: the one place the full token shows
			fmt.Printf("\nApproval token: %s\n", a.ApprovalToken)
		}
		if err != nil {
			fmt.Printf("\nDenied: %s\n", a.Reason)
		}
	},
}

var actionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List actions, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		actions, err := newClient().List(context.Background(), client.ListOptions{
			Limit:   listLimit,
			AgentID: listAgent,
			Tool:    listTool,
			Status:  core.Status(listStatus),
		})
		if err != nil {
			fatal(err)
		}
		printResult(toRows(actions))
	},
}

var actionApproveCmd = &cobra.Command{
	Use:   "approve <action-id> [approval-token]",
	Short: "Approve a pending action",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		tok := ""
		if len(args) == 2 {
			tok = args[1]
		}
		a, err := newClient().Approve(context.Background(), args[0], tok, resolveReason)
		if err != nil {
			fatal(err)
		}
		printResult(toRow(a))
	},
}

var actionDenyCmd = &cobra.Command{
	Use:   "deny <action-id> [approval-token]",
	Short: "Deny a pending action",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		tok := ""
		if len(args) == 2 {
			tok = args[1]
		}
		a, err := newClient().Deny(context.Background(), args[0], tok, resolveReason)
		if err != nil {
			fatal(err)
		}
		printResult(toRow(a))
	},
}

var actionStartCmd = &cobra.Command{
	Use:   "start <action-id>",
	Short: "Mark an allowed or approved action as executing",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newClient().Start(context.Background(), args[0])
		if err != nil {
			fatal(err)
		}
		printResult(toRow(a))
	},
}

var actionWatchCmd = &cobra.Command{
	Use:   "watch <action-id>",
	Short: "Poll an action until it reaches a terminal state",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newClient().WaitForCompletion(context.Background(), args[0], client.WaitOptions{
			PollInterval: watchInterval,
			Timeout:      watchTimeout,
		})
		if err != nil {
			fatal(err)
		}
		printResult(toRow(a))
	},
}

var actionReplayCmd = &cobra.Command{
	Use:   "replay <action-id>",
	Short: "Resubmit a finished action as a new one",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newClient().Replay(context.Background(), args[0])
		if err != nil {
			fatal(err)
		}
		printResult(toRow(a))
	},
}

var actionEventsCmd = &cobra.Command{
	Use:   "events <action-id>",
	Short: "Show an action's audit trail",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		events, err := newClient().Events(context.Background(), args[0])
		if err != nil {
			fatal(err)
		}
		printResult(events)
	},
}

func decodeJSONFlag(s string, out *map[string]interface{}) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), out)
}

func init() {
	actionSubmitCmd.Flags().StringVar(&submitParams, "params", "", "Tool params as JSON")
	actionSubmitCmd.Flags().StringVar(&submitContext, "context", "", "Extra context as JSON")
	actionSubmitCmd.Flags().BoolVar(&submitWait, "wait", false, "Block until the action finishes")
	actionSubmitCmd.Flags().BoolVar(&submitStart, "auto-start", false, "Start the action once it is startable (with --wait)")
	actionSubmitCmd.Flags().BoolVar(&submitApproval, "require-approval", false, "Keep waiting through an approval gate (with --wait)")

	actionGetCmd.Flags().BoolVar(&getCopyToken, "copy-token", false, "Print the full approval token")

	for _, c := range []*cobra.Command{actionApproveCmd, actionDenyCmd} {
		c.Flags().StringVar(&resolveReason, "reason", "", "Reason recorded with the decision")
	}

	actionListCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of actions")
	actionListCmd.Flags().StringVar(&listAgent, "agent", "", "Filter by agent id")
	actionListCmd.Flags().StringVar(&listTool, "tool", "", "Filter by tool")
	actionListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status")

	for _, c := range []*cobra.Command{actionWatchCmd, actionSubmitCmd} {
		c.Flags().DurationVar(&watchInterval, "poll-interval", time.Second, "Poll interval")
		c.Flags().DurationVar(&watchTimeout, "wait-timeout", 60*time.Second, "Overall wait timeout")
	}

	actionCmd.AddCommand(
		actionSubmitCmd, actionGetCmd, actionListCmd,
		actionApproveCmd, actionDenyCmd, actionStartCmd,
		actionWatchCmd, actionReplayCmd, actionEventsCmd,
	)
	rootCmd.AddCommand(actionCmd)
}
