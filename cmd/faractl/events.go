package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/faramesh/faracore-go/client"
	"github.com/faramesh/faracore-go/store"
	"github.com/faramesh/faracore-go/stream"
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow live action updates from the governor",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		log := newLogger(cfg)
		c := client.New(cfg, log)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st := store.New()
		updates, cancel := st.Subscribe(64)
		defer cancel()

		sub := stream.New(stream.Options{
			BaseURL:        cfg.BaseURL,
			Token:          cfg.Token,
			ReconnectDelay: cfg.ReconnectDelay,
			Logger:         log,
			OnReconnect: func(ctx context.Context) error {
				actions, err := c.List(ctx, client.ListOptions{})
				if err != nil {
					return err
				}
				st.UpsertAll(actions)
				return nil
			},
		}, st)
		sub.Start(ctx)
		defer sub.Close()

		fmt.Fprintln(os.Stderr, "Following action updates (Ctrl-C to stop)...")
		for {
			select {
			case <-ctx.Done():
				return
			case a, ok := <-updates:
				if !ok {
					return
				}
				if output == "json" {
					printResult(toRow(a))
					continue
				}
				fmt.Printf("%s  %s  %s/%s  %s\n",
					a.UpdatedAt.Local().Format("15:04:05"),
					shortID(a.ID), a.Tool, a.Operation, a.Status)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(tailCmd)
}
