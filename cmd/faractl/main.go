package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/faramesh/faracore-go/client"
	"github.com/faramesh/faracore-go/observability"
)

var (
	apiURL  string
	token   string
	output  string
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "faractl",
	Short: "FaraCore CLI - govern and inspect agent actions",
	Long:  `faractl is a command line interface for a FaraCore execution governor.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&apiURL, "api-url", "a", "", "Governor API URL (default $FARACORE_BASE_URL or http://127.0.0.1:8000)")
	rootCmd.PersistentFlags().StringVarP(&token, "token", "t", "", "API bearer token (default $FARACORE_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Per-request timeout (default $FARACORE_TIMEOUT or 5s)")
}

var registerMetrics sync.Once

// loadConfig builds the SDK config from env with flags layered on top.
func loadConfig() client.Config {
	cfg, err := client.FromEnv()
	if err != nil {
		fatal(err)
	}
	if apiURL != "" {
		cfg.BaseURL = apiURL
	}
	if token != "" {
		cfg.Token = token
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	return cfg
}

func newLogger(cfg client.Config) *zap.Logger {
	registerMetrics.Do(func() {
		observability.RegisterAll(prometheus.DefaultRegisterer)
	})
	log, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fatal(err)
	}
	return log
}

func newClient() *client.Client {
	cfg := loadConfig()
	return client.New(cfg, newLogger(cfg))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
