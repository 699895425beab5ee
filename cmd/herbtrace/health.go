package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	healthWait     time.Duration
	healthInterval = time.Second
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the server is alive and its database reachable",
	Long: `health reports the server's liveness, uptime and readiness. It exits
non-zero while the server is not ready, so it can gate deploy scripts and
container health checks. With --wait it keeps polling /readyz until the server is
ready or the wait elapses.`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

// healthReport is what the health command prints.
type healthReport struct {
	Server    string `json:"server"`
	Liveness  string `json:"liveness"`
	Uptime    string `json:"uptime,omitempty"`
	Readiness string `json:"readiness"`
	Attempts  int    `json:"attempts"`
}

func (r healthReport) ready() bool { return r.Readiness == "ready" }

func runHealth(cmd *cobra.Command, args []string) error {
	client := newClient()
	report := healthReport{Server: serverURL}

	var live struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	if err := client.getJSON("/healthz", &live); err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	report.Liveness, report.Uptime = live.Status, live.Uptime

	deadline := time.Now().Add(healthWait)
	for {
		report.Attempts++
		report.Readiness = readiness(client)
		if report.ready() || !time.Now().Add(healthInterval).Before(deadline) {
			break
		}
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-time.After(healthInterval):
		}
	}

	if structuredOutput() {
		if err := printOutput(report); err != nil {
			return err
		}
	} else {
		printTable([]string{"Check", "Status"}, [][]string{
			{"Server", report.Server},
			{"Liveness", report.Liveness},
			{"Uptime", report.Uptime},
			{"Readiness", report.Readiness},
		})
	}

	if !report.ready() {
		return fmt.Errorf("server %s is not ready (%s after %d attempts)", report.Server, report.Readiness, report.Attempts)
	}
	return nil
}

// readiness returns the status /readyz reports, reading it from the error
// body when the server answers 503.
func readiness(client *herbClient) string {
	var resp struct {
		Status string `json:"status"`
	}
	err := client.getJSON("/readyz", &resp)
	if err == nil {
		return resp.Status
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) && json.Unmarshal(apiErr.Body, &resp) == nil && resp.Status != "" {
		return resp.Status
	}
	return "unreachable"
}

func init() {
	healthCmd.Flags().DurationVar(&healthWait, "wait", 0, "Keep polling until ready for up to this long, e.g. 30s")
}
