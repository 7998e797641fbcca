package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"benchdeck/internal/supervisor"
)

func apiClient() *http.Client {
	socketPath := defaultSocketPath()
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", socketPath)
			},
		},
	}
}

func apiGet(path string, v any) error {
	resp, err := apiClient().Get("http://benchdeck" + path)
	if err != nil {
		return fmt.Errorf("connecting to daemon: %w (is benchdeck daemon running?)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return fmt.Errorf("API error %d: %s", resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

func apiPost(path string) (map[string]any, error) {
	resp, err := apiClient().Post("http://benchdeck"+path, "application/json", nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to daemon: %w (is benchdeck daemon running?)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return result, nil
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show worker status",
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")
		if watch {
			return runStatusWatch()
		}

		var snap supervisor.Snapshot
		if err := apiGet("/v1/worker", &snap); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STATE\tPID\tUPTIME\tRESTARTS\tSOURCE")
		pid := "-"
		if snap.PID > 0 {
			pid = strconv.Itoa(snap.PID)
		}
		uptime := "-"
		if !snap.StartedAt.IsZero() && snap.State.Usable() {
			uptime = time.Since(snap.StartedAt).Round(time.Second).String()
		}
		source := "spawned"
		if snap.External {
			source = "external"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", snap.State, pid, uptime, snap.Restarts, source)
		w.Flush()

		if snap.State == supervisor.StateFailed {
			detail := fmt.Sprintf("\nworker failed: exit %d", snap.ExitCode)
			if snap.LastError != "" {
				detail += ": " + snap.LastError
			}
			fmt.Println(detail)
		}
		return nil
	},
}

// restart command
var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the worker process",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := apiPost("/v1/worker/restart")
		if err != nil {
			return err
		}
		fmt.Printf("worker: %v\n", result["status"])
		return nil
	},
}

// logs command
var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent worker output",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("lines")
		var resp struct {
			Lines []string `json:"lines"`
		}
		if err := apiGet("/v1/worker/logs?lines="+strconv.Itoa(n), &resp); err != nil {
			return err
		}
		for _, line := range resp.Lines {
			fmt.Println(line)
		}
		return nil
	},
}

// runs command
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List benchmark runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result map[string]any
		if err := apiGet("/v1/runs", &result); err != nil {
			return err
		}
		if success, _ := result["success"].(bool); !success {
			return fmt.Errorf("list runs failed: %v", result["error"])
		}

		runs, _ := result["runs"].([]any)
		if len(runs) == 0 {
			fmt.Println("No runs")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSUITE\tMODEL\tSTATUS")
		for _, r := range runs {
			run, ok := r.(map[string]any)
			if !ok {
				continue
			}
			fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", run["id"], run["suite"], run["model"], run["status"])
		}
		w.Flush()
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("watch", false, "live-updating status view")
	logsCmd.Flags().IntP("lines", "n", 50, "number of lines to show")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(runsCmd)
}
