package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/recap/internal/api"
	"github.com/kalambet/recap/internal/config"
	"github.com/kalambet/recap/internal/memory"
	"github.com/kalambet/recap/internal/metrics"
	"github.com/kalambet/recap/internal/storage"
)

// --- summarize ---

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize a meeting transcript through the running server",
	Long: `Summarize a meeting transcript through the running server.

Examples:
  recap summarize --file standup.txt --thread team-alpha
  recap summarize --url https://example.com/notes.html --title "Launch sync"
  cat notes.txt | recap summarize --file - --no-context`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		text, _ := cmd.Flags().GetString("text")
		link, _ := cmd.Flags().GetString("url")
		thread, _ := cmd.Flags().GetString("thread")
		session, _ := cmd.Flags().GetString("session")
		title, _ := cmd.Flags().GetString("title")
		noContext, _ := cmd.Flags().GetBool("no-context")
		asJSON, _ := cmd.Flags().GetBool("json")

		req, err := buildSummarizeRequest(cmd.InOrStdin(), file, text, link)
		if err != nil {
			return err
		}
		req.ThreadID = thread
		req.SessionID = session
		if noContext {
			useContext := false
			req.UseContext = &useContext
		}
		if title != "" {
			req.MeetingInfo = &api.MeetingInfo{Title: title}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var res api.AnalyzeResponse
		if err := client.call(cmd.Context(), http.MethodPost, "/api/summarize", req, &res); err != nil {
			return err
		}

		if asJSON {
			return printJSON(res)
		}
		if res.Summary != nil {
			renderSummary(os.Stdout, *res.Summary)
		}
		for _, w := range res.Warnings {
			printWarning("%s", w)
		}
		printSuccess("Summarized into thread %s in %.0f ms (context used: %t)", res.ThreadID, res.LatencyMs, res.UsedContext)
		return nil
	},
}

// buildSummarizeRequest picks exactly one transcript source. A file of "-"
// reads stdin.
func buildSummarizeRequest(stdin io.Reader, file, text, link string) (api.SummarizeRequest, error) {
	var req api.SummarizeRequest
	sources := 0
	for _, s := range []string{file, text, link} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		return req, fmt.Errorf("exactly one of --file, --text, or --url is required")
	}

	switch {
	case text != "":
		req.Transcript = text
	case link != "":
		req.TranscriptURL = link
	case file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return req, fmt.Errorf("reading stdin: %w", err)
		}
		req.Transcript = string(data)
	default:
		data, err := os.ReadFile(file)
		if err != nil {
			return req, fmt.Errorf("reading file: %w", err)
		}
		req.Transcript = string(data)
	}
	if req.TranscriptURL == "" && strings.TrimSpace(req.Transcript) == "" {
		return req, fmt.Errorf("transcript is empty")
	}
	return req, nil
}

func init() {
	summarizeCmd.Flags().String("file", "", "transcript file (- for stdin)")
	summarizeCmd.Flags().String("text", "", "transcript text")
	summarizeCmd.Flags().String("url", "", "transcript URL fetched by the server")
	summarizeCmd.Flags().String("thread", "", "thread id (default: the session's thread or \"default\")")
	summarizeCmd.Flags().String("session", "", "session id")
	summarizeCmd.Flags().String("title", "", "meeting title for the meeting log")
	summarizeCmd.Flags().Bool("no-context", false, "ignore the thread's previous meetings")
	summarizeCmd.Flags().Bool("json", false, "print the raw JSON response")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or reset thread memory",
}

var historyShowCmd = &cobra.Command{
	Use:   "show [thread]",
	Short: "Show a thread's summary, or list all threads",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			var list struct {
				Threads []memory.Summary `json:"threads"`
			}
			if err := client.call(cmd.Context(), http.MethodGet, "/api/threads", nil, &list); err != nil {
				return err
			}
			if len(list.Threads) == 0 {
				fmt.Println("No threads yet.")
				return nil
			}
			for _, s := range list.Threads {
				fmt.Printf("%-24s %3d meetings  %s\n", colorize(colorBold, s.ThreadID), s.TotalMeetings, strings.Join(s.KeyPeople, ", "))
			}
			return nil
		}

		var s memory.Summary
		if err := client.call(cmd.Context(), http.MethodGet, "/api/threads/"+url.PathEscape(args[0]), nil, &s); err != nil {
			return err
		}
		printStatus("Thread", "%s", s.ThreadID)
		printStatus("Meetings", "%d", s.TotalMeetings)
		printStatus("Key people", "%s", strings.Join(s.KeyPeople, ", "))
		printStatus("Action items", "%d", s.RecentActionItems)
		printStatus("Decisions", "%d", s.RecentDecisions)
		return nil
	},
}

var historyDigestCmd = &cobra.Command{
	Use:   "digest <thread>",
	Short: "Print the context digest the next summary of a thread would see",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, _ := cmd.Flags().GetInt("records")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var d struct {
			Digest string `json:"digest"`
		}
		path := fmt.Sprintf("/api/threads/%s/digest?records=%d", url.PathEscape(args[0]), records)
		if err := client.call(cmd.Context(), http.MethodGet, path, nil, &d); err != nil {
			return err
		}
		fmt.Println(d.Digest)
		return nil
	},
}

var historyResetCmd = &cobra.Command{
	Use:   "reset <thread>",
	Short: "Forget everything remembered for a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete the history of thread %s. Use --confirm to proceed.", args[0])
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.call(cmd.Context(), http.MethodDelete, "/api/threads/"+url.PathEscape(args[0]), nil, nil); err != nil {
			return err
		}
		printSuccess("Thread %s reset", args[0])
		return nil
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export <thread>",
	Short: "Export a thread's full history as JSON or YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var h memory.ThreadHistory
		if err := client.call(cmd.Context(), http.MethodGet, "/api/threads/"+url.PathEscape(args[0])+"/history", nil, &h); err != nil {
			return err
		}

		w := io.Writer(os.Stdout)
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}

		if err := writeHistory(w, h, format); err != nil {
			return err
		}
		if output != "" {
			printSuccess("Thread %s exported to %s", args[0], output)
		}
		return nil
	},
}

func writeHistory(w io.Writer, h memory.ThreadHistory, format string) error {
	switch strings.ToLower(format) {
	case "", "json":
		return newJSONEncoder(w).Encode(h)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(h); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

var historyMeetingsCmd = &cobra.Command{
	Use:   "meetings [thread]",
	Short: "List the meeting log, optionally for one thread",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		q.Set("limit", fmt.Sprint(limit))
		if len(args) == 1 {
			q.Set("thread_id", args[0])
		}
		var meetings []storage.Meeting
		if err := client.call(cmd.Context(), http.MethodGet, "/api/meetings?"+q.Encode(), nil, &meetings); err != nil {
			return err
		}
		if len(meetings) == 0 {
			fmt.Println("No meetings found.")
			return nil
		}
		for _, m := range meetings {
			title := m.Title
			if title == "" {
				title = m.Record.TLDR
			}
			fmt.Printf("%s  %-16s %s\n", m.CreatedAt.Local().Format(time.DateTime), m.ThreadID, title)
		}
		return nil
	},
}

func init() {
	historyDigestCmd.Flags().Int("records", memory.DefaultDigestRecords, "number of past meetings to include")
	historyResetCmd.Flags().Bool("confirm", false, "confirm the reset")
	historyExportCmd.Flags().String("format", "json", "output format (json, yaml)")
	historyExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	historyMeetingsCmd.Flags().Int("limit", 20, "maximum number of meetings")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDigestCmd)
	historyCmd.AddCommand(historyResetCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyMeetingsCmd)
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage API sessions",
}

var sessionsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a session, optionally bound to a thread",
	RunE: func(cmd *cobra.Command, args []string) error {
		thread, _ := cmd.Flags().GetString("thread")
		meta, _ := cmd.Flags().GetStringToString("meta")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var created struct {
			SessionID string `json:"session_id"`
		}
		body := api.CreateSessionRequest{ThreadID: thread, Metadata: meta}
		if err := client.call(cmd.Context(), http.MethodPost, "/api/session/create", body, &created); err != nil {
			return err
		}
		fmt.Println(created.SessionID)
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session and its request log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		id := url.PathEscape(args[0])
		var sess storage.Session
		if err := client.call(cmd.Context(), http.MethodGet, "/api/session/"+id, nil, &sess); err != nil {
			return err
		}
		var hist struct {
			Requests []storage.SessionRequest `json:"requests"`
		}
		if err := client.call(cmd.Context(), http.MethodGet, "/api/session/"+id+"/history", nil, &hist); err != nil {
			return err
		}

		printStatus("Session", "%s", sess.ID)
		printStatus("User", "%s", sess.UserID)
		if sess.ThreadID != "" {
			printStatus("Thread", "%s", sess.ThreadID)
		}
		printStatus("Created", "%s", sess.CreatedAt.Local().Format(time.DateTime))
		printStatus("Requests", "%d", sess.Requests)
		for _, r := range hist.Requests {
			mark := colorize(colorGreen, "ok")
			if !r.Success {
				mark = colorize(colorRed, "failed")
			}
			fmt.Printf("  %s  %-6s %6.0f ms\n", r.Timestamp.Local().Format(time.DateTime), mark, r.LatencyMs)
		}
		return nil
	},
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the server user's sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var list struct {
			Sessions []storage.Session `json:"sessions"`
		}
		if err := client.call(cmd.Context(), http.MethodGet, "/api/sessions", nil, &list); err != nil {
			return err
		}
		if len(list.Sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		for _, s := range list.Sessions {
			fmt.Printf("%s  %s  %-16s %d requests\n", s.ID, s.CreatedAt.Local().Format(time.DateTime), s.ThreadID, s.Requests)
		}
		return nil
	},
}

func init() {
	sessionsCreateCmd.Flags().String("thread", "", "thread id used by summaries in this session")
	sessionsCreateCmd.Flags().StringToString("meta", nil, "metadata key=value pairs")

	sessionsCmd.AddCommand(sessionsCreateCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
}

// --- metrics ---

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show summary counters of the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var snap metrics.Snapshot
		if err := client.call(cmd.Context(), http.MethodGet, "/api/metrics", nil, &snap); err != nil {
			return err
		}
		printStatus("Summaries", "%d", snap.TotalRequests)
		printStatus("Average latency", "%.1f ms", snap.AvgLatencyMs)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
