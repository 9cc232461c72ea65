package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/recap/internal/batch"
	"github.com/kalambet/recap/internal/ingest"
)

// These commands run the pipeline in-process and do not need a server.

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Summarize every transcript under the transcript directory",
	Long: `Summarize every transcript under the transcript directory.

Each subfolder is a user and a thread: users are processed in parallel, the
meetings of one user in file order so each sees the ones before it.

Examples:
  recap extract
  recap extract --dir ./transcripts --user ana --sync`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		user, _ := cmd.Flags().GetString("user")
		doSync, _ := cmd.Flags().GetBool("sync")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, runner, err := newBatchRunner(ctx, concurrency)
		if err != nil {
			return err
		}
		defer a.Close()

		if dir == "" {
			dir = a.cfg.Batch.TranscriptDir
		}
		printStep("Extracting transcripts from %s", dir)
		rep, err := runner.Extract(ctx, batch.ExtractOptions{Dir: dir, User: user, Sync: doSync})
		if err != nil {
			return err
		}

		printStatus("Users", "%s", strings.Join(rep.Users, ", "))
		printStatus("Meetings", "%d", rep.Meetings)
		if doSync {
			printStatus("Tasks created", "%d", rep.TasksCreated)
		}
		for _, f := range rep.Failures {
			printError("%s: %s", f.Key, f.Error)
		}
		if len(rep.Failures) > 0 {
			return fmt.Errorf("%d of %d transcripts failed", len(rep.Failures), rep.Meetings+len(rep.Failures))
		}
		printSuccess("Extraction complete")
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replace previously synced tasks with tasks from the stored extractions",
	RunE: func(cmd *cobra.Command, args []string) error {
		noFollowUp, _ := cmd.Flags().GetBool("no-follow-up")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, runner, err := newBatchRunner(ctx, 0)
		if err != nil {
			return err
		}
		defer a.Close()

		opts := a.syncOpts
		opts.FollowUp = !noFollowUp
		rep, err := runner.Sync(ctx, opts)
		if err != nil {
			return err
		}

		printStatus("Meetings", "%d", rep.Meetings)
		printStatus("Removed", "%d tasks, %d events", rep.DeletedTasks, rep.DeletedEvents)
		printStatus("Created", "%d tasks, %d events", rep.TasksCreated, rep.EventsCreated)
		for _, e := range rep.Errors {
			printWarning("%s", e)
		}
		printSuccess("Sync complete")
		return nil
	},
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Print the stored batch extractions",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		a, runner, err := newBatchRunner(cmd.Context(), 0)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := runner.Records(cmd.Context())
		if err != nil {
			return err
		}
		switch strings.ToLower(format) {
		case "yaml", "yml":
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			if err := enc.Encode(records); err != nil {
				return err
			}
			return enc.Close()
		case "json":
			return printJSON(records)
		case "text":
			keys := make([]string, 0, len(records))
			for k := range records {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for i, k := range keys {
				if i > 0 {
					fmt.Println()
				}
				fmt.Println(colorize(colorCyan, k))
				renderSummary(os.Stdout, records[k])
			}
			return nil
		default:
			return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
		}
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Summarize transcripts as they appear in the transcript directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		doSync, _ := cmd.Flags().GetBool("sync")
		quiet, _ := cmd.Flags().GetDuration("quiet")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if doSync && a.syncer == nil {
			return errors.New("--sync requires a schedule backend (schedule.backend)")
		}
		if dir == "" {
			dir = cfg.Batch.TranscriptDir
		}

		w, err := ingest.NewWatcher(dir, a.store, doSync, quiet)
		if err != nil {
			return err
		}
		worker := ingest.NewWorker(a.store, a.orch, a.syncer, a.syncOpts, 500*time.Millisecond)

		printStep("Watching %s (Ctrl-C to stop)", dir)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return w.Run(gctx) })
		g.Go(func() error {
			worker.Run(gctx)
			return nil
		})
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		printSuccess("Stopped watching")
		return nil
	},
}

func newBatchRunner(ctx context.Context, concurrency int) (*app, *batch.Runner, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if concurrency <= 0 {
		concurrency = cfg.Batch.Concurrency
	}
	return a, batch.New(a.orch, a.store, a.syncer, concurrency, nil), nil
}

func init() {
	extractCmd.Flags().String("dir", "", "transcript directory (default: batch.transcript_dir)")
	extractCmd.Flags().String("user", "", "only process this user folder")
	extractCmd.Flags().Bool("sync", false, "create tasks for every extraction")
	extractCmd.Flags().Int("concurrency", 0, "users processed in parallel (default: batch.concurrency)")

	syncCmd.Flags().Bool("no-follow-up", false, "do not schedule follow-up events")

	recordsCmd.Flags().String("format", "text", "output format (text, json, yaml)")

	watchCmd.Flags().String("dir", "", "transcript directory (default: batch.transcript_dir)")
	watchCmd.Flags().Bool("sync", false, "create tasks for every summarized transcript")
	watchCmd.Flags().Duration("quiet", ingest.DefaultQuietPeriod, "wait this long after the last write before queueing a file")
}
