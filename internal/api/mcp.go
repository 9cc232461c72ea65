package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/recap/internal/memory"
	"github.com/kalambet/recap/internal/pipeline"
	"github.com/kalambet/recap/internal/schedule"
)

// NewMCPServer creates an MCP server with all recap tools and resources
// registered. It shares its collaborators with the REST API.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"recap",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("recap extracts decisions, action items and risks from meeting transcripts and remembers earlier meetings of each thread."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("summarize_meeting",
			mcp.WithDescription("Extract a structured summary from a meeting transcript, using earlier meetings of the thread as context."),
			mcp.WithString("transcript", mcp.Description("Full meeting transcript"), mcp.Required()),
			mcp.WithString("thread_id", mcp.Description("Thread the meeting belongs to (default \"default\")")),
			mcp.WithString("title", mcp.Description("Meeting title for the meeting log")),
			mcp.WithBoolean("use_context", mcp.Description("Use earlier meetings of the thread (default true)")),
			mcp.WithBoolean("sync", mcp.Description("Create tasks for the action items in the scheduling backend")),
		),
		mcpSummarizeMeeting(deps),
	)

	s.AddTool(
		mcp.NewTool("get_context",
			mcp.WithDescription("Return the digest of earlier meetings that would be given to the model for a thread."),
			mcp.WithString("thread_id", mcp.Description("Thread id (default \"default\")")),
			mcp.WithNumber("records", mcp.Description("Number of recent meetings to include (default 5)")),
		),
		mcpGetContext(deps),
	)

	s.AddTool(
		mcp.NewTool("reset_thread",
			mcp.WithDescription("Forget every meeting remembered for a thread."),
			mcp.WithString("thread_id", mcp.Description("Thread id"), mcp.Required()),
		),
		mcpResetThread(deps),
	)

	s.AddTool(
		mcp.NewTool("create_task",
			mcp.WithDescription("Create a task in the scheduling backend."),
			mcp.WithString("title", mcp.Description("Task title"), mcp.Required()),
			mcp.WithString("owner", mcp.Description("Person responsible")),
			mcp.WithString("due_date", mcp.Description("Due date, e.g. 2025-03-14, tomorrow, next friday")),
			mcp.WithString("description", mcp.Description("Task notes")),
		),
		mcpCreateTask(deps),
	)

	s.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List tasks in the scheduling backend."),
			mcp.WithString("owner", mcp.Description("Only tasks of this owner")),
			mcp.WithString("status", mcp.Description("pending or completed")),
		),
		mcpListTasks(deps),
	)

	s.AddTool(
		mcp.NewTool("create_event",
			mcp.WithDescription("Create a calendar event in the scheduling backend."),
			mcp.WithString("title", mcp.Description("Event title"), mcp.Required()),
			mcp.WithString("date", mcp.Description("Date as YYYY-MM-DD"), mcp.Required()),
			mcp.WithString("time", mcp.Description("Start time, e.g. 14:00 or 2 PM (default 09:00)")),
			mcp.WithArray("attendees", mcp.Description("Attendee email addresses"), mcp.WithStringItems()),
			mcp.WithString("description", mcp.Description("Event description")),
		),
		mcpCreateEvent(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"recap://metrics",
			"Extraction Metrics",
			mcp.WithResourceDescription("Successful extraction count and average latency"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceMetrics(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"recap://threads",
			"Threads",
			mcp.WithResourceDescription("Known threads with meeting counts and key people"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceThreads(deps),
	)

	return s
}

func mcpSummarizeMeeting(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		transcript, err := req.RequireString("transcript")
		if err != nil {
			return mcpError("transcript is required"), nil
		}
		threadID := req.GetString("thread_id", "")
		if title := req.GetString("title", ""); title != "" {
			ctx = pipeline.WithMeetingTitle(ctx, title)
		}

		res := deps.Summarizer.Summarize(ctx, transcript, threadID, req.GetBool("use_context", true))
		if !res.Success {
			return mcpError(fmt.Sprintf("summarize failed: %s", res.Error)), nil
		}

		out := struct {
			pipeline.Result
			Sync *schedule.Report `json:"sync,omitempty"`
		}{Result: res}
		if req.GetBool("sync", false) {
			if deps.Syncer == nil {
				return mcpError("summary stored but sync is not available: no scheduling backend configured"), nil
			}
			rep := deps.Syncer.Materialize(ctx, *res.Record, deps.SyncOptions)
			out.Sync = &rep
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetContext(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		records := req.GetInt("records", memory.DefaultDigestRecords)
		if records <= 0 {
			records = memory.DefaultDigestRecords
		}
		if records > memory.MaxRecords {
			records = memory.MaxRecords
		}

		d, err := deps.Memory.Digest(ctx, req.GetString("thread_id", ""), records)
		if err != nil {
			return mcpError(fmt.Sprintf("loading context failed: %v", err)), nil
		}
		return mcpText(d), nil
	}
}

func mcpResetThread(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		threadID, err := req.RequireString("thread_id")
		if err != nil {
			return mcpError("thread_id is required"), nil
		}
		if err := deps.Memory.Reset(ctx, threadID); err != nil {
			return mcpError(fmt.Sprintf("reset failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Thread %s reset", threadID)), nil
	}
}

const noSchedule = "no scheduling backend configured"

func mcpCreateTask(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Schedule == nil {
			return mcpError(noSchedule), nil
		}
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}

		t, err := deps.Schedule.CreateTask(ctx, schedule.TaskInput{
			Title: title,
			Owner: req.GetString("owner", ""),
			Due:   req.GetString("due_date", ""),
			Notes: req.GetString("description", ""),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("creating task failed: %v", err)), nil
		}
		return mcpJSON(t)
	}
}

func mcpListTasks(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Schedule == nil {
			return mcpError(noSchedule), nil
		}
		f := schedule.TaskFilter{
			Owner:  req.GetString("owner", ""),
			Status: schedule.TaskStatus(req.GetString("status", "")),
		}
		if f.Status != "" && !f.Status.Valid() {
			return mcpError("status must be pending or completed"), nil
		}

		tasks, err := deps.Schedule.ListTasks(ctx, f)
		if err != nil {
			return mcpError(fmt.Sprintf("listing tasks failed: %v", err)), nil
		}
		if len(tasks) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(tasks)
	}
}

func mcpCreateEvent(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Schedule == nil {
			return mcpError(noSchedule), nil
		}
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}
		date, err := req.RequireString("date")
		if err != nil {
			return mcpError("date is required"), nil
		}

		start, err := schedule.EventStart(date, req.GetString("time", ""), deps.Location)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		ev, err := deps.Schedule.CreateEvent(ctx, schedule.EventInput{
			Title:       title,
			Description: req.GetString("description", ""),
			Start:       start,
			Attendees:   req.GetStringSlice("attendees", nil),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("creating event failed: %v", err)), nil
		}
		return mcpJSON(ev)
	}
}

func mcpResourceMetrics(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Metrics.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metrics: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceThreads(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ids, err := deps.Memory.Threads(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list threads: %w", err)
		}
		threads := make([]memory.Summary, 0, len(ids))
		for _, id := range ids {
			s, err := deps.Memory.Summary(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("failed to load thread %s: %w", id, err)
			}
			threads = append(threads, s)
		}

		b, err := json.Marshal(threads)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal threads: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
