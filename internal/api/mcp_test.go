package api

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/recap/internal/memory"
	"github.com/kalambet/recap/internal/schedule"
)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	result, err := h(context.Background(), makeCallToolRequest(name, args))
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", name, err)
	}
	return result
}

// --- tests ---

func TestMCPServer_Registers(t *testing.T) {
	env := setupHandler(t, true)
	if s := NewMCPServer(env.deps); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPTool_SummarizeMeeting(t *testing.T) {
	env := setupHandler(t, true)
	h := mcpSummarizeMeeting(env.deps)

	result := callTool(t, h, "summarize_meeting", map[string]interface{}{
		"transcript": "Ana: ship friday.",
		"thread_id":  "launch",
		"sync":       true,
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var out struct {
		Success  bool   `json:"success"`
		ThreadID string `json:"thread_id"`
		Summary  struct {
			TLDR string `json:"tldr"`
		} `json:"summary"`
		Sync *schedule.Report `json:"sync"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &out); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if !out.Success || out.ThreadID != "launch" || out.Summary.TLDR != "Launch moved to Friday." {
		t.Errorf("result = %+v", out)
	}
	if out.Sync == nil || out.Sync.TasksCreated != 1 {
		t.Errorf("sync = %+v, want one task", out.Sync)
	}

	s, err := env.mem.Summary(context.Background(), "launch")
	if err != nil {
		t.Fatal(err)
	}
	if s.TotalMeetings != 1 {
		t.Errorf("total_meetings = %d, want 1", s.TotalMeetings)
	}
}

func TestMCPTool_SummarizeMeeting_Errors(t *testing.T) {
	env := setupHandler(t, false)
	h := mcpSummarizeMeeting(env.deps)

	if r := callTool(t, h, "summarize_meeting", map[string]interface{}{}); !r.IsError {
		t.Error("missing transcript: IsError = false")
	}

	env.gen.response = "no json here"
	r := callTool(t, h, "summarize_meeting", map[string]interface{}{"transcript": "notes"})
	if !r.IsError || !strings.Contains(toolText(t, r), "summarize failed") {
		t.Errorf("parse failure result = %q", toolText(t, r))
	}
}

func TestMCPTool_GetContextAndReset(t *testing.T) {
	env := setupHandler(t, false)
	get := mcpGetContext(env.deps)

	if got := toolText(t, callTool(t, get, "get_context", map[string]interface{}{"thread_id": "team"})); got != memory.NoContext {
		t.Errorf("empty context = %q, want sentinel", got)
	}

	callTool(t, mcpSummarizeMeeting(env.deps), "summarize_meeting", map[string]interface{}{
		"transcript": "notes",
		"thread_id":  "team",
	})
	got := toolText(t, callTool(t, get, "get_context", map[string]interface{}{"thread_id": "team", "records": 1}))
	if !strings.HasPrefix(got, "PREVIOUS 1 MEETINGS CONTEXT:") {
		t.Errorf("context = %q", got)
	}

	reset := mcpResetThread(env.deps)
	if r := callTool(t, reset, "reset_thread", map[string]interface{}{}); !r.IsError {
		t.Error("reset without thread_id: IsError = false")
	}
	if r := callTool(t, reset, "reset_thread", map[string]interface{}{"thread_id": "team"}); r.IsError {
		t.Fatalf("reset failed: %s", toolText(t, r))
	}
	if got := toolText(t, callTool(t, get, "get_context", map[string]interface{}{"thread_id": "team"})); got != memory.NoContext {
		t.Errorf("context after reset = %q", got)
	}
}

func TestMCPTool_Tasks(t *testing.T) {
	env := setupHandler(t, true)

	r := callTool(t, mcpCreateTask(env.deps), "create_task", map[string]interface{}{
		"title":    "Book venue",
		"owner":    "Ana",
		"due_date": "2025-04-01",
	})
	if r.IsError {
		t.Fatalf("create_task: %s", toolText(t, r))
	}
	var task schedule.Task
	if err := json.Unmarshal([]byte(toolText(t, r)), &task); err != nil {
		t.Fatal(err)
	}
	if task.Title != "Book venue" || task.Due != "2025-04-01" {
		t.Errorf("task = %+v", task)
	}

	list := mcpListTasks(env.deps)
	var tasks []schedule.Task
	if err := json.Unmarshal([]byte(toolText(t, callTool(t, list, "list_tasks", map[string]interface{}{"owner": "ana"}))), &tasks); err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 {
		t.Errorf("tasks = %d, want 1", len(tasks))
	}
	if got := toolText(t, callTool(t, list, "list_tasks", map[string]interface{}{"owner": "nobody"})); got != "[]" {
		t.Errorf("empty list = %q, want []", got)
	}
	if r := callTool(t, list, "list_tasks", map[string]interface{}{"status": "done"}); !r.IsError {
		t.Error("invalid status: IsError = false")
	}
}

func TestMCPTool_CreateEvent(t *testing.T) {
	env := setupHandler(t, true)
	h := mcpCreateEvent(env.deps)

	r := callTool(t, h, "create_event", map[string]interface{}{
		"title":     "Retro",
		"date":      "2025-03-21",
		"time":      "16:00",
		"attendees": []interface{}{"ana@example.com"},
	})
	if r.IsError {
		t.Fatalf("create_event: %s", toolText(t, r))
	}
	var ev schedule.Event
	if err := json.Unmarshal([]byte(toolText(t, r)), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Start.Hour() != 16 || len(ev.Attendees) != 1 {
		t.Errorf("event = %+v", ev)
	}

	if r := callTool(t, h, "create_event", map[string]interface{}{"title": "Retro", "date": "soon"}); !r.IsError {
		t.Error("invalid date: IsError = false")
	}
}

func TestMCPTool_NoScheduleBackend(t *testing.T) {
	env := setupHandler(t, false)
	for name, h := range map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"create_task":  mcpCreateTask(env.deps),
		"list_tasks":   mcpListTasks(env.deps),
		"create_event": mcpCreateEvent(env.deps),
	} {
		r := callTool(t, h, name, map[string]interface{}{"title": "x", "date": "2025-03-21"})
		if !r.IsError || toolText(t, r) != noSchedule {
			t.Errorf("%s without backend = %q", name, toolText(t, r))
		}
	}
}

func TestMCPResource_MetricsAndThreads(t *testing.T) {
	env := setupHandler(t, false)
	callTool(t, mcpSummarizeMeeting(env.deps), "summarize_meeting", map[string]interface{}{
		"transcript": "notes",
		"thread_id":  "ops",
	})

	contents, err := mcpResourceMetrics(env.deps)(context.Background(), makeReadResourceRequest("recap://metrics"))
	if err != nil {
		t.Fatalf("metrics resource: %v", err)
	}
	tc := contents[0].(mcp.TextResourceContents)
	if !strings.Contains(tc.Text, `"total_requests":1`) {
		t.Errorf("metrics = %s", tc.Text)
	}

	contents, err = mcpResourceThreads(env.deps)(context.Background(), makeReadResourceRequest("recap://threads"))
	if err != nil {
		t.Fatalf("threads resource: %v", err)
	}
	var threads []memory.Summary
	if err := json.Unmarshal([]byte(contents[0].(mcp.TextResourceContents).Text), &threads); err != nil {
		t.Fatal(err)
	}
	if len(threads) != 1 || threads[0].ThreadID != "ops" {
		t.Errorf("threads = %+v", threads)
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	env := setupHandler(t, false)
	h := mcpSummarizeMeeting(env.deps)

	var wg sync.WaitGroup
	errs := make(chan string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			thread := "a"
			if i%2 == 1 {
				thread = "b"
			}
			r, err := h(context.Background(), makeCallToolRequest("summarize_meeting", map[string]interface{}{
				"transcript": "concurrent notes",
				"thread_id":  thread,
			}))
			if err != nil {
				errs <- err.Error()
				return
			}
			if r.IsError {
				errs <- r.Content[0].(mcp.TextContent).Text
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Fatalf("concurrent call failed: %s", msg)
	}

	for _, thread := range []string{"a", "b"} {
		s, err := env.mem.Summary(context.Background(), thread)
		if err != nil {
			t.Fatal(err)
		}
		if s.TotalMeetings != 5 {
			t.Errorf("thread %s total_meetings = %d, want 5", thread, s.TotalMeetings)
		}
	}
}
