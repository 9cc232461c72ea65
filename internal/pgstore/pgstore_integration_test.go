//go:build integration

package pgstore

import (
	"context"
	"os"
	"slices"
	"testing"

	"github.com/google/uuid"

	"github.com/kalambet/recap/internal/extract"
	"github.com/kalambet/recap/internal/memory"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	s, err := New(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestIntegration_SaveLoad(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	thread := "it-" + uuid.NewString()[:8]

	h, err := s.Load(ctx, thread)
	if err != nil {
		t.Fatalf("Load(new) failed: %v", err)
	}
	if h != nil {
		t.Fatalf("Load(new) = %+v, want nil", h)
	}

	ms := memory.NewStore(s)
	rec := extract.Record{TLDR: "Kickoff", ActionItems: []extract.ActionItem{{Task: "Book room", Owner: "Ana"}}}
	rec.Normalize()
	if err := ms.Append(ctx, thread, rec, "Ana: let's start"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	h, err = s.Load(ctx, thread)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if h == nil || len(h.Records) != 1 || h.Records[0].Record.TLDR != "Kickoff" {
		t.Fatalf("Load = %+v", h)
	}

	ids, err := s.ListThreads(ctx)
	if err != nil {
		t.Fatalf("ListThreads failed: %v", err)
	}
	if !slices.Contains(ids, thread) {
		t.Errorf("ListThreads = %v, missing %q", ids, thread)
	}
}
