//go:build integration

package redisstore

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
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping integration test")
	}

	s, err := New(context.Background(), Options{Addr: addr, Prefix: "recap-test:" + uuid.NewString()[:8] + ":"})
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIntegration_SaveLoadList(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	h, err := s.Load(ctx, "team")
	if err != nil {
		t.Fatalf("Load(new) failed: %v", err)
	}
	if h != nil {
		t.Fatalf("Load(new) = %+v, want nil", h)
	}

	ms := memory.NewStore(s)
	for _, thread := range []string{"team", "clients"} {
		rec := extract.Record{TLDR: "Sync for " + thread}
		rec.Normalize()
		if err := ms.Append(ctx, thread, rec, "transcript"); err != nil {
			t.Fatalf("Append(%s) failed: %v", thread, err)
		}
	}

	h, err = s.Load(ctx, "team")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if h == nil || len(h.Records) != 1 || h.Records[0].Record.TLDR != "Sync for team" {
		t.Fatalf("Load = %+v", h)
	}

	ids, err := s.ListThreads(ctx)
	if err != nil {
		t.Fatalf("ListThreads failed: %v", err)
	}
	if !slices.Equal(ids, []string{"clients", "team"}) {
		t.Errorf("ListThreads = %v, want [clients team]", ids)
	}
}
