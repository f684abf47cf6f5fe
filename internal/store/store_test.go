package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nhle/campaignbot/internal/model"
	"github.com/nhle/campaignbot/internal/store"
	"github.com/nhle/campaignbot/tests/testutil"
)

func stores(t *testing.T) map[string]store.SessionStore {
	return map[string]store.SessionStore{
		"sqlite": testutil.NewTestStore(t),
		"memory": store.NewMemoryStore(),
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.LoadSession(ctx, "c1"); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			session := model.NewDraftSession("c1", now).
				WithState(model.StateColumnSelection).
				WithSheet("Prospects", []string{"Name", "Email"}).
				WithColumns(model.NewColumnSelection("Email"))
			if err := s.SaveSession(ctx, session); err != nil {
				t.Fatalf("SaveSession: %v", err)
			}

			got, err := s.LoadSession(ctx, "c1")
			if err != nil {
				t.Fatalf("LoadSession: %v", err)
			}
			if got.State != model.StateColumnSelection || !got.Columns.Contains("Email") {
				t.Errorf("loaded = %+v", got)
			}

			// Saving replaces the whole value.
			if err := s.SaveSession(ctx, got.WithState(model.StatePrompting).WithColumns(model.ColumnSelection{})); err != nil {
				t.Fatalf("SaveSession: %v", err)
			}
			got, _ = s.LoadSession(ctx, "c1")
			if got.State != model.StatePrompting || got.Columns.Len() != 0 {
				t.Errorf("after replace = %+v", got)
			}

			if n, _ := s.CountSessions(ctx); n != 1 {
				t.Errorf("count = %d", n)
			}

			if err := s.DeleteSession(ctx, "c1"); err != nil {
				t.Fatalf("DeleteSession: %v", err)
			}
			if err := s.DeleteSession(ctx, "c1"); err != nil {
				t.Fatalf("deleting twice: %v", err)
			}
			if _, err := s.LoadSession(ctx, "c1"); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestSessionsAreIsolatedByConversation(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			a := model.NewDraftSession("alice", now).WithPrompt("launch")
			b := model.NewDraftSession("bob", now).WithPrompt("newsletter")
			for _, sess := range []model.DraftSession{a, b} {
				if err := s.SaveSession(ctx, sess); err != nil {
					t.Fatal(err)
				}
			}

			gotA, _ := s.LoadSession(ctx, "alice")
			gotB, _ := s.LoadSession(ctx, "bob")
			if gotA.Prompt != "launch" || gotB.Prompt != "newsletter" {
				t.Errorf("sessions collided: %q %q", gotA.Prompt, gotB.Prompt)
			}
		})
	}
}

func TestPurgeSessions(t *testing.T) {
	ctx := context.Background()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := old.Add(48 * time.Hour)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.SaveSession(ctx, model.NewDraftSession("old", old))
			_ = s.SaveSession(ctx, model.NewDraftSession("fresh", fresh))

			n, err := s.PurgeSessions(ctx, old.Add(24*time.Hour))
			if err != nil {
				t.Fatalf("PurgeSessions: %v", err)
			}
			if n != 1 {
				t.Errorf("purged %d, want 1", n)
			}
			if _, err := s.LoadSession(ctx, "fresh"); err != nil {
				t.Errorf("fresh session purged: %v", err)
			}
		})
	}
}

func TestMigrationsApplied(t *testing.T) {
	s := testutil.NewTestStore(t)
	v, err := s.SchemaVersion()
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 {
		t.Errorf("schema version = %d, want 2", v)
	}
}
