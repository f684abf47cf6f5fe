package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nhle/campaignbot/internal/model"
	"github.com/nhle/campaignbot/internal/source"
	"github.com/nhle/campaignbot/internal/store"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"chat", "status", "setup", "sessions"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
	if root.RunE == nil {
		t.Error("root should default to chat")
	}
	if f := root.PersistentFlags().Lookup("config"); f == nil || f.DefValue != model.DefaultConfigPath() {
		t.Error("--config flag missing or wrong default")
	}
}

func TestSessionsPurge(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sessions.db")
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("store:\n  path: "+dbPath+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	old := model.NewDraftSession("old", mustTime(t, "2020-01-01T00:00:00Z"))
	if err := s.SaveSession(context.Background(), old); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	_ = s.Close()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", configPath, "sessions", "purge", "--older-than", "24h"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "purged 1 sessions" {
		t.Errorf("output = %q", got)
	}
}

func TestSessionsPurgeRejectsNonPositive(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "c.yaml"), "sessions", "purge", "--older-than", "0s"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected an error")
	}
}

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bot.log")
	logger, f, err := newLogger(model.LogConfig{File: path, Level: "debug"})
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	defer f.Close()

	logger.Debug("hello", "k", "v")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "msg=hello") || !strings.Contains(string(data), "k=v") {
		t.Errorf("log = %q", data)
	}

	discard, nf, err := newLogger(model.LogConfig{Level: "bogus"})
	if err != nil || nf != nil || discard == nil {
		t.Errorf("empty file should discard: logger=%v file=%v err=%v", discard, nf, err)
	}
}

func TestOpenStore(t *testing.T) {
	s, err := openStore(model.StoreConfig{})
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	if _, ok := s.(*store.MemoryStore); !ok {
		t.Errorf("empty path should use memory, got %T", s)
	}

	path := filepath.Join(t.TempDir(), "nested", "sessions.db")
	s, err = openStore(model.StoreConfig{Path: path})
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*store.SQLiteStore); !ok {
		t.Errorf("path should use sqlite, got %T", s)
	}
}

func TestUnavailableReportsCause(t *testing.T) {
	cause := &source.ConfigurationError{Setting: "OpenAI API key"}
	u := unavailable{err: cause}
	ctx := context.Background()

	if _, err := u.Generate(ctx, source.DraftRequest{}); !source.IsConfigurationError(err) {
		t.Errorf("Generate err = %v", err)
	}
	if _, err := u.ListSheets(ctx, "id"); err != cause {
		t.Errorf("ListSheets err = %v", err)
	}
	if err := u.Send(ctx, "a@b.c", "s", "h"); err != cause {
		t.Errorf("Send err = %v", err)
	}
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}
