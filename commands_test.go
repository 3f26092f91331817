package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/anatolykoptev/go_ytledger/internal/pipeline"
)

func TestPromptMode(t *testing.T) {
	var out bytes.Buffer
	mode, err := promptMode(strings.NewReader("  generate_summary \n"), &out)
	if err != nil {
		t.Fatal(err)
	}
	if mode != "generate_summary" {
		t.Errorf("mode = %q", mode)
	}
	if out.String() != modePrompt {
		t.Errorf("prompt = %q", out.String())
	}
}

func setMemoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LEDGER_BACKEND", "memory")
	t.Setenv("ARCHIVE_SINK", "dir")
	t.Setenv("ARCHIVE_DIR", t.TempDir())
}

func TestRootUnknownModeFromStdin(t *testing.T) {
	setMemoryEnv(t)
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader("delete_everything\n"))
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	err := cmd.ExecuteContext(context.Background())
	if !errors.Is(err, pipeline.ErrUnknownMode) {
		t.Fatalf("err = %v, want unknown mode", err)
	}
	if !strings.Contains(out.String(), modePrompt) {
		t.Errorf("prompt not printed: %q", out.String())
	}
}

func TestUploadSummaryOnEmptyLedger(t *testing.T) {
	setMemoryEnv(t)
	cmd := newRootCommand()
	cmd.SetArgs([]string{"upload_summary", "--transcripts-only"})

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("upload_summary: %v", err)
	}
}

func TestVersionSkipsConfig(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "cassandra")
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Errorf("output = %q", out.String())
	}
}
