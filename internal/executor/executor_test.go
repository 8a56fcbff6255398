package executor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestExecRunner_Success(t *testing.T) {
	res := ExecRunner{}.Run(context.Background(), Cmd("sh", "-c", "echo hello"))
	if res.Failed() {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("expected hello, got %q", res.Stdout)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit 0, got %d", res.ExitCode)
	}
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	res := ExecRunner{}.Run(context.Background(), Cmd("sh", "-c", "echo out; echo oops >&2; exit 3"))
	if !res.Failed() {
		t.Fatal("expected failure")
	}
	var exitErr *ExitError
	if !errors.As(res.Err, &exitErr) {
		t.Fatalf("expected *ExitError, got %T", res.Err)
	}
	if exitErr.Code != 3 || res.ExitCode != 3 {
		t.Errorf("expected code 3, got %d/%d", exitErr.Code, res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "out" {
		t.Errorf("stdout should be kept on failure, got %q", res.Stdout)
	}
	if !strings.Contains(exitErr.Error(), "oops") {
		t.Errorf("error should carry stderr, got %q", exitErr.Error())
	}
}

func TestExecRunner_SpawnFailure(t *testing.T) {
	res := ExecRunner{}.Run(context.Background(), Cmd("hubd-definitely-not-a-program"))
	if !errors.Is(res.Err, ErrSpawn) {
		t.Fatalf("expected ErrSpawn, got %v", res.Err)
	}
}

func TestExecRunner_DirAndEnv(t *testing.T) {
	dir := t.TempDir()
	res := ExecRunner{}.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "pwd; echo $HUBD_TEST"},
		Dir:  dir,
		Env:  []string{"HUBD_TEST=42"},
	})
	if res.Failed() {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	if len(lines) != 2 || !strings.HasSuffix(lines[0], filepath.Base(dir)) || lines[1] != "42" {
		t.Errorf("unexpected output %q", res.Stdout)
	}
}

func TestExecutor_Go(t *testing.T) {
	fake := NewFakeRunner().OnStdout("wmctrl -l -p -G", "line\n")
	e := New(fake)

	done := make(chan Result, 1)
	e.Go(context.Background(), Cmd("wmctrl", "-l", "-p", "-G"), func(r Result) { done <- r })

	select {
	case r := <-done:
		if r.Stdout != "line\n" {
			t.Errorf("unexpected stdout %q", r.Stdout)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("continuation not called")
	}
}

func TestResult_Contains(t *testing.T) {
	r := Result{Stdout: "Error: Connection activation FAILED"}
	if !r.Contains("failed") {
		t.Error("expected case-insensitive match")
	}
	if (Result{Stderr: "no"}).Contains("failed") {
		t.Error("unexpected match")
	}
}

func TestFakeRunner_Queue(t *testing.T) {
	fake := NewFakeRunner().
		OnStdout("nmcli dev wifi", "first").
		OnStdout("nmcli dev wifi", "second")

	ctx := context.Background()
	got := []string{
		fake.Run(ctx, Cmd("nmcli", "dev", "wifi")).Stdout,
		fake.Run(ctx, Cmd("nmcli", "dev", "wifi")).Stdout,
		fake.Run(ctx, Cmd("nmcli", "dev", "wifi")).Stdout,
	}
	want := []string{"first", "second", "second"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if fake.CallCount("nmcli dev wifi") != 3 {
		t.Errorf("expected 3 calls, got %d", fake.CallCount("nmcli dev wifi"))
	}
	if res := fake.Run(ctx, Cmd("xrandr")); !errors.Is(res.Err, ErrSpawn) {
		t.Errorf("unscripted command should fail with ErrSpawn, got %v", res.Err)
	}
}
