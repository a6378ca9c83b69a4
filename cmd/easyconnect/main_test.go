package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/easyconnect/internal/store"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `log_level: error
listen: "127.0.0.1:0"
store_path: "` + filepath.Join(dir, "store.json") + `"
events_db_path: ""
api:
  api_key: "test-key"
`
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"frobnicate"})
	})
	if code != 1 {
		t.Errorf("exit = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Unknown command") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRunCLINoArgs(t *testing.T) {
	code, _, _ := captureOutputWithExitCode(t, func() int {
		return runCLI(nil)
	})
	if code != 1 {
		t.Errorf("exit = %d, want 1", code)
	}
}

func TestRunVersionJSON(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runVersion([]string{"--json"})
	})
	if code != 0 {
		t.Fatalf("exit = %d", code)
	}
	var info versionInfo
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("parse version JSON: %v", err)
	}
	if info.Version == "" {
		t.Error("version is empty")
	}
}

func TestRunConfigCheckValid(t *testing.T) {
	configPath := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("exit = %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stdout, "Config OK") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRunConfigCheckMissingFile(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")})
	})
	if code != 1 {
		t.Errorf("exit = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Config invalid") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestConfigLockThenCheck(t *testing.T) {
	configPath := writeTestConfig(t)

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigLock([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("lock exit = %d, stderr %q", code, stderr)
	}

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("check exit = %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stdout, "Integrity OK") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestConfigCheckDetectsTamper(t *testing.T) {
	configPath := writeTestConfig(t)

	if code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigLock([]string{"--config", configPath})
	}); code != 0 {
		t.Fatalf("lock exit = %d, stderr %q", code, stderr)
	}

	f, err := os.OpenFile(configPath, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	if _, err := f.WriteString("\n# tampered\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", configPath})
	})
	if code != 1 {
		t.Errorf("exit = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Integrity error") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestWorkspaceListEmpty(t *testing.T) {
	configPath := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runWorkspaceList([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("exit = %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stdout, "No connected workspaces") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestWorkspaceListJSON(t *testing.T) {
	configPath := writeTestConfig(t)

	storePath := filepath.Join(filepath.Dir(configPath), "store.json")
	credStore, err := store.New(storePath)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	if err := credStore.UpsertWorkspace(store.UpsertRequest{
		WorkspaceID: "ws-1",
		AccessToken: "tok",
		BotID:       "bot-1",
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runWorkspaceList([]string{"--config", configPath, "--json"})
	})
	if code != 0 {
		t.Fatalf("exit = %d, stderr %q", code, stderr)
	}

	var rows []map[string]any
	if err := json.Unmarshal([]byte(stdout), &rows); err != nil {
		t.Fatalf("parse JSON: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0]["workspace_id"] != "ws-1" {
		t.Errorf("workspace_id = %v", rows[0]["workspace_id"])
	}
	if rows[0]["has_token"] != true {
		t.Errorf("has_token = %v", rows[0]["has_token"])
	}
}
