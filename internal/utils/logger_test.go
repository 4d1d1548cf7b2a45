package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// resetLogger swaps in a fresh singleton writing to buf.
func resetLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	once = sync.Once{}
	loggerInstance = nil
	var buf bytes.Buffer
	GetLogger().SetOutput(&buf)
	t.Cleanup(func() {
		once = sync.Once{}
		loggerInstance = nil
	})
	return &buf
}

// TestGetLogger verifies singleton pattern - same instance returned
func TestGetLogger(t *testing.T) {
	logger1 := GetLogger()
	logger2 := GetLogger()

	if logger1 != logger2 {
		t.Error("GetLogger() should return same singleton instance")
	}
}

// TestLoggerDefaultVerboseMode verifies verbose is false by default
func TestLoggerDefaultVerboseMode(t *testing.T) {
	resetLogger(t)

	if GetLogger().IsVerbose() {
		t.Error("Logger should have verbose=false by default")
	}
}

// TestSetVerboseMode verifies SetVerboseMode changes verbose state
func TestSetVerboseMode(t *testing.T) {
	resetLogger(t)

	SetVerboseMode(true)
	if !GetLogger().IsVerbose() {
		t.Error("SetVerboseMode(true) should enable verbose mode")
	}
	SetVerboseMode(false)
	if GetLogger().IsVerbose() {
		t.Error("SetVerboseMode(false) should disable verbose mode")
	}
}

// TestDebugOnlyShownWhenVerbose verifies Debug output only when verbose=true
func TestDebugOnlyShownWhenVerbose(t *testing.T) {
	buf := resetLogger(t)

	Debugf("hidden %d", 1)
	if buf.Len() > 0 {
		t.Errorf("Debug should not output when verbose=false, got: %s", buf.String())
	}

	SetVerboseMode(true)
	Debugf("shown %d", 2)
	if !strings.Contains(buf.String(), "[DEBUG] shown 2") {
		t.Errorf("Debug should output [DEBUG] prefix when verbose=true, got: %s", buf.String())
	}
}

// TestLevelPrefixes verifies Info, Warn and Error are always shown with their prefix
func TestLevelPrefixes(t *testing.T) {
	buf := resetLogger(t)

	Infof("info %s", "a")
	Warnf("warn %s", "b")
	Errorf("error %s", "c")

	out := buf.String()
	for _, want := range []string{"[INFO] info a", "[WARN] warn b", "[ERROR] error c"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q, got: %s", want, out)
		}
	}
}

// TestEscapedPercent verifies an escaped percent sign is printed once
func TestEscapedPercent(t *testing.T) {
	buf := resetLogger(t)

	Infof("%d%% done", 100)
	if !strings.Contains(buf.String(), "[INFO] 100% done") {
		t.Errorf("expected formatted message, got: %s", buf.String())
	}
}

// TestOpenLogFile verifies log output is appended to the file and stderr restored on close
func TestOpenLogFile(t *testing.T) {
	resetLogger(t)
	path := filepath.Join(t.TempDir(), "serve.log")

	closeLog, err := OpenLogFile(path)
	if err != nil {
		t.Fatalf("OpenLogFile() error = %v", err)
	}
	Warnf("written to file")
	closeLog()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "[WARN] written to file") {
		t.Errorf("log file content = %q, want warn line", string(data))
	}
	if GetLogger().writer() != os.Stderr {
		t.Error("closing the log file should restore stderr output")
	}
}
