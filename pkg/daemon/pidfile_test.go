package daemon

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestReadPIDFileMissing(t *testing.T) {
	_, err := readPIDFile(filepath.Join(t.TempDir(), "absent.pid"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("readPIDFile on missing file = %v, want os.ErrNotExist", err)
	}
}

func TestReadPIDFileGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pid")
	if err := os.WriteFile(path, []byte("not-a-pid\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := readPIDFile(path); err == nil {
		t.Error("readPIDFile accepted garbage content")
	}
}

func TestPIDFileRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ok.pid")
	if err := writePIDFile(path, 12345); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid != 12345 {
		t.Errorf("pid = %d, want 12345", pid)
	}
}

func TestStopByPIDFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.pid")
	if err := stopByPIDFile(path, "test"); err != nil {
		t.Errorf("stopByPIDFile on missing file = %v, want nil", err)
	}
}

func TestStopByPIDFileGoneProcess(t *testing.T) {
	// A reaped child's pid is guaranteed unused until the kernel wraps
	// around, so the SIGTERM lands on nothing.
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatalf("run true: %v", err)
	}

	path := filepath.Join(t.TempDir(), "gone.pid")
	if err := writePIDFile(path, cmd.ProcessState.Pid()); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	if err := stopByPIDFile(path, "test"); err != nil {
		t.Errorf("stopByPIDFile on gone process = %v, want nil", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("pidfile survived stopByPIDFile")
	}
}
