package nsenter

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/vishvananda/netns"
)

// requireRoot skips tests that create real namespaces when not running as
// root. The non-root subset still covers the error paths.
func requireRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("requires root")
	}
}

func TestEnterNonexistentNamespace(t *testing.T) {
	_, err := Enter("netlab-test-no-such-namespace")
	if err == nil {
		t.Fatal("Enter(nonexistent) = nil error, want error")
	}
	if errors.Is(err, ErrNested) {
		t.Fatalf("Enter(nonexistent) = ErrNested, want resolve error")
	}
	// A failed Enter must release the scope for later callers.
	if active.Load() {
		t.Error("scope still marked active after failed Enter")
	}
}

func TestDeleteNamedAbsent(t *testing.T) {
	if err := DeleteNamed("netlab-test-no-such-namespace"); err != nil {
		t.Errorf("DeleteNamed(absent) = %v, want nil", err)
	}
}

func TestOutputEmptyCommand(t *testing.T) {
	if _, err := Output("whatever"); err == nil {
		t.Error("Output with no argv should error")
	}
}

func TestEnterExitRestores(t *testing.T) {
	requireRoot(t)

	const name = "netlab-test-guard"
	if err := AddNamed(name); err != nil {
		t.Fatalf("AddNamed: %v", err)
	}
	defer DeleteNamed(name)

	before, err := netns.Get()
	if err != nil {
		t.Fatalf("netns.Get: %v", err)
	}
	defer before.Close()

	guard, err := Enter(name)
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}

	inside, err := netns.Get()
	if err != nil {
		guard.Exit()
		t.Fatalf("netns.Get inside scope: %v", err)
	}
	if inside.Equal(before) {
		guard.Exit()
		inside.Close()
		t.Fatal("namespace unchanged inside scope")
	}
	inside.Close()

	guard.Exit()

	after, err := netns.Get()
	if err != nil {
		t.Fatalf("netns.Get after exit: %v", err)
	}
	defer after.Close()
	if !after.Equal(before) {
		t.Error("original namespace not restored after Exit")
	}

	// Exit is idempotent.
	guard.Exit()
}

func TestEnterIsNonReentrant(t *testing.T) {
	requireRoot(t)

	const name = "netlab-test-nested"
	if err := AddNamed(name); err != nil {
		t.Fatalf("AddNamed: %v", err)
	}
	defer DeleteNamed(name)

	guard, err := Enter(name)
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	defer guard.Exit()

	if _, err := Enter(name); !errors.Is(err, ErrNested) {
		t.Errorf("nested Enter = %v, want ErrNested", err)
	}
}

func TestOutputFailureCarriesOutput(t *testing.T) {
	requireRoot(t)

	const name = "netlab-test-output"
	if err := AddNamed(name); err != nil {
		t.Fatalf("AddNamed: %v", err)
	}
	defer DeleteNamed(name)

	_, err := Output(name, "sh", "-c", "echo boom >&2; exit 3")
	if err == nil {
		t.Fatal("Output of failing command = nil error, want error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error %q does not carry command output", err)
	}
}

func TestAddNamedDeleteNamedRoundtrip(t *testing.T) {
	requireRoot(t)

	const name = "netlab-test-roundtrip"
	if err := AddNamed(name); err != nil {
		t.Fatalf("AddNamed: %v", err)
	}

	handle, err := netns.GetFromName(name)
	if err != nil {
		t.Fatalf("namespace %q not resolvable after AddNamed: %v", name, err)
	}
	handle.Close()

	if err := DeleteNamed(name); err != nil {
		t.Fatalf("DeleteNamed: %v", err)
	}
	if _, err := netns.GetFromName(name); err == nil {
		t.Error("namespace still resolvable after DeleteNamed")
	}

	// Second delete is a no-op.
	if err := DeleteNamed(name); err != nil {
		t.Errorf("second DeleteNamed = %v, want nil", err)
	}
}
