package nsenter

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

// AddNamed creates a named network namespace, bind-mounted under
// /run/netns so that it survives until explicitly deleted. The calling
// thread is left attached to its original namespace.
func AddNamed(name string) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	orig, err := netns.Get()
	if err != nil {
		return fmt.Errorf("nsenter: get current namespace: %w", err)
	}
	defer orig.Close()

	// NewNamed switches the calling thread into the new namespace as a
	// side effect of creating it, so we must switch back ourselves.
	handle, err := netns.NewNamed(name)
	if err != nil {
		return fmt.Errorf("nsenter: create namespace %q: %w", name, err)
	}
	handle.Close()

	if err := netns.Set(orig); err != nil {
		// The thread is stuck in the new namespace; it must not be
		// returned to the scheduler pool.
		panic(fmt.Sprintf("nsenter: cannot restore original namespace after creating %q: %v", name, err))
	}
	return nil
}

// DeleteNamed removes a named network namespace. A namespace that no
// longer exists is not an error.
func DeleteNamed(name string) error {
	err := netns.DeleteNamed(name)
	if err == nil || errors.Is(err, os.ErrNotExist) || errors.Is(err, unix.ENOENT) {
		return nil
	}
	return fmt.Errorf("nsenter: delete namespace %q: %w", name, err)
}
