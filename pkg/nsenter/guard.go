package nsenter

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/vishvananda/netns"
)

// ErrNested is returned by Enter when a scope is already active. The
// primitive is non-reentrant by construction; see the package comment.
var ErrNested = errors.New("nsenter: namespace scope already active")

// active guards against nested or concurrent scopes process-wide.
var active atomic.Bool

// Guard represents an entered namespace scope. The calling goroutine is
// locked to its OS thread until Exit is called.
type Guard struct {
	name   string
	orig   netns.NsHandle
	target netns.NsHandle
	done   bool
}

// Enter reassociates the calling thread with the named network namespace
// and returns a guard that restores the original association. The caller
// must call Exit exactly once, normally via defer. Entering while another
// scope is active returns ErrNested; resolving a nonexistent namespace or
// a failing setns is a fatal error and is never retried.
func Enter(name string) (*Guard, error) {
	if !active.CompareAndSwap(false, true) {
		return nil, ErrNested
	}
	runtime.LockOSThread()

	orig, err := netns.Get()
	if err != nil {
		runtime.UnlockOSThread()
		active.Store(false)
		return nil, fmt.Errorf("nsenter: get current namespace: %w", err)
	}
	target, err := netns.GetFromName(name)
	if err != nil {
		orig.Close()
		runtime.UnlockOSThread()
		active.Store(false)
		return nil, fmt.Errorf("nsenter: resolve namespace %q: %w", name, err)
	}
	if err := netns.Set(target); err != nil {
		orig.Close()
		target.Close()
		runtime.UnlockOSThread()
		active.Store(false)
		return nil, fmt.Errorf("nsenter: switch into namespace %q: %w", name, err)
	}

	return &Guard{name: name, orig: orig, target: target}, nil
}

// Exit restores the thread's original namespace association and releases
// both namespace handles. Calling Exit more than once is a no-op. A failed
// restore panics: the thread's namespace association is poisoned and every
// later operation scheduled onto it would run in the wrong namespace.
func (g *Guard) Exit() {
	if g.done {
		return
	}
	g.done = true

	if err := netns.Set(g.orig); err != nil {
		panic(fmt.Sprintf("nsenter: cannot restore original namespace when leaving %q: %v", g.name, err))
	}
	g.target.Close()
	g.orig.Close()
	runtime.UnlockOSThread()
	active.Store(false)
}

// Do runs fn with the calling thread attached to the named network
// namespace, restoring the original namespace afterwards even when fn
// fails.
func Do(name string, fn func() error) error {
	guard, err := Enter(name)
	if err != nil {
		return err
	}
	defer guard.Exit()
	return fn()
}
