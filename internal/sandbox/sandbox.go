// Package sandbox defines the remote code-execution collaborator and a
// scoped acquisition helper that guarantees release on every exit path.
package sandbox

import (
	"context"
	"fmt"
	"time"
)

// Sandbox is one time-boxed remote execution environment. It is
// exclusively owned by the delegate that created it for the lifetime of
// one run.
type Sandbox interface {
	// MkDir creates a directory inside the sandbox.
	MkDir(ctx context.Context, dir string) error
	// RunCommand executes a command and returns its combined output.
	RunCommand(ctx context.Context, cmd string, args ...string) (string, error)
	// Stop releases the sandbox. Idempotence is not required; callers
	// must stop exactly once.
	Stop(ctx context.Context) error
}

// Provider creates sandboxes. The provider enforces the timeout on its
// side, cancelling the session when exceeded.
type Provider interface {
	Create(ctx context.Context, runtime string, timeout time.Duration) (Sandbox, error)
}

// With acquires a sandbox, runs fn with it, and stops the sandbox on every
// exit path, including an error or panic inside fn. Exactly one Stop is
// issued per successful Create. The stop uses a detached context so the
// release still happens when the turn deadline has already expired.
func With(ctx context.Context, p Provider, runtime string, timeout time.Duration, fn func(Sandbox) error) (err error) {
	sb, err := p.Create(ctx, runtime, timeout)
	if err != nil {
		return fmt.Errorf("create sandbox: %w", err)
	}
	defer func() {
		stopErr := sb.Stop(context.WithoutCancel(ctx))
		if err == nil && stopErr != nil {
			err = fmt.Errorf("stop sandbox: %w", stopErr)
		}
	}()
	return fn(sb)
}
