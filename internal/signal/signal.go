// Package signal provides a SIGINT/SIGTERM-cancellable root context whose
// cancellation can be deferred while a critical section (a ledger migration
// or write) is in progress.
package signal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var (
	mu            sync.Mutex
	blockDepth    int
	pendingCancel context.CancelFunc
)

// WithSignalCancel returns a context that is cancelled when SIGINT or SIGTERM is received.
func WithSignalCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			deliver(cancel)
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

func deliver(cancel context.CancelFunc) {
	mu.Lock()
	defer mu.Unlock()
	if blockDepth > 0 {
		pendingCancel = cancel
		return
	}
	cancel()
}

// BlockSignals defers signal cancellation until the matching UnblockSignals.
// Calls may be nested.
func BlockSignals() {
	mu.Lock()
	defer mu.Unlock()
	blockDepth++
}

// UnblockSignals ends a critical section and delivers any cancellation
// received while it was open.
func UnblockSignals() {
	mu.Lock()
	defer mu.Unlock()
	if blockDepth > 0 {
		blockDepth--
	}
	if blockDepth == 0 && pendingCancel != nil {
		pendingCancel()
		pendingCancel = nil
	}
}
