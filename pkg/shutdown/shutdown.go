package shutdown

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// CreateGracefulShutdownChannel returns a channel that receives SIGINT and
// SIGTERM.
func CreateGracefulShutdownChannel() chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sigChan
}

// ListenForShutdown blocks until a signal arrives, runs the shutdown
// callback, then waits at most gracePeriod before signaling done.
func ListenForShutdown(
	notifier chan os.Signal,
	done chan bool,
	onShutdown func(),
	gracePeriod time.Duration,
	l *zap.Logger,
) {
	sig := <-notifier
	l.Sugar().Infow("Received shutdown signal", "signal", sig.String())

	onShutdown()

	select {
	case <-done:
	case <-time.After(gracePeriod):
		l.Sugar().Warnw("Grace period elapsed before shutdown completed", "gracePeriod", gracePeriod)
	}
}
