// Package httpserver runs the admin HTTP server with graceful shutdown.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ServeAndWait runs srv until ctx is canceled or the listener fails, then
// drains in-flight requests within shutdownTimeout. In-flight sync work is
// stopped by the caller; this only owns the HTTP side.
func ServeAndWait(ctx context.Context, logger *zap.Logger, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Admin server listening", zap.String("address", srv.Addr))
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping admin server")
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("Admin server failed", zap.Error(runErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown admin server: %w", err)
	}
	if runErr != nil {
		return fmt.Errorf("admin server: %w", runErr)
	}

	logger.Info("Admin server stopped")
	return nil
}
