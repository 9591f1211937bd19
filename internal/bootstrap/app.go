package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/yanqian/xray-diagnosis/internal/infra/config"
)

const shutdownTimeout = 10 * time.Second

// Closer releases a backing connection when the app stops.
type Closer func()

// App encapsulates the HTTP server lifecycle and the connections it owns.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	server  *http.Server
	closers []Closer
}

// NewApp is used by Wire to build the runnable app.
func NewApp(cfg *config.Config, logger *slog.Logger, server *http.Server, resources *Resources) *App {
	return &App{
		cfg:     cfg,
		logger:  logger.With("component", "bootstrap"),
		server:  server,
		closers: resources.closers,
	}
}

// Resources collects closers registered by providers that open pools or clients.
type Resources struct {
	closers []Closer
}

// NewResources returns an empty registry.
func NewResources() *Resources {
	return &Resources{}
}

// Add registers fn to run after the server has shut down.
func (r *Resources) Add(fn Closer) {
	if fn != nil {
		r.closers = append(r.closers, fn)
	}
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	defer a.close()
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("http server starting", "address", a.cfg.HTTP.Address)
		if err := a.server.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutdown signal received")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
