package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// serveHTTP starts the HTTP server and blocks until ctx is cancelled, then
// gives in-flight requests a grace period to finish before returning.
func (app *Application) serveHTTP(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", app.Config.HttpPort),
		Handler:      app.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  time.Minute,
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		app.Logger.Info("shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		shutdownErr <- srv.Shutdown(shutdownCtx)
	}()

	app.Logger.Info("starting http server", "port", app.Config.HttpPort, "env", app.Config.Env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	if err := <-shutdownErr; err != nil {
		return err
	}

	app.WG.Wait()
	app.Logger.Info("http server stopped")
	return nil
}
