// Command localapi serves every Lambda handler over HTTP for local development.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mindmend/backend/internal/app"
	"github.com/mindmend/backend/internal/localapi"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "localapi: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, "localapi")
	if err != nil {
		return err
	}
	defer a.DB.Close()

	srv := &http.Server{
		Addr: a.Config.LocalAddr,
		Handler: localapi.NewRouter(a.Handler, localapi.Options{
			CORSOrigins: a.Config.CORSOrigins,
			RatePerSec:  a.Config.LocalRatePerSec,
			RateBurst:   a.Config.LocalRateBurst,
		}, a.Log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.Log.WithField("addr", srv.Addr).Info("local API listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
