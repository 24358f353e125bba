package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/crop-disease-api/internal/handlers"
)

const shutdownTimeout = 10 * time.Second

func (a *app) serveCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve predictions over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Port = port
			}
			return a.runServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (default $PORT or 8080)")
	return cmd
}

func (a *app) runServe(ctx context.Context) error {
	p, release := a.openPipeline()
	defer release()

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           handlers.NewHandler(p, a.log).Routes(a.cfg.RateLimit),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.log.Infof("Server starting on port %s", a.cfg.Port)
	a.log.Infof("Classes: %v", p.Labels())
	a.log.Infof("Endpoints:")
	a.log.Infof("  GET  /health        - Health check")
	a.log.Infof("  GET  /labels        - Label table")
	a.log.Infof("  POST /predict       - Raw RGB array prediction")
	a.log.Infof("  POST /predict/image - Predict from image upload")
	a.log.Infof("Upload test: curl -X POST -F \"image=@leaf.jpg\" http://localhost:%s/predict/image", a.cfg.Port)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Infof("Shutting down")
	// The command context is already cancelled here.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
