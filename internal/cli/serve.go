package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/accented-ai/partitioncache/internal/errs"
	"github.com/accented-ai/partitioncache/internal/metrics"
	"github.com/accented-ai/partitioncache/internal/partitionlog"
)

// newServeCommand starts the Prometheus metrics endpoint, grounded on
// pgscv's internal/http.Server: a bare mux serving /metrics, shut down
// when the command's context is cancelled rather than on a signal of its
// own, since cmd/partitioncache/main.go already wires that up.
func newServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the /metrics endpoint until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())

			srv := &http.Server{
				Addr:         addr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  10 * time.Second,
			}

			log := partitionlog.With("cli.serve")

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Msg("serving metrics")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return errs.Wrap("serve metrics", err)
				}

				return nil
			case <-cmd.Context().Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				return errs.Wrap("shutdown metrics server", srv.Shutdown(shutdownCtx))
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":9090", "address to serve /metrics on")

	return cmd
}
