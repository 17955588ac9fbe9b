package main

import (
	"context"
	"crypto/tls"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-classifier/internal/api"
	"github.com/Veraticus/spice-classifier/internal/certs"
	"github.com/Veraticus/spice-classifier/internal/feedback"
	"github.com/Veraticus/spice-classifier/internal/ofx"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the classification HTTP API",
		Long: `Serve the HTTP API and run the suggested-rule promotion sweep on its
configured schedule. An empty promotion.schedule disables the sweep.

With --tls the API is served over HTTPS using a self-signed localhost
certificate kept in a certs directory next to the database.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (default from config)")
	cmd.Flags().Bool("tls", false, "Serve HTTPS with a self-signed localhost certificate")
	cmd.Flags().Duration("sweep-timeout", feedback.DefaultSweepTimeout, "Maximum duration of one promotion sweep")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	addr, _ := cmd.Flags().GetString("addr")
	sweepTimeout, _ := cmd.Flags().GetDuration("sweep-timeout")
	useTLS, _ := cmd.Flags().GetBool("tls")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	if spec := a.cfg.Promotion.Schedule; spec != "" {
		scheduler, err := feedback.NewScheduler(a.feedback, spec, sweepTimeout)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			scheduler.Stop(stopCtx)
		}()
	}

	var tlsConfig *tls.Config
	if useTLS {
		store := certs.NewStore(filepath.Join(filepath.Dir(a.cfg.Database.Path), "certs"))
		if tlsConfig, err = store.TLSConfig(); err != nil {
			return err
		}
	}

	router := api.NewRouter(api.Dependencies{
		Classifier: a.engine,
		Learner:    a.feedback,
		Miner:      a.miner,
		Rules:      a.manager,
		Importer:   ofx.NewImporter(a.store),
		Statements: a.store,
	})
	return api.Serve(ctx, addr, router, tlsConfig)
}
