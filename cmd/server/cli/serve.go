package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gadgets/internal/db"
	"gadgets/internal/gadget"
	"gadgets/internal/storage"
	"gadgets/internal/web"
)

func NewServeCommand() *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg

			log, gdb, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close(gdb)
				_ = log.Sync()
			}()

			if autoMigrate {
				if err := db.AutoMigrate(gdb); err != nil {
					return fmt.Errorf("failed to migrate: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := storage.New(ctx, cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to init storage: %w", err)
			}

			srv, err := web.New(cfg, gdb, gadget.NewService(gdb, store, log), log)
			if err != nil {
				return fmt.Errorf("failed to load views: %w", err)
			}

			httpServer := &http.Server{
				Addr:         net.JoinHostPort("", cfg.App.Port),
				Handler:      srv.Handler(),
				ReadTimeout:  cfg.HTTP.ReadTimeout,
				WriteTimeout: cfg.HTTP.WriteTimeout,
				IdleTimeout:  cfg.HTTP.IdleTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("Listening", zap.String("addr", httpServer.Addr), zap.String("env", cfg.App.Env), zap.String("storage", cfg.Storage.Driver))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "create missing tables from the models before serving")

	return cmd
}
