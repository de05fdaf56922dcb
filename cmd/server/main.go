package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/agrivision-api/internal/catalog"
	"github.com/Brownie44l1/agrivision-api/internal/config"
	"github.com/Brownie44l1/agrivision-api/internal/logger"
	"github.com/Brownie44l1/agrivision-api/internal/model"
	"github.com/Brownie44l1/agrivision-api/internal/server"
	"github.com/Brownie44l1/agrivision-api/internal/verify"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "agrivision",
		Short:         "Plant leaf disease classification API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configFile)
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (yaml, json or env)")

	root.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Check that the model, catalog and web interface are in place",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVerify(cmd, configFile)
		},
	})

	return root
}

func serve(ctx context.Context, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer log.Sync()

	c, err := catalog.Load(cfg.Model.CatalogPath)
	if err != nil {
		log.Error("Failed to load disease catalog", zap.Error(err))
		return err
	}

	var engine model.Engine
	srv, err := model.NewServer(modelOptions(cfg), log)
	if err != nil {
		log.Error("Model unavailable: inference disabled until restart",
			zap.String("path", cfg.Model.Path), zap.Error(err))
		engine = model.Unavailable(err)
	} else {
		engine = srv
	}
	defer engine.Close()

	httpServer, err := server.New(cfg, engine, c, log)
	if err != nil {
		log.Error("Failed to create server", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("Server failed", zap.Error(err))
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	log.Info("Server exited")
	return nil
}

func runVerify(cmd *cobra.Command, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer log.Sync()

	report := verify.Run(verify.Options{
		Model:       modelOptions(cfg),
		StaticDir:   cfg.Server.StaticDir,
		CatalogPath: cfg.Model.CatalogPath,
		Load:        verify.ONNXLoader(log),
	})
	if err := verify.Render(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if !report.Passed() {
		return fmt.Errorf("setup verification failed")
	}
	return nil
}

func modelOptions(cfg *config.Config) model.Options {
	return model.Options{
		ModelPath:    cfg.Model.Path,
		MetadataPath: cfg.Model.MetadataPath,
		LibraryPath:  cfg.Model.LibraryPath,
		PoolSize:     cfg.Model.PoolSize,
		NumThreads:   cfg.Model.NumThreads,
	}
}
