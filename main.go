package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/krau/emotagger/config"
	"github.com/krau/emotagger/hub"
	"github.com/krau/emotagger/onnx"
	"github.com/krau/emotagger/server"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "emotagger",
		Short:         "Serve a pretrained emotion classifier over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			config.SetPath(path)
			if err := config.Err(); err != nil {
				return err
			}
			setupLogging(config.C().LogLevel)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	root.PersistentFlags().String("config", "config.toml", "path to the TOML config file")
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}, &cobra.Command{
		Use:   "fetch",
		Short: "Download the configured hub repository's model artifacts and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetch(cmd.Context())
		},
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("Exiting", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cfg := config.C()
	slog.Info("Starting emotagger", slog.String("source", cfg.SourceName()), slog.String("repo", cfg.HFRepo))

	if err := onnx.Init(cfg.Libonnx); err != nil {
		return err
	}
	defer onnx.Destroy()

	resolver := server.NewResolver(cfg)
	defer resolver.Close()
	if cfg.Preload {
		go func() {
			if _, err := resolver.EnsureReady(ctx); err != nil {
				slog.Error("Preload failed, will retry on first request", slog.String("error", err.Error()))
			}
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	h := server.NewHandler(resolver, cfg.TopK, cfg.HFRepo, cfg.SourceName())
	addr := cfg.Host + ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: server.NewRouter(h)}

	slog.Info("Listening on", slog.String("address", addr))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	return srv.Shutdown(shutdownCtx)
}

func fetch(ctx context.Context) error {
	cfg := config.C()
	if cfg.ModelDir != "" {
		return fmt.Errorf("model_dir is set to %s; nothing to fetch", cfg.ModelDir)
	}
	art, err := hub.NewFetcher(cfg.HFRepo, cfg.CacheDir, cfg.HFToken, cfg.FetchRetries).Fetch(ctx)
	if err != nil {
		return err
	}
	fmt.Println(art.Dir)
	return nil
}
