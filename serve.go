package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lancaster971/pilotproOS-sub003/internal/broadcast"
	"github.com/lancaster971/pilotproOS-sub003/internal/docker"
	"github.com/lancaster971/pilotproOS-sub003/internal/history/sqlite"
	"github.com/lancaster971/pilotproOS-sub003/internal/inspector"
	"github.com/lancaster971/pilotproOS-sub003/internal/metrics"
	"github.com/lancaster971/pilotproOS-sub003/internal/middleware"
	"github.com/lancaster971/pilotproOS-sub003/internal/monitor"
	"github.com/lancaster971/pilotproOS-sub003/internal/registry"
	"github.com/lancaster971/pilotproOS-sub003/internal/web"
)

const shutdownTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor, the websocket broadcaster and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	f := cmd.Flags()
	f.String("host", "0.0.0.0", "listen host")
	f.Int("port", 14264, "listen port")
	f.String("password", "", "basic auth password for user admin; empty disables auth")
	f.Duration("poll-interval", monitor.DefaultPollInterval, "health poll interval")
	f.String("history-dsn", "", "sqlite event archive, e.g. sqlite://events.db")
	_ = v.BindPFlag("server.host", f.Lookup("host"))
	_ = v.BindPFlag("server.port", f.Lookup("port"))
	_ = v.BindPFlag("server.password", f.Lookup("password"))
	_ = v.BindPFlag("monitor.poll_interval", f.Lookup("poll-interval"))
	_ = v.BindPFlag("history.dsn", f.Lookup("history-dsn"))
	return cmd
}

func serve() error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		logger.Error("Failed to load service registry", zap.String("path", cfg.Registry.Path), zap.Error(err))
		return err
	}
	logger.Info("Service registry loaded",
		zap.Int("services", reg.Len()),
		zap.Strings("start_order", reg.StartOrder()))

	// 创建 Docker client
	runtime, err := docker.NewRuntimeFromEnv(logger)
	if err != nil {
		logger.Error("Failed to create docker client", zap.Error(err))
		return err
	}
	defer runtime.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := runtime.Ping(pingCtx); err != nil {
		// 守护进程稍后可能恢复, 轮询会把服务标记为 error
		logger.Warn("Docker daemon not reachable at startup", zap.Error(err))
	}
	cancelPing()

	insp := inspector.New(reg, runtime, logger.Named("inspector"), inspector.Options{
		HealthCheckAttempts: cfg.Monitor.HealthCheckAttempts,
		HealthCheckInterval: cfg.Monitor.HealthCheckInterval,
	})
	mon := monitor.New(reg, insp, logger.Named("monitor"), monitor.Options{
		PollInterval:  cfg.Monitor.PollInterval,
		EventCapacity: cfg.Monitor.EventCapacity,
	})
	insp.SetRestartRecorder(mon)

	api := web.NewHandler(mon, insp, logger.Named("web"))

	if cfg.History.DSN != "" {
		sink, err := sqlite.New(cfg.History.DSN)
		if err != nil {
			logger.Error("Failed to open event archive", zap.Error(err))
			return err
		}
		defer sink.Close()
		mon.Archive(sink)
		api.SetArchive(sink)
	}

	hub := broadcast.NewHub(mon, logger.Named("broadcast"), cfg.Monitor.BroadcastInterval)
	mon.OnEvent(hub.PublishEvent)
	insp.OnProgress(hub.PublishProgress)

	router := mux.NewRouter()

	// 健康检查路由（不需要认证）
	router.HandleFunc("/health", api.HealthCheckHandler).Methods(http.MethodGet)

	// 其他需要认证的路由
	if cfg.Server.Password != "" {
		router.Use(middleware.AuthMiddleware(cfg.Server.Password))
	}

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			logger.Error("Failed to register metrics", zap.Error(err))
			return err
		}
		router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}
	router.Handle("/ws", hub)
	api.Register(router)

	server := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: router,
	}

	// 优雅关闭
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mon.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("Server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to start", zap.Error(err))
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Server forced to shutdown", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	logger.Info("Server exited")
	return err
}
