package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/customeros/mailtriage/api"
	"github.com/customeros/mailtriage/config"
	"github.com/customeros/mailtriage/internal/cron"
	"github.com/customeros/mailtriage/internal/database"
	"github.com/customeros/mailtriage/internal/logger"
	"github.com/customeros/mailtriage/internal/repository"
	"github.com/customeros/mailtriage/internal/tracing"
	"github.com/customeros/mailtriage/services"
)

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	repositories *repository.Repositories
	scheduler    *cron.CronManager
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config, replicaDB *gorm.DB) (*Server, error) {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		return nil, errors.Wrap(err, "could not initialize jaeger tracer")
	}
	opentracing.SetGlobalTracer(tracer)

	repos := repository.InitRepositories(replicaDB)

	svcs, err := services.InitServices(cfg, appLogger, repos)
	if err != nil {
		return nil, err
	}

	scheduler := cron.NewCronManager(cfg, appLogger.With("component", "scheduler"), kubernetesClient(appLogger),
		svcs.SyncService, svcs.ClassifierService, svcs.EventPublisher,
		func(ctx context.Context) error { return database.Ping(ctx, replicaDB) })

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	return &Server{
		config:       cfg,
		log:          appLogger,
		router:       router,
		services:     svcs,
		repositories: repos,
		scheduler:    scheduler,
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:              ":" + cfg.AppConfig.APIPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// kubernetesClient returns nil outside a cluster; the scheduler then runs without leader election
func kubernetesClient(log logger.Logger) kubernetes.Interface {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		log.Debugf("Not running in kubernetes: %v", err)
		return nil
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		log.Warnf("Could not create kubernetes client: %v", err)
		return nil
	}
	return client
}

func (s *Server) Services() *services.Services {
	return s.services
}

func (s *Server) Scheduler() *cron.CronManager {
	return s.scheduler
}

func (s *Server) Logger() logger.Logger {
	return s.log
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		ext.Error.Set(span, true)
		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		s.log.Errorf("Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

// Run serves the operator API and drives the scheduler until a signal arrives
// or the scheduler gives up on the replica store
func (s *Server) Run() error {
	api.RegisterRoutes(s.router, s.scheduler, s.services.ClassifierService, api.RouteConfig{
		APIKey: s.config.AppConfig.APIKey,
		Tenant: s.config.AppConfig.Tenant,
	})

	podName := os.Getenv("POD_NAME")
	if podName == "" {
		podName = "local"
	}
	if err := s.scheduler.Start(podName, os.Getenv("POD_NAMESPACE")); err != nil {
		return errors.Wrap(err, "could not start scheduler")
	}
	s.log.Info("Scheduler started")

	go s.wrapGoroutine("http_server", func() {
		s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("HTTP server error: %v", err)
		}
	})
	s.log.Info("Mailtriage is now running. Press Ctrl+C to exit.")

	return s.waitForShutdown()
}

func (s *Server) waitForShutdown() error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var fatal error
	select {
	case sig := <-stop:
		s.log.Infof("Received %s, shutting down", sig)
	case err := <-s.scheduler.Fatal():
		fatal = errors.Wrap(err, "scheduler stopped")
		s.log.Errorf("Scheduler gave up: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("HTTP server shutdown error: %v", err)
	}

	stopDone := make(chan struct{})
	go s.wrapGoroutine("scheduler_shutdown", func() {
		defer close(stopDone)
		s.scheduler.Stop()
	})
	select {
	case <-stopDone:
		s.log.Info("Scheduler stopped gracefully")
	case <-shutdownCtx.Done():
		s.log.Warn("Scheduler stop timed out, forcing exit")
	}

	s.Close()
	return fatal
}

// Close releases the event publisher and flushes traces
func (s *Server) Close() {
	if err := s.services.EventPublisher.Close(); err != nil {
		s.log.Warnf("Event publisher close error: %v", err)
	}
	if s.tracerCloser != nil {
		_ = s.tracerCloser.Close()
	}
	_ = s.log.Sync()
}
