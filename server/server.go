package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/customeros/mailsync/api"
	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/internal/cron"
	"github.com/customeros/mailsync/internal/database"
	"github.com/customeros/mailsync/internal/leader"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/services"
)

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	cronManager  *cron.CronManager
	elector      *leader.Elector
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config) (*Server, error) {
	// Initialize logger
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	// Initialize tracing
	_, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		log.Fatalf("Could not initialize jaeger tracer: %s", err.Error())
	}

	svcs, err := services.InitServices(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		config:       cfg,
		log:          appLogger,
		router:       router,
		services:     svcs,
		cronManager:  cron.NewCronManager(cfg.Cron, appLogger, svcs.SearchIndex, svcs.Manager),
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:    ":" + cfg.AppConfig.APIPort,
			Handler: router,
		},
	}
	s.elector = leader.NewElector(kubernetesClient(appLogger), cfg.AppConfig.LeaderLock, leader.Callbacks{
		OnStartedLeading: s.startSync,
		OnStoppedLeading: s.stopSync,
	}, appLogger)

	return s, nil
}

// kubernetesClient returns nil outside a cluster, which puts leader
// election in local mode.
func kubernetesClient(log logger.Logger) kubernetes.Interface {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		log.Infof("Not running in a cluster: %v", err)
		return nil
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		log.Warnf("Could not create kubernetes client: %v", err)
		return nil
	}
	return client
}

// Initialize attaches storage, which lets the manager build its registry
// through the session lifecycle event, and registers the API routes.
func (s *Server) Initialize(ctx context.Context) error {
	db, err := database.NewConnection(DatabaseConfig(s.config.MailsyncDatabaseConfig))
	if err != nil {
		return err
	}
	s.services.Session.Attach(ctx, db)

	api.RegisterRoutes(s.router, s.services, s.services.Repositories, s.config.AppConfig.APIKey)
	return nil
}

func DatabaseConfig(cfg *config.MailsyncDatabaseConfig) *database.DatabaseConfig {
	return &database.DatabaseConfig{
		Driver:          cfg.Driver,
		SQLitePath:      cfg.SQLitePath,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		DBName:          cfg.DBName,
		Password:        cfg.Password,
		MaxConn:         cfg.MaxConn,
		MaxIdleConn:     cfg.MaxIdleConn,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		LogLevel:        cfg.LogLevel,
		SSLMode:         cfg.SSLMode,
	}
}

func (s *Server) startSync(ctx context.Context) {
	defer s.recoverWithJaeger("start_sync")

	if err := s.cronManager.StartCron(); err != nil {
		s.log.Errorf("Could not start cron jobs: %v", err)
	}
	if !s.config.SyncConfig.AutoStart {
		log.Println("Automatic sync disabled, waiting for /v1/sync/start")
		return
	}
	if err := s.services.Manager.Start(ctx); err != nil {
		log.Printf("❌ Synchronization manager error: %v", err)
		return
	}
	log.Println("✅ Synchronization manager started")
}

func (s *Server) stopSync() {
	defer s.recoverWithJaeger("stop_sync")

	s.cronManager.Stop()
	s.services.Manager.Stop()
	log.Println("✅ Synchronization manager stopped")
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

		log.Printf("❌ Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Initialize(ctx); err != nil {
		return err
	}

	if err := s.elector.Start(s.config.AppConfig.PodName, s.config.AppConfig.Namespace); err != nil {
		return err
	}

	go s.wrapGoroutine("http_server", func() {
		log.Println("Starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ HTTP server error: %v", err)
		}
	})
	log.Println("✅ HTTP server started successfully")
	log.Println("Mailsync is now running. Press Ctrl+C to exit.")

	return s.waitForShutdown()
}

func (s *Server) waitForShutdown() error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ HTTP server shutdown error: %v", err)
	} else {
		log.Println("✅ HTTP server shut down successfully")
	}

	// releasing leadership stops the manager and the cron jobs
	stopDone := make(chan struct{})
	go s.wrapGoroutine("sync_shutdown", func() {
		defer close(stopDone)
		s.elector.Stop()
		s.services.Manager.Stop()
	})

	select {
	case <-stopDone:
		log.Println("Synchronizers stopped gracefully")
	case <-shutdownCtx.Done():
		log.Println("⚠️ Synchronizer stop timed out, forcing exit")
	}

	if err := s.services.Close(); err != nil {
		log.Printf("❌ Services shutdown error: %v", err)
	}
	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}
	return nil
}
