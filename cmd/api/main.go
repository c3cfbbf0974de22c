package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dpatel-io/clinicbook/internal/config"
	"github.com/dpatel-io/clinicbook/internal/notify"
	"github.com/dpatel-io/clinicbook/internal/repository"
	"github.com/dpatel-io/clinicbook/internal/router"
	"github.com/dpatel-io/clinicbook/internal/service"
	"github.com/dpatel-io/clinicbook/pkg/auth"
	"github.com/dpatel-io/clinicbook/pkg/database"
	"github.com/dpatel-io/clinicbook/pkg/logger"
	"github.com/dpatel-io/clinicbook/pkg/metrics"
	"github.com/dpatel-io/clinicbook/pkg/tracer"
)

const reminderWindowHours = 24

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting clinicbook api",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	tp, err := tracer.Init(cfg.Tracing)
	if err != nil {
		log.Fatal("failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	collector := metrics.NewCollector("clinicbook")

	appointmentRepo := repository.NewAppointmentGormRepository(db)
	userRepo := repository.NewUserGormRepository(db)
	auditRepo := repository.NewAuditGormRepository(db)

	auditSvc := service.NewAuditService(auditRepo, collector, log)
	defer auditSvc.Shutdown()

	var sender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.Email.SendGridAPIKey,
		FromEmail: cfg.Email.FromEmail,
		FromName:  cfg.Email.FromName,
	}, log); sg != nil {
		sender = sg
	} else {
		log.Info("no sendgrid api key configured, using stub email sender")
		sender = notify.NewStubEmailSender(log)
	}
	notifier := notify.NewEmailNotifier(sender)

	jwtManager := auth.NewJWTManager(cfg.JWT)

	authSvc := service.NewAuthService(userRepo, jwtManager, log)
	userSvc := service.NewUserService(userRepo, auditSvc, log)
	bookingSvc := service.NewBookingService(appointmentRepo, userRepo, auditSvc, notifier, collector, log)

	engine := router.New(router.Dependencies{
		Config:         cfg,
		DB:             db,
		JWTManager:     jwtManager,
		Metrics:        collector,
		Log:            log,
		AuthService:    authSvc,
		UserService:    userSvc,
		BookingService: bookingSvc,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runReminderLoop(rootCtx, bookingSvc, log)

	go func() {
		log.Info("http server listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	log.Info("server stopped")
}

// runReminderLoop periodically dispatches reminder emails for appointments
// starting within the next day.
func runReminderLoop(ctx context.Context, bookings *service.BookingService, log *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := bookings.SendReminders(ctx, reminderWindowHours); err != nil {
				log.Warn("reminder sweep failed", zap.Error(err))
			}
		}
	}
}
