package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/tableops/tableops/app/controllers"
	"github.com/tableops/tableops/app/repository"
	"github.com/tableops/tableops/internal/pkg/billing"
	"github.com/tableops/tableops/internal/pkg/cache"
	"github.com/tableops/tableops/internal/pkg/database"
	"github.com/tableops/tableops/internal/pkg/env"
	"github.com/tableops/tableops/internal/pkg/idempotency"
	"github.com/tableops/tableops/internal/pkg/mail"
	"github.com/tableops/tableops/internal/pkg/metrics"
	"github.com/tableops/tableops/internal/pkg/router"
	"github.com/tableops/tableops/internal/pkg/scheduler"
)

func main() {
	app, sched := NewApplication()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("[App] Shutting down")
		if sched != nil {
			sched.Stop()
		}
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Errorf("[App] Shutdown failed: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	if err != nil {
		log.Fatal(err)
	}
	_ = cache.Close()
}

// NewApplication wires the billing engine and returns the HTTP app together
// with the in-process scheduler, which is nil when disabled.
func NewApplication() (*fiber.App, *scheduler.Scheduler) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// Define possible base paths
	basePaths := []string{
		"./",     // Current directory
		"../../", // From cmd/tableops to project root
	}

	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	billingMetrics := metrics.NewBilling()
	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	// idempotency: in-memory recency set in front of Redis claims
	guard := idempotency.NewGuard(
		idempotency.NewRecencySet(env.GetEnvInt("IDEMPOTENCY_CACHE_SIZE", idempotency.DefaultLimit)),
		idempotency.NewRedisStore(cache.GetClient(), env.GetEnvDuration("IDEMPOTENCY_TTL", idempotency.DefaultTTL)),
	)

	notifier, err := mail.NewNotifier(mail.NewSMTPMailerFromEnv(), env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), billingMetrics)
	if err != nil {
		panic(err)
	}

	customers := billing.NewStripeCustomers(env.GetEnv("STRIPE_SECRET_KEY", ""), billingMetrics)
	reconciler := billing.NewReconciler(repos, customers, billingMetrics)
	dispatcher := billing.NewDispatcher(repos, notifier, billingMetrics)
	processor := billing.NewWebhookProcessor(env.GetEnv("STRIPE_WEBHOOK_SECRET", ""), guard, reconciler, dispatcher, billingMetrics)
	sweeper := billing.NewSweeper(repos.Subscription, reconciler, dispatcher, env.GetEnvInt("SWEEP_CONCURRENCY", billing.DefaultSweepConcurrency), billingMetrics)

	sched := setupScheduler(sweeper)

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20, // webhook payloads are small
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Billing: controllers.NewBillingController(processor),
		Cron:    controllers.NewCronController(sweeper),
		Health: map[string]controllers.HealthCheck{
			"database": func(ctx context.Context) error {
				sqlDB, err := database.GetDB().DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			"cache": cache.Ping,
		},
		CronSecret:      env.GetEnv("CRON_SECRET", ""),
		LimiterStorage:  cache.NewLimiterStorage(),
		WebhookRateMax:  env.GetEnvInt("WEBHOOK_RATE_LIMIT", 300),
		CronRateMax:     env.GetEnvInt("CRON_RATE_LIMIT", 30),
		MonitorUser:     env.GetEnv("MONITOR_USER", ""),
		MonitorPassword: env.GetEnv("MONITOR_PASSWORD", ""),
	})

	return app, sched
}

func setupScheduler(sweeper *billing.Sweeper) *scheduler.Scheduler {
	if !env.GetEnvBool("CRON_SCHEDULER_ENABLED", false) {
		log.Info("[Scheduler] Disabled, sweeps run only through /api/cron")
		return nil
	}

	sched := scheduler.New()
	jobs := []scheduler.Job{
		{
			Name:     "trial-expiring",
			Schedule: env.GetEnv("CRON_TRIAL_EXPIRING_SCHEDULE", "0 9 * * *"),
			Run: func(ctx context.Context) error {
				_, err := sweeper.TrialExpiring(ctx)
				return err
			},
		},
		{
			Name:     "trial-expired",
			Schedule: env.GetEnv("CRON_TRIAL_EXPIRED_SCHEDULE", "15 0 * * *"),
			Run: func(ctx context.Context) error {
				_, err := sweeper.TrialExpired(ctx)
				return err
			},
		},
	}
	for _, job := range jobs {
		if err := sched.Register(job); err != nil {
			panic(err)
		}
	}
	sched.Start()
	return sched
}
