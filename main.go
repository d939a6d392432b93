package main

import (
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/danimalnelson/membership-saas-sub000/config"
	"github.com/danimalnelson/membership-saas-sub000/database"
	checkoutapi "github.com/danimalnelson/membership-saas-sub000/internal/api/checkout"
	plansapi "github.com/danimalnelson/membership-saas-sub000/internal/api/plans"
	stripewebhooks "github.com/danimalnelson/membership-saas-sub000/internal/api/stripewebhook"
	subscriptionsapi "github.com/danimalnelson/membership-saas-sub000/internal/api/subscriptions"
	tenantsapi "github.com/danimalnelson/membership-saas-sub000/internal/api/tenants"
	routes "github.com/danimalnelson/membership-saas-sub000/internal/app/http"
	"github.com/danimalnelson/membership-saas-sub000/internal/events"
	"github.com/danimalnelson/membership-saas-sub000/internal/infra/stripeapi"
	"github.com/danimalnelson/membership-saas-sub000/internal/notify"
	"github.com/danimalnelson/membership-saas-sub000/internal/reconcile"
	"github.com/danimalnelson/membership-saas-sub000/internal/syncer"
)

func main() {
	// gin.SetMode(gin.ReleaseMode) uncomment only in production
	cfg := config.Load()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.Init(cfg.DBURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database init failed")
	}

	sc := stripeapi.New(cfg.StripeSecretKey)
	ledger := events.NewLedger(db)
	reconciler := reconcile.New(log)
	synchronizer := syncer.New(log)

	var notifier notify.Notifier = notify.Noop{}
	if cfg.SMTPHost != "" {
		notifier = notify.NewMailer(notify.SMTPConfig{
			From:     cfg.SMTPFrom,
			Password: cfg.SMTPPassword,
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
		}, log)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, cfg, db, routes.Handlers{
		Webhook:       stripewebhooks.NewHandler(cfg, db, ledger, reconciler, synchronizer, sc, notifier, log),
		Tenants:       tenantsapi.NewHandler(cfg, db, sc, reconciler, log),
		Plans:         plansapi.NewHandler(db, sc, log),
		Checkout:      checkoutapi.NewHandler(cfg, db, sc, log),
		Subscriptions: subscriptionsapi.NewHandler(db, sc, synchronizer, notifier, log),
	})

	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
