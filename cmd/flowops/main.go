package main

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/accesoit/flowops/internal/config"
	"github.com/accesoit/flowops/internal/middleware"
	"github.com/accesoit/flowops/internal/provision/api"
	"github.com/accesoit/flowops/internal/provision/database"
	"github.com/accesoit/flowops/internal/provision/metrics"
	"github.com/accesoit/flowops/internal/provision/notify"
	"github.com/accesoit/flowops/internal/provision/service"
	"github.com/accesoit/flowops/internal/provision/transport"
)

func main() {
	// load config first
	log.Info().Msg("Starting flowops api server")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// configure log level from config
	switch strings.ToLower(cfg.Logging.Level) {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open registry database")
	}
	defer db.Close()

	tc, err := transport.New(&cfg.Transport)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build transport client")
	}
	log.Info().Str("mode", cfg.Transport.Mode).Msg("transport client ready")

	var notifier notify.Notifier
	switch cfg.Notifier.Mode {
	case "amqp":
		amqpNotifier, nerr := notify.NewAMQPNotifier(cfg.Notifier.AMQPURL, cfg.Notifier.Queue)
		if nerr != nil {
			log.Error().Err(nerr).Msg("amqp notifier init failed; falling back to log sink")
			notifier = notify.NewLogNotifier()
		} else {
			defer amqpNotifier.Close()
			notifier = amqpNotifier
		}
	default:
		notifier = notify.NewLogNotifier()
	}

	provisioner := service.NewProvisioner(
		database.NewInstanceRepo(db),
		database.NewTenantRepo(db),
		database.NewPlanRepo(db),
		tc,
		notifier,
		service.Config{
			BaseDomain: cfg.Provision.BaseDomain,
			Image:      cfg.Provision.Image,
		},
	)
	if cache := service.NewRedisStatusCacheFromConfig(&cfg.Redis); cache != nil {
		provisioner.WithStatusCache(cache)
	}

	metrics.Init()

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.Authentication)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	if _, err := api.NewApi(provisioner, router, cfg.Webhook.Secret); err != nil {
		log.Fatal().Err(err).Msg("bind provision api failed.")
	}

	log.Info().Msgf("Starting server on %s", cfg.Server.BindAddr)
	if err := router.Run(cfg.Server.BindAddr); err != nil {
		log.Fatal().Err(err).Msg("start flowops api server failed.")
	}
	log.Info().Msg("flowops api server exit...")
}
