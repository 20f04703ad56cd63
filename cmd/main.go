package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/game"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/matchmaking"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/blockchain"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/config"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/firebase"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/ledger"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/middleware"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/notify"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/retry"
	pkgws "github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/ws"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/profile"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/settlement"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/ws"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	setupZerolog()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := ledger.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	store := ledger.NewGormStore(db)

	hub := pkgws.NewNotificationHub()
	notifiers := notify.Multi{notify.NewHubNotifier(hub)}

	var pubsubClient *pubsub.Client
	if cfg.GoogleProjectId != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.GoogleProjectId)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize pubsub")
		}
		defer pubsubClient.Close()
		notifiers = append(notifiers, notify.NewPubsubNotifier(pubsubClient))
	} else {
		log.Warn().Msg("GOOGLE_PROJECT_ID not set, pubsub disabled")
	}

	var operatorAuth gin.HandlerFunc = middleware.AllowAll
	if cfg.FirebaseAuthEnabled {
		verifier, err := firebase.NewAuthVerifier(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize firebase")
		}
		operatorAuth = middleware.VerifyAuthToken(verifier)
	} else {
		log.Warn().Msg("Operator auth disabled")
	}

	if !cfg.FlowEnabled() {
		log.Fatal().Msg("Flow access is not configured")
	}
	transferer, err := blockchain.NewFlowTransferer(ctx, blockchain.FlowOptions{
		AccessHost:      cfg.Flow.AccessHost,
		ContractAddress: cfg.Flow.EscrowContractAddress,
		Admin:           blockchain.GetAdminAuthorizer(cfg.Flow),
		Timeout:         cfg.TransferTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize flow client")
	}

	ledgerRetry := retry.DefaultPolicy(cfg.LedgerRetryAttempts)
	coordinator := settlement.NewCoordinator(store, transferer, notifiers, settlement.Options{
		ClaimTTL:    cfg.SettlementClaimTTL,
		LedgerRetry: ledgerRetry,
	})
	go settlement.NewReconciler(coordinator, cfg.ReconcileInterval).Start(ctx)

	apiRouter := gin.New()
	middleware.RegisterGlobalMiddleware(apiRouter, cfg.CorsAllowedOrigins)
	routerGroup := apiRouter.Group("/escrow-api")

	ws.RegisterRoutes(routerGroup, hub)
	game.RegisterRoutesAndSubscriptions(ctx, routerGroup, game.Dependencies{
		Store:    store,
		Notifier: notifiers,
		Retry:    ledgerRetry,
		PubSub:   pubsubClient,
	})
	matchmaking.RegisterRoutes(routerGroup, matchmaking.NewEngine(store, notifiers, cfg.MatchMaxAttempts, ledgerRetry))
	settlement.RegisterRoutes(routerGroup, coordinator, operatorAuth)
	profile.RegisterRoutes(routerGroup, store)

	server := &http.Server{
		Addr:         cfg.Port,
		Handler:      apiRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTPWriteTimeout(),
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPWriteTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

func setupZerolog() {
	zerolog.LevelFieldName = "severity"
	zerolog.TimestampFieldName = "time"
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
