// Package app assembles the server from configuration: store, cache, event
// bus, payment gateways, services, handlers and the websocket hub.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"carpool/internal/config"
	"carpool/internal/handlers"
	"carpool/internal/services"
	"carpool/pkg/cache"
	"carpool/pkg/events"
	"carpool/pkg/logger"
	"carpool/pkg/payment"
	"carpool/pkg/websocket"
	"carpool/routes"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type App struct {
	Config  *config.Config
	Router  *gin.Engine
	Hub     *websocket.Hub
	Bus     *events.Bus
	Sweeper *services.Sweeper

	Participations services.ParticipationService

	log     *logger.Logger
	closers []func() error
}

// New wires every component. Connections opened here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, log: log}

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	checks := map[string]handlers.HealthCheck{}

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisCache(&cache.RedisConfig{
			Addr:         cfg.Redis.Addr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			KeyPrefix:    cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		redisCache = rc
		a.closers = append(a.closers, rc.Close)
		checks["redis"] = rc.Ping
	}

	store, err := a.openStore(ctx, cfg, redisCache, checks)
	if err != nil {
		a.Close()
		return nil, err
	}

	bus, err := newBus(cfg, redisCache, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Bus = bus
	a.closers = append(a.closers, bus.Close)

	var dedup services.Deduplicator
	if redisCache != nil {
		dedup = services.NewCacheDeduplicator(redisCache, cfg.Payment.WebhookDedupTTL)
	} else {
		dedup = services.NewMemoryDeduplicator(cfg.Payment.WebhookDedupTTL, nil)
	}

	gateways := newGateways(cfg.Payment)
	if len(gateways) == 0 {
		log.Warn("No payment gateway configured, checkout is disabled")
	}

	activity := services.NewActivityService(store.Activity(), cfg.Rides.ActivityLimit, nil)
	rides := services.NewRideService(store.Rides(), store.Participations(), activity, bus, cfg.Rides, nil, log)
	participations := services.NewParticipationService(store.Rides(), store.Participations(), activity, bus, nil, log)
	reconciler := services.NewReconciler(store.Rides(), store.Participations(), activity, bus, log)
	chat := services.NewChatService(store.Chat(), participations, bus, cfg.Rides.ChatHistory, nil, log)
	checkout := services.NewCheckoutService(
		store.Rides(), store.Participations(), store.Payments(), reconciler, activity,
		gateways, dedup,
		services.CheckoutOptions{
			DefaultProvider: cfg.Payment.DefaultProvider,
			SuccessURL:      cfg.Payment.SuccessURL,
			CancelURL:       cfg.Payment.CancelURL,
		},
		nil, log,
	)
	a.Participations = participations
	a.Sweeper = services.NewSweeper(participations, cfg.Rides.PendingTTL, cfg.Rides.SweepInterval, log)

	a.Hub = websocket.NewHub(log)
	wsHandler := websocket.NewHandler(a.Hub, websocket.HandlerConfig{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
		Settings: websocket.Settings{
			WriteWait:      cfg.WebSocket.WriteTimeout,
			PongWait:       cfg.WebSocket.PongTimeout,
			PingPeriod:     cfg.WebSocket.PingInterval,
			MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		},
	}, rideRoomAuthorizer(participations))

	a.Router = routes.NewRouter(&routes.Handlers{
		Ride:          handlers.NewRideHandler(rides),
		Participation: handlers.NewParticipationHandler(participations, reconciler, checkout),
		Payment:       handlers.NewPaymentHandler(checkout),
		Activity:      handlers.NewActivityHandler(activity),
		Chat:          handlers.NewChatHandler(chat),
		Health:        handlers.NewHealthHandler(checks),
		WebSocket:     wsHandler,
	}, routes.Options{
		JWTSecret:      cfg.Security.JWTSecret,
		AllowedOrigins: cfg.Security.CORSAllowedOrigins,
		WebSocketPath:  cfg.WebSocket.Path,
	}, log)

	if len(cfg.Security.TrustedProxies) > 0 {
		if err := a.Router.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid trusted proxies: %w", err)
		}
	}

	return a, nil
}

// Start launches the hub, the event fan-out and, when withSweeper is set, the
// stale participation sweeper. All of them stop with ctx.
func (a *App) Start(ctx context.Context, withSweeper bool) error {
	go a.Hub.Run(ctx)

	if err := a.Bus.Subscribe(ctx, a.Hub.HandleEvent); err != nil {
		return err
	}

	if withSweeper {
		go a.Sweeper.Run(ctx)
	}
	return nil
}

// Serve runs the HTTP server until ctx is cancelled, then drains in-flight
// requests.
func (a *App) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              a.Config.Addr(),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	a.log.Info("Shutting down HTTP server")
	return server.Shutdown(shutdownCtx)
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newBus(cfg *config.Config, redisCache *cache.RedisCache, log *logger.Logger) (*events.Bus, error) {
	if cfg.Events.Driver != config.EventsDriverRedis {
		return events.NewInMemoryBus(cfg.Events.Topic, log), nil
	}
	if redisCache == nil {
		return nil, fmt.Errorf("EVENTS_DRIVER=redis requires REDIS_ENABLED")
	}
	return events.NewRedisBus(redisCache.Client(), cfg.Events.Topic, consumerName(), log)
}

// consumerName labels this instance in the stream subscriber logs.
func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "carpool"
	}
	return host + "-" + uuid.NewString()[:8]
}

func newGateways(cfg *config.PaymentConfig) []payment.Gateway {
	var gateways []payment.Gateway
	if cfg.Stripe.SecretKey != "" {
		gateways = append(gateways, payment.NewRetryingGateway(
			payment.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret),
			cfg.RequestTimeout, cfg.MaxRetryTime,
		))
	}
	if cfg.Razorpay.KeyID != "" {
		gateways = append(gateways, payment.NewRetryingGateway(
			payment.NewRazorpayProvider(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, cfg.Razorpay.Webhook),
			cfg.RequestTimeout, cfg.MaxRetryTime,
		))
	}
	return gateways
}

func rideRoomAuthorizer(participations services.ParticipationService) websocket.RoomAuthorizer {
	return func(ctx context.Context, userID, rideID string) error {
		id, err := primitive.ObjectIDFromHex(rideID)
		if err != nil {
			return fmt.Errorf("invalid ride id %q", rideID)
		}
		return participations.AuthorizeRideAccess(ctx, id, userID)
	}
}
