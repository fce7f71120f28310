package routes

import (
	"carpool/internal/handlers"
	"carpool/internal/middleware"
	"carpool/pkg/logger"
	"carpool/pkg/websocket"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Ride          *handlers.RideHandler
	Participation *handlers.ParticipationHandler
	Payment       *handlers.PaymentHandler
	Activity      *handlers.ActivityHandler
	Chat          *handlers.ChatHandler
	Health        *handlers.HealthHandler
	WebSocket     *websocket.Handler
}

type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	WebSocketPath  string
}

// NewRouter builds the gin engine with global middleware and every route
func NewRouter(h *Handlers, opts Options, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(log))
	router.Use(middleware.CORSMiddleware(opts.AllowedOrigins))

	router.GET("/health", h.Health.Health)

	v1 := router.Group("/api/v1")
	{
		SetupWebhookRoutes(v1, h.Payment)

		protected := v1.Group("")
		protected.Use(middleware.AuthRequired(opts.JWTSecret))
		SetupRideRoutes(protected, h.Ride, h.Participation, h.Chat)
		SetupParticipationRoutes(protected, h.Participation)
		SetupPaymentRoutes(protected, h.Payment)
		SetupActivityRoutes(protected, h.Activity)

		wsPath := opts.WebSocketPath
		if wsPath == "" {
			wsPath = "/ws"
		}
		protected.GET(wsPath, h.WebSocket.HandleWebSocket)
	}

	return router
}

// SetupWebhookRoutes mounts gateway callbacks. They carry no bearer token and
// are authenticated by their signature.
func SetupWebhookRoutes(r *gin.RouterGroup, paymentHandler *handlers.PaymentHandler) {
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/:provider", paymentHandler.Webhook)
	}
}

func SetupRideRoutes(r *gin.RouterGroup, rideHandler *handlers.RideHandler, participationHandler *handlers.ParticipationHandler, chatHandler *handlers.ChatHandler) {
	rides := r.Group("/rides")
	{
		rides.POST("", rideHandler.CreateRide)
		rides.GET("", rideHandler.ListRides)
		rides.GET("/mine", rideHandler.GetMyRides)
		rides.GET("/:id", rideHandler.GetRide)
		rides.PATCH("/:id", rideHandler.UpdateRide)
		rides.POST("/:id/cancel", rideHandler.CancelRide)
		rides.POST("/:id/complete", rideHandler.CompleteRide)

		// Participation
		rides.POST("/:id/join", participationHandler.JoinRide)
		rides.GET("/:id/participants", participationHandler.ListParticipants)

		// Chat
		rides.GET("/:id/messages", chatHandler.ListMessages)
		rides.POST("/:id/messages", chatHandler.PostMessage)
	}
}

func SetupParticipationRoutes(r *gin.RouterGroup, participationHandler *handlers.ParticipationHandler) {
	participations := r.Group("/participations")
	{
		participations.DELETE("/:id", participationHandler.LeaveRide)
		participations.POST("/:id/checkout", participationHandler.StartCheckout)
		participations.POST("/:id/paid", middleware.AdminRequired(), participationHandler.MarkPaid)
	}
}

func SetupPaymentRoutes(r *gin.RouterGroup, paymentHandler *handlers.PaymentHandler) {
	payments := r.Group("/payments")
	{
		payments.GET("/session/:session_id", paymentHandler.VerifySession)
	}
}

func SetupActivityRoutes(r *gin.RouterGroup, activityHandler *handlers.ActivityHandler) {
	activity := r.Group("/activity")
	{
		activity.GET("", activityHandler.ListActivity)
		activity.POST("", activityHandler.AppendActivity)
	}
}
