package routes

import (
	"context"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/saeid-a/MentorHubBack/internal/config"
	"github.com/saeid-a/MentorHubBack/internal/gateway"
	"github.com/saeid-a/MentorHubBack/internal/handlers"
	"github.com/saeid-a/MentorHubBack/internal/middleware"
	"github.com/saeid-a/MentorHubBack/internal/models"
	"github.com/saeid-a/MentorHubBack/internal/notification"
	"github.com/saeid-a/MentorHubBack/internal/repository"
	"github.com/saeid-a/MentorHubBack/internal/scheduler"
	"github.com/saeid-a/MentorHubBack/internal/services"
	notifyws "github.com/saeid-a/MentorHubBack/internal/websocket"
)

// RegisterRoutes wires the services and mounts every route. The notification
// dispatcher, websocket hub and scheduler run until ctx is cancelled.
func RegisterRoutes(ctx context.Context, app *fiber.App, cfg *config.Config, db *pgxpool.Pool) error {
	store := repository.NewPgStore(db)
	userRepo := repository.NewUserRepository(db)
	mentorProfileRepo := repository.NewMentorProfileRepository(db)
	courseRepo := repository.NewCourseRepository(db)

	hub := notifyws.NewHub()
	go hub.Run(ctx)

	sinks := []notification.Sink{hub}
	var publisher *notification.AMQPPublisher
	if cfg.RabbitMQURL != "" {
		var err error
		publisher, err = notification.NewAMQPPublisher(cfg.RabbitMQURL)
		if err != nil {
			return err
		}
		sinks = append(sinks, publisher)
	}
	dispatcher := notification.NewDispatcher(cfg.NotificationQueueSize, cfg.NotificationWorkers, sinks...)
	go func() {
		dispatcher.Run(ctx)
		if publisher != nil {
			publisher.Close()
		}
	}()

	if !cfg.PaymentsEnabled() {
		log.Warn().Msg("PAYSTACK_SECRET_KEY is not set, payment initialization will fail")
	}
	paystack := gateway.NewPaystackClient(gateway.Config{
		BaseURL:   cfg.PaystackBaseURL,
		SecretKey: cfg.PaystackSecretKey,
		Currency:  cfg.PaymentCurrency,
		Timeout:   cfg.GatewayTimeout,
	})

	sessionService := services.NewSessionService(store, userRepo, mentorProfileRepo, courseRepo, dispatcher)
	approvalService := services.NewApprovalService(store, dispatcher)
	paymentService := services.NewPaymentService(store, userRepo, paystack, dispatcher, cfg.PaymentCallbackURL)
	settlementService := services.NewSettlementService(store)

	if cfg.ReaperEnabled {
		reaper := scheduler.New(approvalService, paymentService, cfg.ReaperInterval, cfg.PaymentReconcileAfter)
		go reaper.Start(ctx)
	}

	sessionHandler := handlers.NewSessionHandler(sessionService, approvalService, paymentService)
	offeringHandler := handlers.NewOfferingHandler(sessionService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	settlementHandler := handlers.NewSettlementHandler(settlementService)
	notificationHandler := handlers.NewNotificationHandler(hub, cfg.JWTSecret)

	if err := registerDocsRoutes(app, cfg); err != nil {
		return err
	}

	api := app.Group("/api")

	payments := api.Group("/payments")
	payments.Get("/callback", paymentHandler.PaymentCallback)
	payments.Post("/webhook", paymentHandler.Webhook)

	api.Use("/v1/ws", notificationHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(notificationHandler.HandleWebSocket))

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	sessions := authProtected.Group("/sessions")
	sessions.Post("/book", sessionHandler.BookSession)
	sessions.Get("", sessionHandler.ListSessions)
	sessions.Get("/:id", sessionHandler.GetSession)
	sessions.Post("/:id/approve", sessionHandler.ApproveSession)
	sessions.Post("/:id/reject", sessionHandler.RejectSession)
	sessions.Post("/:id/start", sessionHandler.StartSession)
	sessions.Post("/:id/complete", sessionHandler.CompleteSession)
	sessions.Post("/:id/cancel", sessionHandler.CancelSession)
	sessions.Post("/:id/no-show", sessionHandler.MarkNoShow)
	sessions.Post("/:id/pay", sessionHandler.PayForSession)

	authProtected.Get("/pricing/quote", offeringHandler.QuotePrice)

	offerings := authProtected.Group("/offerings")
	offerings.Get("", offeringHandler.ListOfferings)
	offerings.Post("", offeringHandler.CreateOffering)
	offerings.Delete("/:id", offeringHandler.DeleteOffering)

	authProtected.Get("/payments/verify/:reference", paymentHandler.VerifyPayment)

	authProtected.Get(
		"/settlements/report",
		middleware.RequireRole(models.RoleAdmin, models.RoleMentor),
		settlementHandler.Report,
	)

	return nil
}
