package main

import (
	"net/http"

	"spendsync/internal/shared/config"
	"spendsync/internal/shared/logger"
	"spendsync/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", deps.HealthHandler.HandleHealth)

	// Provider webhooks
	mux.HandleFunc("POST /webhooks/plaid", deps.WebhookHandler.HandlePlaid)

	// Protected routes
	authMiddleware := middleware.Auth(deps.JWT)
	adminOnly := middleware.AdminOnly(cfg.Server.AdminUserIDs)

	mux.Handle("POST /api/refresh", authMiddleware(http.HandlerFunc(deps.RefreshHandler.HandleRefresh)))
	mux.Handle("GET /api/refresh/status", authMiddleware(http.HandlerFunc(deps.RefreshHandler.HandleStatus)))
	mux.Handle("GET /api/accounts", authMiddleware(http.HandlerFunc(deps.AccountHandler.HandleListAccounts)))
	mux.Handle("GET /api/transactions", authMiddleware(http.HandlerFunc(deps.TransactionHandler.HandleListTransactions)))

	// Admin routes
	mux.Handle("POST /api/admin/refresh-all", authMiddleware(adminOnly(http.HandlerFunc(deps.RefreshHandler.HandleRefreshAll))))

	// Apply global middleware. Telemetry opens the server span and Tracing names it after the matched route.
	handler := middleware.Logging(logger.Named("http"))(mux)
	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(cfg.Telemetry.ServiceName)(middleware.Tracing(handler))
	}

	return handler
}
