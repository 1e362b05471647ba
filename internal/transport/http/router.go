package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redemption-api/internal/config"
	jwtinfra "github.com/go-redemption-api/internal/infrastructure/jwt"
	"github.com/go-redemption-api/internal/infrastructure/metrics"
	"github.com/go-redemption-api/internal/transport/http/handler"
	appmiddleware "github.com/go-redemption-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds background work owned by
// the router, such as rate-limiter cleanup.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	if cfg.EnableMetrics {
		r.Use(metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10, applied to the public redemption endpoints.
	publicRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(5), 10)

	healthH := handler.NewHealthHandler()
	redeemH := handler.NewRedeemHandler(deps.Redemption)
	voucherH := handler.NewVoucherHandler(deps.Vouchers, deps.Catalog)
	adminH := handler.NewAdminHandler(deps.Redemption, deps.Catalog, deps.RecoveryAge)
	bulkH := handler.NewBulkHandler(deps.Bulk)

	if cfg.EnableMetrics {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)

		r.Group(func(r chi.Router) {
			r.Use(publicRL.Limit)
			r.Get("/redeem/{phone}/{token}", redeemH.Validate)
			r.Post("/redeem/{phone}/{token}", redeemH.Submit)
			r.Post("/vouchers/{code}/claims", voucherH.Claim)
		})

		if deps.Verifier == nil {
			return
		}

		// ── Admin routes ─────────────────────────────────────────────────────
		r.Route("/admin", func(r chi.Router) {
			r.Use(appmiddleware.Auth(deps.Verifier))
			r.Use(appmiddleware.RequireRole(jwtinfra.RoleAdmin))

			r.Post("/events", adminH.CreateEvent)
			r.Get("/events/{id}", adminH.GetEvent)
			r.Post("/events/{id}/allocations/bulk", bulkH.Upload)

			r.Post("/links", adminH.IssueLink)
			r.Post("/links/{token}/resend", adminH.ResendLink)
			r.Delete("/links/{token}", adminH.RevokeLink)

			r.Get("/reports/{id}", bulkH.Report)

			r.Post("/vouchers", voucherH.Create)
			r.Get("/vouchers/{code}", voucherH.Get)
			r.Post("/vouchers/{code}/venue-redemptions", voucherH.RedeemAtVenue)

			r.Post("/recovery", adminH.Recover)
		})
	})

	return r
}
