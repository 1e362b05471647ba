package http

import (
	"time"

	"github.com/go-redemption-api/internal/application/bulk"
	"github.com/go-redemption-api/internal/application/catalog"
	"github.com/go-redemption-api/internal/application/redemption"
	"github.com/go-redemption-api/internal/application/voucher"
	"github.com/go-redemption-api/internal/transport/http/middleware"
)

// Deps holds the application services the router exposes.
type Deps struct {
	Redemption redemption.Service
	Vouchers   voucher.Service
	Bulk       bulk.Service
	Catalog    catalog.Service
	// Verifier checks admin bearer tokens. With no verifier the admin routes are not mounted.
	Verifier    middleware.TokenVerifier
	RecoveryAge time.Duration
}
