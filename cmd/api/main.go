package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redemption-api/internal/application/bulk"
	"github.com/go-redemption-api/internal/application/delivery"
	"github.com/go-redemption-api/internal/application/redemption"
	"github.com/go-redemption-api/internal/application/voucher"
	"github.com/go-redemption-api/internal/config"
	jwtinfra "github.com/go-redemption-api/internal/infrastructure/jwt"
	"github.com/go-redemption-api/internal/infrastructure/metrics"
	"github.com/go-redemption-api/internal/infrastructure/qrcode"
	s3infra "github.com/go-redemption-api/internal/infrastructure/s3"
	"github.com/go-redemption-api/internal/pkg/phone"
	transporthttp "github.com/go-redemption-api/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, err := buildRepos(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	queue, closeQueue, err := buildQueue(ctx, cfg)
	if err != nil {
		log.Fatalf("queue: %v", err)
	}
	defer closeQueue()
	notifier, err := buildNotifier(cfg)
	if err != nil {
		log.Fatalf("notifier: %v", err)
	}

	// JWT provider (optional, admin routes are disabled without it).
	var verifier *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		verifier = p
	} else {
		log.Printf("WARN: JWT provider not available, admin routes disabled: %v", err)
	}

	objects := s3infra.NewStore(s3infra.NewClient(cfg), cfg.S3BucketName, cfg.PresignTTL)
	phones := phone.NewNormalizer(cfg.DefaultPhoneRegion)
	rec := recorder(cfg)

	vd := repos.Voucher
	vd.Phones, vd.Metrics = phones, rec
	voucherSvc := voucher.NewService(vd)

	rd := repos.Redemption
	rd.Vouchers = voucherSvc
	rd.Queue = queue
	rd.Phones = phones
	rd.Metrics = rec
	rd.BaseURL = cfg.PublicBaseURL
	rd.MaxTickets = cfg.MaxTicketsPerLink
	rd.CommitLease = cfg.CommitLease
	redemptionSvc := redemption.NewService(rd)

	bd := repos.Bulk
	bd.Objects, bd.Queue, bd.Phones, bd.Metrics = objects, queue, phones, rec
	bulkSvc := bulk.NewService(bd)

	dd := repos.Delivery
	dd.Queue = queue
	dd.Notifier = notifier
	dd.Media = qrcode.NewRenderer(objects, 512)
	dd.Metrics = rec
	dd.MaxRetries = cfg.DeliveryMaxRetries
	dd.Backoff = 2 * time.Second
	deliverySvc := delivery.NewService(dd)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		deliverySvc.Run(ctx, cfg.DeliveryWorkers)
	}()
	go func() {
		defer wg.Done()
		runRecovery(ctx, redemptionSvc, cfg.RecoveryInterval, cfg.RecoveryAge)
	}()
	if cfg.EnableMetrics {
		go metrics.WatchQueue(ctx, "delivery", 15*time.Second, queue.Len)
	}

	deps := &transporthttp.Deps{
		Redemption:  redemptionSvc,
		Vouchers:    voucherSvc,
		Bulk:        bulkSvc,
		Catalog:     repos.Catalog,
		RecoveryAge: cfg.RecoveryAge,
	}
	if verifier != nil {
		deps.Verifier = verifier
	}
	router := transporthttp.NewRouter(ctx, cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s, store=%s, queue=%s, notifier=%s)",
			cfg.AppPort, cfg.AppEnv, cfg.StoreBackend, cfg.QueueBackend, cfg.NotifierBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	wg.Wait()
	log.Println("Server stopped")
}

// runRecovery resolves interrupted commits every interval until ctx is done.
func runRecovery(ctx context.Context, svc redemption.Service, interval, age time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := svc.Recover(ctx, age); err != nil && ctx.Err() == nil {
				log.Printf("WARN: recovery pass failed: %v", err)
			}
		}
	}
}
