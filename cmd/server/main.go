package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"talentbridge-backend/api"
	"talentbridge-backend/chain"
	"talentbridge-backend/content"
	"talentbridge-backend/services"
	"talentbridge-backend/storage/ledger"
)

type config struct {
	Port              string
	StoreDriver       string
	PGDSN             string
	APIKey            string
	ChainDriver       string
	ContentDriver     string
	ReconcileEnabled  bool
	ReconcileInterval time.Duration
	AutoThreshold     int
	PlatformFeeBps    int64
	ReviewerFee       int64
}

func loadConfig() config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	reconcileInterval := 60 * time.Second
	if raw := os.Getenv("RECONCILE_INTERVAL_SEC"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			reconcileInterval = time.Duration(v) * time.Second
		}
	}

	autoThreshold := 80
	if raw := os.Getenv("AUTO_APPROVE_THRESHOLD"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 && v <= 100 {
			autoThreshold = v
		}
	}

	feeBps := int64(500)
	if raw := os.Getenv("PLATFORM_FEE_BPS"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v >= 0 && v < 10000 {
			feeBps = v
		}
	}

	reviewerFee := int64(500)
	if raw := os.Getenv("REVIEWER_FEE"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v >= 0 {
			reviewerFee = v
		}
	}

	return config{
		Port:              port,
		StoreDriver:       envDefault("LEDGER_DRIVER", "memory"),
		PGDSN:             os.Getenv("LEDGER_PG_DSN"),
		APIKey:            os.Getenv("API_KEY"),
		ChainDriver:       envDefault("CHAIN_DRIVER", "mock"), // mock | rpc
		ContentDriver:     envDefault("CONTENT_DRIVER", "memory"),
		ReconcileEnabled:  os.Getenv("RECONCILE_ENABLED") != "false",
		ReconcileInterval: reconcileInterval,
		AutoThreshold:     autoThreshold,
		PlatformFeeBps:    feeBps,
		ReviewerFee:       reviewerFee,
	}
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	cfg := loadConfig()

	var store ledger.Store
	var err error
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.PGDSN == "" {
			log.Fatal("LEDGER_PG_DSN required when LEDGER_DRIVER=postgres")
		}
		store, err = ledger.NewPGStore(cfg.PGDSN)
		if err != nil {
			log.Fatalf("failed to init store: %v", err)
		}
	default:
		store = ledger.NewMemoryStore()
	}
	defer store.Close()

	var chainClient chain.Client
	switch cfg.ChainDriver {
	case "rpc":
		chainClient = chain.NewRPCClientFromEnv()
	default:
		chainClient = chain.NewMockClient()
	}

	var blobs content.Store
	switch cfg.ContentDriver {
	case "http":
		blobs = content.NewClientFromEnv()
	default:
		blobs = content.NewMemoryStore()
	}

	assignments := services.NewAssignmentService(store, chainClient, blobs)
	claims := services.NewClaimCoordinator(store, chainClient, blobs)
	reviews := services.NewReviewService(store, cfg.ReviewerFee)
	approvals := services.NewApprovalOrchestrator(store, chainClient, cfg.AutoThreshold, cfg.PlatformFeeBps)
	reconciler := services.NewReconciler(store, chainClient, approvals)

	if cfg.ReconcileEnabled {
		services.StartReconcileLoop(context.Background(), reconciler, cfg.ReconcileInterval, api.ObserveReconcile)
		log.Printf("reconcile loop enabled (interval=%s)", cfg.ReconcileInterval)
	}

	srv := api.NewServer(store, assignments, claims, reviews, approvals, reconciler, cfg.APIKey)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	log.Printf("talentbridge server listening on :%s (ledger=%s chain=%s)", cfg.Port, cfg.StoreDriver, cfg.ChainDriver)
	if err := http.ListenAndServe(":"+cfg.Port, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
