package main

import (
	"log"
	"os"
	"strconv"

	"talentbridge-backend/chain"
	"talentbridge-backend/content"
	"talentbridge-backend/mcp"
	"talentbridge-backend/services"
	"talentbridge-backend/storage/ledger"
)

type config struct {
	StoreDriver    string
	PGDSN          string
	ChainDriver    string
	ContentDriver  string
	AutoThreshold  int
	PlatformFeeBps int64
}

func loadConfig() config {
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

	return config{
		StoreDriver:    envDefault("LEDGER_DRIVER", "memory"),
		PGDSN:          os.Getenv("LEDGER_PG_DSN"),
		ChainDriver:    envDefault("CHAIN_DRIVER", "mock"), // mock | rpc
		ContentDriver:  envDefault("CONTENT_DRIVER", "memory"),
		AutoThreshold:  autoThreshold,
		PlatformFeeBps: feeBps,
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
	approvals := services.NewApprovalOrchestrator(store, chainClient, cfg.AutoThreshold, cfg.PlatformFeeBps)
	reconciler := services.NewReconciler(store, chainClient, approvals)

	operator := mcp.NewOperatorServer(store, assignments, claims, approvals, reconciler)

	log.Printf("TalentBridge operator MCP server starting (ledger=%s chain=%s)", cfg.StoreDriver, cfg.ChainDriver)

	if err := operator.ServeStdio(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
