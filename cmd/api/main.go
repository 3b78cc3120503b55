// Command api is the PazPaz HTTP server: it loads config, wires every
// persistence repo and domain service together, and serves spec.md
// §6's HTTP surface until a SIGTERM asks it to drain, following the
// teacher's config-then-components-then-router-then-graceful-shutdown
// bootstrap shape.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pazpaz/backend/internal/appointment"
	"github.com/pazpaz/backend/internal/attachment"
	"github.com/pazpaz/backend/internal/audit"
	"github.com/pazpaz/backend/internal/circuitbreaker"
	"github.com/pazpaz/backend/internal/config"
	"github.com/pazpaz/backend/internal/cryptoenc"
	"github.com/pazpaz/backend/internal/db"
	"github.com/pazpaz/backend/internal/embedding"
	"github.com/pazpaz/backend/internal/fastkv"
	"github.com/pazpaz/backend/internal/httpapi"
	"github.com/pazpaz/backend/internal/identity"
	"github.com/pazpaz/backend/internal/llm"
	"github.com/pazpaz/backend/internal/logging"
	"github.com/pazpaz/backend/internal/metrics"
	"github.com/pazpaz/backend/internal/paymentservice"
	"github.com/pazpaz/backend/internal/rag"
	"github.com/pazpaz/backend/internal/ratelimit"
	"github.com/pazpaz/backend/internal/session"
	"github.com/pazpaz/backend/internal/vector"
)

func main() {
	configPath := flag.String("config", os.Getenv("PAZPAZ_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("config_load_failed", logging.Fields{"error": err})
		os.Exit(1)
	}

	database, err := db.Open(cfg.Database.DSN, cfg.Database.MaxOpenConn, cfg.Database.MaxIdleConn)
	if err != nil {
		logging.Error("database_connect_failed", logging.Fields{"error": err})
		os.Exit(1)
	}
	defer database.Close()

	codec, err := newCodec(cfg.Crypto)
	if err != nil {
		logging.Error("crypto_codec_init_failed", logging.Fields{"error": err})
		os.Exit(1)
	}

	kv, err := fastkv.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logging.Error("fastkv_connect_failed", logging.Fields{"error": err})
		os.Exit(1)
	}
	defer kv.Close()

	// Repositories.
	clients := db.NewClientRepo(database, codec)
	sessions := db.NewSessionRepo(database, codec)
	sessionVersions := db.NewSessionVersionRepo(database, codec)
	appointments := db.NewAppointmentRepo(database)
	workspaces := db.NewWorkspaceRepo(database)
	paymentTxs := db.NewPaymentTransactionRepo(database)
	users := db.NewUserRepo(database)
	magicLinks := db.NewMagicLinkRepo(database)
	auditRepo := db.NewAuditRepo(database)
	attachments := db.NewAttachmentRepo(database, codec)

	auditor := audit.NewEmitter(auditRepo)
	m := metrics.New()

	attachmentStore, err := attachment.New(cfg.Attach.SupabaseURL, cfg.Attach.SupabaseServiceKey, cfg.Attach.Bucket)
	if err != nil {
		logging.Error("attachment_store_init_failed", logging.Fields{"error": err})
		os.Exit(1)
	}

	// Rate limiters (spec.md §4.8).
	magicLinkLimiter := ratelimit.New(kv, "magiclink", time.Hour, cfg.RateLimit.MagicLinkPerHourPerIP, true)
	draftLimiter := ratelimit.New(kv, "draft_autosave", time.Minute, cfg.RateLimit.DraftAutosavePerMin, false)
	attachmentLimiter := ratelimit.New(kv, "attachment", time.Minute, cfg.RateLimit.AttachmentPerMin, false)

	// Identity: session cookies + magic-link issuance/verification.
	signer := identity.NewSessionSigner(cfg.Auth.SessionSecret, cfg.Auth.SessionPrevSecret,
		time.Duration(cfg.Auth.SessionTTLHours)*time.Hour)
	magicLinkIssuer := identity.NewMagicLinkIssuer(magicLinks, users, kv, signer)
	resolver := identity.NewResolver(signer, users)

	// Domain services.
	appointmentSvc := appointment.NewService(appointments, clients)
	sessionEngine := session.NewEngine(database, sessions, sessionVersions, appointments, auditor, draftLimiter)
	paymentSvc := paymentservice.NewService(database, workspaces, appointments, paymentTxs, kv, auditor, m)

	// Retrieval & synthesis pipeline (spec.md §4.5).
	vectors := vector.New(database.DB)
	embedder := embedding.New(cfg.RAG.EmbeddingAPIKey, "")
	llmClient := llm.New(cfg.RAG.LLMAPIKey, cfg.RAG.LLMModel)
	breakers := circuitbreaker.NewPazPazCircuitBreakers(cfg.RAG.BreakerName, cfg.RAG.BreakerThreshold,
		time.Duration(cfg.RAG.BreakerCooldownSec)*time.Second)
	ragAgent := rag.NewAgent(vectors, clients, sessions, embedder, llmClient, kv,
		breakers.CohereChat, auditor, m, cfg.RAG.QueryExpansion, cfg.RAG.CacheTTLSeconds)

	router := httpapi.NewRouter(httpapi.Dependencies{
		Resolver:          resolver,
		MagicLinks:        magicLinkIssuer,
		Signer:            signer,
		Appointments:      appointmentSvc,
		AppointmentRepo:   appointments,
		Sessions:          sessionEngine,
		SessionRepo:       sessions,
		Payments:          paymentSvc,
		PaymentTxRepo:     paymentTxs,
		RAG:               ragAgent,
		Attachments:       attachmentStore,
		AttachmentRepo:    attachments,
		MagicLinkLimiter:  magicLinkLimiter,
		DraftLimiter:      draftLimiter,
		AttachmentLimiter: attachmentLimiter,
		Metrics:           m,
		Audit:             auditor,
		CookieSecure:      cfg.IsProduction(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	go runPurgeLoop(sessionEngine)

	go func() {
		logging.Info("server_starting", logging.Fields{"port": cfg.Server.Port, "env": cfg.Server.Env})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("server_failed", logging.Fields{"error": err})
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logging.Info("server_shutting_down", logging.Fields{})
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logging.Error("server_shutdown_failed", logging.Fields{"error": err})
	}
}

// newCodec builds the versioned encryption codec from hex-encoded key
// material in config (spec.md §4.2 — every known key version stays
// decryptable, only the active one is used for new writes).
func newCodec(cfg config.CryptoConfig) (*cryptoenc.Codec, error) {
	keys := make([]cryptoenc.Key, 0, len(cfg.Keys))
	for _, kv := range cfg.Keys {
		raw, err := hex.DecodeString(kv.KeyHex)
		if err != nil {
			return nil, err
		}
		keys = append(keys, cryptoenc.Key{Version: kv.Version, Raw: raw})
	}
	return cryptoenc.NewCodec(cfg.ActiveVersion, keys)
}

// runPurgeLoop sweeps soft-deleted sessions past their 30-day grace
// period once a day (spec.md §4.3's PurgeExpired operation has no
// caller otherwise).
func runPurgeLoop(engine *session.Engine) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		purged, err := engine.PurgeExpired(context.Background(), time.Now().UTC(), 500)
		if err != nil {
			logging.Error("session_purge_failed", logging.Fields{"error": err})
			continue
		}
		if purged > 0 {
			logging.Info("session_purge_completed", logging.Fields{"count": purged})
		}
	}
}
