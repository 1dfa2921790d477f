// Command executor runs the Sim Studio workflow execution service: the
// graph interpreter wired to its Persistence Adapter, Tool/Provider
// Registries, Event Publisher, and Rate Limiter, fronted by the
// POST /execute/{workflowId} HTTP boundary. Grounded on the teacher's
// cmd/workflow-runner/main.go wiring sequence (load config, build logger,
// construct collaborators, start, wait for signal, shut down), adapted
// from the teacher's bootstrap.Setup/Components indirection into a flat
// sequence since this service has a narrower, fixed set of collaborators.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"sim.studio/executor/internal/clients"
	"sim.studio/executor/internal/config"
	"sim.studio/executor/internal/engine/orchestrator"
	"sim.studio/executor/internal/httpapi"
	httpmw "sim.studio/executor/internal/httpapi/middleware"
	"sim.studio/executor/internal/obslog"
	"sim.studio/executor/internal/persistence/postgres"
	"sim.studio/executor/internal/ratelimit"
	"sim.studio/executor/internal/server"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load("executor")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := obslog.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	log.Info("executor starting", "environment", cfg.Service.Environment)

	store, err := postgres.New(ctx, postgres.Config{
		DatabaseURL:     cfg.DatabaseURL(),
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxLifetime,
		MaxConnIdleTime: cfg.Database.MaxIdleTime,
		EncryptionKey:   cfg.Security.EnvironmentEncryptionKey,
	}, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("failed to ping redis, rate limiter will use local fallback", "error", err)
			redisClient = nil
		} else {
			log.Info("connected to redis")
		}
	}
	limiter := ratelimit.New(redisClient, log)

	httpClient := &http.Client{Timeout: cfg.Clients.RequestTimeout}

	endpoints := make(map[string]clients.ProviderEndpoint, len(cfg.Providers.Endpoints))
	for name, ep := range cfg.Providers.Endpoints {
		endpoints[name] = clients.ProviderEndpoint{BaseURL: ep.BaseURL, APIKey: ep.APIKey}
	}
	providers := clients.NewProviderRegistry(httpClient, log, endpoints)
	tools := clients.NewToolRegistry(httpClient, log)
	events := clients.NewHTTPEventPublisher(httpClient, log, cfg.Clients.EventsBaseURL)

	eng, err := orchestrator.New(orchestrator.Opts{
		Tools:           tools,
		Providers:       providers,
		Events:          events,
		Loader:          store,
		Logger:          log,
		ModelToProvider: modelToProvider,
	})
	if err != nil {
		log.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	router := httpapi.New(httpapi.Deps{
		Engine:  eng,
		Store:   store,
		Limiter: limiter,
		Plans:   freePlanResolver{},
		APIKeys: staticAPIKeyVerifier(cfg.Clients.InternalService),
	})

	srv := server.New("executor", cfg.Service.Port, router, log)
	if err := srv.Start(); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}

	log.Info("executor shut down gracefully")
}

// modelToProvider maps a model name to the provider registry key by
// prefix: "claude*" goes to "anthropic", every other model to "openai".
func modelToProvider(model string) string {
	switch {
	case strings.HasPrefix(model, "claude"):
		return "anthropic"
	default:
		return "openai"
	}
}

// freePlanResolver is the default PlanResolver until a billing/accounts
// collaborator is wired in; every caller is treated as spec §4.8's lowest
// plan tier.
type freePlanResolver struct{}

func (freePlanResolver) ResolvePlan(string) ratelimit.Plan { return ratelimit.PlanFree }

// staticAPIKeyVerifier accepts exactly the configured internal-service
// secret as a single valid API key, a minimal stand-in for the
// accounts/API-key-management collaborator spec.md places out of scope.
// An empty secret accepts no keys; since main wires no SessionVerifier,
// every /api/v1 request is then rejected with 401.
type staticAPIKeyVerifier string

func (s staticAPIKeyVerifier) VerifyAPIKey(key string) (string, bool) {
	if string(s) == "" || key != string(s) {
		return "", false
	}
	return "service", true
}

var _ httpmw.APIKeyVerifier = staticAPIKeyVerifier("")
