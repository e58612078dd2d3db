package bootstrap

import (
	"context"
	"fmt"
	"time"

	"food-search-be/internal/config"
	"food-search-be/internal/controller"
	"food-search-be/internal/metrics"
	"food-search-be/internal/pkg/logger"
	"food-search-be/internal/repository/memory"
	"food-search-be/internal/repository/redisstore"
	"food-search-be/internal/service"
	"food-search-be/internal/websocket"
	"food-search-be/pkg/backpressure"
	"food-search-be/pkg/llm"
	"food-search-be/pkg/llm/factory"
	pktNats "food-search-be/pkg/nats"
	"food-search-be/pkg/pipeline"
	"food-search-be/pkg/places"
	"food-search-be/pkg/store"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

const module = "BOOTSTRAP"

type Container struct {
	Logger logger.ILogger

	// Controllers
	SearchController controller.ISearchController
	WebSocketHandler *websocket.Handler

	// Background Services (exposed for main.go to run)
	ConsumerService service.IConsumerService
	WebSocketHub    *websocket.Hub

	// Lifecycle-owned infrastructure
	Admission  *backpressure.Manager
	StateStore store.Store

	closers []func() error
}

func NewContainer(cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.IsProduction())
	c := &Container{Logger: sysLogger}

	// 2. Infrastructure
	rdb := connectRedis(cfg.App.RedisURL, sysLogger)
	if rdb != nil {
		c.closers = append(c.closers, rdb.Close)
	}

	stateStore, backend := newStateStore(cfg, rdb, sysLogger)
	c.StateStore = stateStore

	var relay service.EventRelay
	if natsPub := connectNats(cfg.App.NatsURL, sysLogger); natsPub != nil {
		relay = natsPub
		c.closers = append(c.closers, func() error { natsPub.Close(); return nil })
	}

	// 3. Event Bus
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	c.closers = append(c.closers, pubSub.Close)
	c.ConsumerService = service.NewConsumerService(pubSub, service.LifecycleTopic, relay, sysLogger)

	// 4. External collaborators
	provider, err := factory.NewLLMProvider(cfg.Ai.LLMProvider, cfg.Ai.LLMModel, cfg.Ai.BaseURL, cfg.Ai.APIKey)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	invoker := llm.NewStructuredInvoker(provider, map[llm.Purpose]llm.PurposeConfig{
		llm.PurposeGate:        {Timeout: cfg.Ai.GateTimeout},
		llm.PurposeIntent:      {Timeout: cfg.Ai.IntentTimeout},
		llm.PurposeBaseFilters: {Timeout: cfg.Ai.BaseFiltersTimeout},
		llm.PurposeRouteMapper: {Timeout: cfg.Ai.RouteMapperTimeout},
		llm.PurposeAssistant:   {Timeout: cfg.Ai.AssistantTimeout, Temperature: 0.4},
	})

	searcher := places.NewGoogleSearcher(cfg.Places.GoogleAPIKey, cfg.Places.GoogleBaseURL, cfg.Places.FetchTimeout)
	var geocoder places.Geocoder
	if cfg.Places.GeoapifyAPIKey != "" {
		geocoder = places.NewGeoapifyGeocoder(cfg.Places.GeoapifyAPIKey, cfg.Places.GeoapifyBaseURL, cfg.Places.FetchTimeout, cfg.Places.GeocodeCacheTTL)
	} else {
		sysLogger.Warn(module, "GEOAPIFY_API_KEY not set; landmark searches fall back to text search", nil)
	}

	// 5. Delivery
	wsLogger := logger.NewIsolatedLogger("logs/websocket.log")
	c.WebSocketHub = websocket.NewHub(rdb, wsLogger, websocket.WithObserver(metrics.DeliveryObserver{}))
	c.WebSocketHandler = websocket.NewHandler(
		c.WebSocketHub,
		websocket.NewOwnershipValidator(stateStore),
		websocket.Config{
			Path:           cfg.WebSocket.Path,
			Heartbeat:      cfg.WebSocket.Heartbeat,
			AllowedOrigins: cfg.WebSocket.AllowedOrigins,
			AuthRequired:   cfg.WebSocket.AuthRequired,
			JWTSecret:      cfg.App.JWTSecret,
			SendBuffer:     cfg.WebSocket.SendBuffer,
		},
		wsLogger,
	)

	// 6. Pipeline
	c.Admission = backpressure.NewManager(backpressure.Config{
		MaxConcurrent: cfg.Admission.MaxConcurrent,
		MaxQueueWait:  cfg.Admission.MaxQueueWait,
	}, backpressure.WithObserver(metrics.AdmissionObserver{}))

	orchestrator := pipeline.NewOrchestrator(pipeline.Dependencies{
		Invoker:     invoker,
		Searcher:    searcher,
		Geocoder:    geocoder,
		Store:       stateStore,
		Broadcaster: c.WebSocketHub,
		Events:      service.NewLifecyclePublisher(pubSub, service.LifecycleTopic),
		Observer:    metrics.PipelineObserver{},
		Logger:      sysLogger,
	}, pipeline.Config{
		StateTTL:      cfg.Store.TTL,
		FetchTimeout:  cfg.Places.FetchTimeout,
		MaxResults:    cfg.Places.MaxResults,
		DefaultRadius: cfg.Places.DefaultRadius,
		Region:        cfg.Places.Region,
	})

	// 7. Services & Controllers
	searchService := service.NewSearchService(c.Admission, orchestrator, stateStore, c.WebSocketHub, sysLogger, service.SearchServiceConfig{
		Timeout:       cfg.Pipeline.Timeout,
		ExposeReasons: !cfg.App.IsProduction(),
		StoreBackend:  backend,
	})
	c.SearchController = controller.NewSearchController(searchService, cfg.App.JWTSecret)

	sysLogger.Info(module, "Container ready", map[string]interface{}{
		"stateStore":    backend,
		"llmProvider":   cfg.Ai.LLMProvider,
		"maxConcurrent": cfg.Admission.MaxConcurrent,
		"natsRelay":     relay != nil,
		"redis":         rdb != nil,
	})
	return c, nil
}

// Close shuts the admission controller and releases infrastructure in
// reverse order of creation.
func (c *Container) Close() {
	if c.Admission != nil {
		c.Admission.Shutdown()
	}
	if c.StateStore != nil {
		if err := c.StateStore.Close(); err != nil {
			c.Logger.Warn(module, "State store close failed", map[string]interface{}{"error": err.Error()})
		}
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Warn(module, "Close failed", map[string]interface{}{"error": err.Error()})
		}
	}
	_ = c.Logger.Sync()
}

func connectRedis(url string, log logger.ILogger) *redis.Client {
	if url == "" {
		return nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Warn(module, "Failed to parse Redis URL, using direct Addr", map[string]interface{}{"error": err.Error()})
		opt = &redis.Options{Addr: url}
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn(module, "Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
		_ = rdb.Close()
		return nil
	}
	return rdb
}

func newStateStore(cfg *config.Config, rdb *redis.Client, log logger.ILogger) (store.Store, string) {
	if cfg.Store.Backend == config.StoreRedis {
		if rdb != nil {
			return redisstore.NewRequestStateRepository(rdb, cfg.Store.RedisPrefix, cfg.Store.TTL), config.StoreRedis
		}
		log.Warn(module, "STATE_BACKEND=redis but Redis is unavailable; using memory store", nil)
	}
	return memory.NewRequestStateRepository(cfg.Store.TTL, cfg.Store.CleanupInterval), config.StoreMemory
}

func connectNats(url string, log logger.ILogger) *pktNats.Publisher {
	if url == "" {
		return nil
	}
	pub, err := pktNats.NewPublisher(url)
	if err != nil {
		log.Warn(module, "Failed to connect to NATS Publisher", map[string]interface{}{"error": err.Error()})
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pub.EnsureStream(ctx); err != nil {
		log.Warn(module, "Lifecycle stream not ready", map[string]interface{}{"error": err.Error()})
	}
	return pub
}
