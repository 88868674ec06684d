package bridge

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/onit-labs/xmtp-bot/internal/api"
	"github.com/onit-labs/xmtp-bot/internal/bot"
	"github.com/onit-labs/xmtp-bot/internal/chat"
	"github.com/onit-labs/xmtp-bot/internal/config"
	"github.com/onit-labs/xmtp-bot/internal/connection"
	"github.com/onit-labs/xmtp-bot/internal/database"
	"github.com/onit-labs/xmtp-bot/internal/market"
	"github.com/onit-labs/xmtp-bot/internal/metrics"
	"github.com/onit-labs/xmtp-bot/internal/poller"
	"github.com/onit-labs/xmtp-bot/internal/store"
	"github.com/onit-labs/xmtp-bot/internal/supervisor"
)

// Stream names used in logs, metrics and /health.
const (
	StreamMessages      = "messages"
	StreamConversations = "conversations"
)

// processedRetention is how long processed-message claims are kept in Postgres.
const processedRetention = 7 * 24 * time.Hour

// Bridge is one running bridge instance.
type Bridge struct {
	cfg    *config.BridgeConfig
	clock  clock.Clock
	logger *slog.Logger

	db       *pgxpool.Pool // nil without a database
	store    store.Store
	gateway  *chat.Client
	pool     *connection.Pool
	catalog  *market.Catalog
	poller   *poller.Poller
	agent    *bot.Agent
	metrics  *metrics.Metrics
	server   *metrics.Server
	messages *supervisor.Supervisor[chat.Message]
	convs    *supervisor.Supervisor[chat.Conversation]

	identityMu sync.Mutex
	identity   chat.Identity
}

// New builds a bridge. It connects to the database when one is configured.
func New(ctx context.Context, cfg *config.BridgeConfig, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		cfg:     cfg,
		clock:   clock.New(),
		logger:  logger.With("instance_id", cfg.Instance.ID),
		metrics: metrics.New(),
	}

	if err := b.openStore(ctx); err != nil {
		return nil, err
	}

	gateway, err := chat.NewClient(cfg.XMTP.GatewayURL, cfg.XMTP.APIKey, cfg.XMTP.Env,
		chat.WithTimeout(cfg.XMTP.Timeout),
		chat.WithLogger(b.logger),
	)
	if err != nil {
		b.closeStore(ctx)
		return nil, err
	}
	b.gateway = gateway

	b.pool = connection.NewPool(poolConfig(cfg.Bot), b.logger,
		connection.WithClock(b.clock),
		connection.WithObserver(b.metrics),
	)

	onit := api.NewClient(cfg.Onit.APIURL, cfg.Onit.APIKey,
		api.WithLogger(b.logger),
		api.WithTimeout(cfg.Onit.Timeout),
		api.WithRetries(cfg.Onit.MaxRetries, time.Second),
		api.WithRateLimit(cfg.Onit.RateLimit, cfg.Onit.RateBurst),
		api.WithPageSize(cfg.Poller.PageSize),
	)
	b.catalog = market.NewCatalog(market.DefaultConfig(), onit, b.clock, b.logger)
	b.poller = poller.New(poller.Config{
		Interval:    cfg.Poller.Interval,
		Concurrency: cfg.Poller.Concurrency,
		Timeout:     cfg.Onit.Timeout,
		Feeds:       cfg.Poller.Feeds,
	}, b.catalog, b.metrics, b.logger)

	b.agent = bot.New(bot.Config{
		SiteURL:       cfg.Onit.SiteURL,
		WelcomeCutoff: cfg.XMTP.WelcomeCutoff,
	}, bot.Deps{
		Chat:     gateway,
		Bot:      b.pool,
		Markets:  b.catalog,
		Store:    b.store,
		Clock:    b.clock,
		Observer: b.metrics,
	}, b.logger)

	tracker := trackerConfig(cfg.Streams)
	b.messages = supervisor.New(supervisor.Config{
		Name:     StreamMessages,
		Tracker:  tracker,
		Resync:   gateway.Sync,
		Clock:    b.clock,
		Observer: b.metrics,
	}, supervisor.FromSeq(b.openMessages), b.agent.HandleMessage, b.logger)

	b.convs = supervisor.New(supervisor.Config{
		Name:     StreamConversations,
		Tracker:  tracker,
		Resync:   gateway.Sync,
		Clock:    b.clock,
		Observer: b.metrics,
	}, supervisor.FromCallbacks(gateway.SubscribeConversations), b.agent.HandleConversation, b.logger)

	b.metrics.RegisterPool(b.pool.Stats)
	if pg, ok := b.store.(*store.Postgres); ok {
		b.metrics.RegisterGauge("store", "exchanges_inserted", "Exchanges written to the database",
			func() float64 { return float64(pg.WriterStats().Inserts) })
		b.metrics.RegisterGauge("store", "exchanges_dropped", "Exchanges dropped because the write queue was full",
			func() float64 { return float64(pg.WriterStats().Dropped) })
	}

	b.server = metrics.NewServer(fmt.Sprintf(":%d", cfg.Metrics.Port), cfg.Metrics.Path, b.metrics, b.sources(), b.logger)
	return b, nil
}

func (b *Bridge) openStore(ctx context.Context) error {
	db, err := database.Open(ctx, b.cfg.Database)
	if err != nil {
		return err
	}
	if db == nil {
		b.logger.Info("no database configured, keeping state in memory")
		b.store = store.NewMemory(b.cfg.Database.HistorySize)
		return nil
	}

	if err := store.Migrate(ctx, db); err != nil {
		db.Close()
		return err
	}
	b.db = db
	b.store = store.NewPostgres(context.WithoutCancel(ctx), db, store.WriterConfig{
		BatchSize:     b.cfg.Database.BatchSize,
		FlushInterval: b.cfg.Database.FlushInterval,
		QueueSize:     b.cfg.Database.HistorySize,
	}, b.clock, b.logger)

	b.logger.Info("database connected",
		"host", b.cfg.Database.Postgres.Host,
		"database", b.cfg.Database.Postgres.Name,
	)
	return nil
}

func (b *Bridge) closeStore(ctx context.Context) {
	if err := b.store.Close(ctx); err != nil {
		b.logger.Warn("failed to flush store", "error", err)
	}
	if b.db != nil {
		b.db.Close()
	}
}

// openMessages resolves the agent identity on first use, then opens the
// message stream. Both steps are retried by the supervisor.
func (b *Bridge) openMessages(ctx context.Context) (iter.Seq2[chat.Message, error], error) {
	if _, err := b.ensureIdentity(ctx); err != nil {
		return nil, err
	}
	return b.gateway.StreamMessages(ctx)
}

func (b *Bridge) ensureIdentity(ctx context.Context) (chat.Identity, error) {
	b.identityMu.Lock()
	defer b.identityMu.Unlock()

	if b.identity.InboxID != "" {
		return b.identity, nil
	}
	id, err := b.gateway.Identity(ctx)
	if err != nil {
		return chat.Identity{}, fmt.Errorf("resolve agent identity: %w", err)
	}
	b.identity = id
	b.agent.SetInboxID(id.InboxID)
	b.logger.Info("agent identity resolved", "inbox_id", id.InboxID, "address", id.Address, "env", id.Env)
	return id, nil
}

// Run starts every component and blocks until ctx is cancelled or the
// monitoring server fails. Shutdown always closes the pool.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.gateway.Sync(ctx); err != nil {
		b.logger.Warn("initial conversation sync failed", "error", err)
	}

	if err := b.pool.Start(ctx); err != nil {
		b.closeStore(context.WithoutCancel(ctx))
		return fmt.Errorf("start pool: %w", err)
	}
	if err := b.poller.Start(ctx); err != nil {
		b.pool.Shutdown(context.WithoutCancel(ctx))
		b.closeStore(context.WithoutCancel(ctx))
		return fmt.Errorf("start poller: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(b.messages.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(b.convs.Run(gctx)) })
	g.Go(func() error { return b.server.Run(gctx) })
	if pg, ok := b.store.(*store.Postgres); ok {
		g.Go(func() error { return b.pruneLoop(gctx, pg) })
	}

	b.logger.Info("bridge running",
		"gateway", b.cfg.XMTP.GatewayURL,
		"bot_url_template", b.cfg.Bot.URLTemplate,
		"metrics_port", b.cfg.Metrics.Port,
	)

	err := g.Wait()
	b.shutdown()
	return err
}

func (b *Bridge) shutdown() {
	b.logger.Info("shutting down bridge")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.poller.Stop(ctx); err != nil {
		b.logger.Warn("poller stop failed", "error", err)
	}
	if err := b.pool.Shutdown(ctx); err != nil {
		b.logger.Warn("pool shutdown failed", "error", err)
	}
	b.closeStore(ctx)

	b.logger.Info("bridge stopped")
}

func (b *Bridge) pruneLoop(ctx context.Context, pg *store.Postgres) error {
	ticker := b.clock.Ticker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := pg.PruneProcessed(ctx, b.clock.Now().Add(-processedRetention))
			if err != nil {
				b.logger.Warn("prune processed messages failed", "error", err)
				continue
			}
			b.logger.Debug("pruned processed messages", "count", n)
		}
	}
}

// Streams returns the status of both supervised streams.
func (b *Bridge) Streams() []supervisor.Status {
	return []supervisor.Status{b.messages.Status(), b.convs.Status()}
}

func (b *Bridge) sources() metrics.Sources {
	src := metrics.Sources{
		Pool:      b.pool.Stats,
		Streams:   b.Streams,
		Feeds:     b.catalog.Stats,
		Exchanges: b.store.RecentExchanges,
	}
	if b.db != nil {
		src.Ping = b.db.Ping
	}
	return src
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
