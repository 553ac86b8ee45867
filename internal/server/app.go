// Package server wires configuration, storage, services and the gRPC
// transport together and runs them until shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/ratelimit"
	"github.com/dmitrijs2005/gophchat/internal/server/auth"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/feed"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophchat/internal/server/services"
	"github.com/dmitrijs2005/gophchat/internal/server/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/gophchat/internal/server/grpc"
)

// rateLimitTTL is how long an idle caller's bucket is kept.
const rateLimitTTL = 10 * time.Minute

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	pool   *pgxpool.Pool
	// listener is set when notifications travel through PostgreSQL
	listener *feed.PGFeed
	server   *gs.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(c.LogLevel))

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	km, err := cryptox.NewKeyManager(c.EncryptionSecret)
	if err != nil {
		return nil, err
	}
	codec, err := cryptox.NewCodecFromManager(km)
	if err != nil {
		return nil, fmt.Errorf("codec init error: %w", err)
	}

	verifier, err := auth.NewVerifier(c.IdentitySecret)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		app.close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	store, err := storage.NewS3Storage(ctx, c)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	var f feed.Feed
	switch c.FeedBackend {
	case config.FeedMemory:
		f = feed.NewBroker()
	default:
		pool, err := pgxpool.New(ctx, c.DatabaseDSN)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("feed pool error: %w", err)
		}
		app.pool = pool
		app.listener = feed.NewPGFeed(pool, logger)
		f = app.listener
	}

	app.server = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, verifier,
		ratelimit.New(c.RateLimitRPS, c.RateLimitBurst, rateLimitTTL),
		gs.Services{
			Users:         services.NewUserService(db, rm, c),
			Friendships:   services.NewFriendshipService(db, rm, logger, c),
			Conversations: services.NewConversationService(db, rm, codec, c),
			Messages:      services.NewMessageService(db, rm, codec, f, store, logger, c),
			Presence:      services.NewPresenceService(db, rm, c),
			Attachments:   services.NewAttachmentService(db, rm, store, c),
		})

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until a termination signal arrives or a component fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "feed", app.config.FeedBackend)

	app.initSignalHandler(cancelFunc)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.server.Run(ctx)
	})

	if app.listener != nil {
		g.Go(func() error {
			return app.listener.Run(ctx)
		})
	}

	err := g.Wait()
	app.close()

	if err != nil {
		app.logger.Error(ctx, "app stopped with error", "error", err)
		return err
	}
	app.logger.Info(ctx, "app stopped")
	return nil
}

func (app *App) close() {
	if app.pool != nil {
		app.pool.Close()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Warn(context.Background(), "db close error", "error", err)
		}
	}
}
