package feed

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

// DefaultChannel is the NOTIFY channel used for conversation changes.
const DefaultChannel = "conversation_changed"

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type listenConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Release()
}

type poolConn struct {
	*pgxpool.Conn
}

func (c poolConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	return c.Conn.Conn().WaitForNotification(ctx)
}

// PGFeed is a Feed spanning server instances: Publish issues NOTIFY and Run
// keeps a dedicated connection LISTENing, fanning signals out to a local
// Broker.
type PGFeed struct {
	exec    execer
	acquire func(ctx context.Context) (listenConn, error)
	broker  *Broker
	channel string
	log     logging.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewPGFeed(pool *pgxpool.Pool, log logging.Logger) *PGFeed {
	return &PGFeed{
		exec: pool,
		acquire: func(ctx context.Context) (listenConn, error) {
			c, err := pool.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			return poolConn{c}, nil
		},
		broker:     NewBroker(),
		channel:    DefaultChannel,
		log:        log.With("module", "feed"),
		minBackoff: 200 * time.Millisecond,
		maxBackoff: 10 * time.Second,
	}
}

func (f *PGFeed) Publish(ctx context.Context, conversationID string) error {
	_, err := f.exec.Exec(ctx, `SELECT pg_notify($1, $2)`, f.channel, conversationID)
	return err
}

func (f *PGFeed) Subscribe(conversationID string) (<-chan struct{}, func()) {
	return f.broker.Subscribe(conversationID)
}

func (f *PGFeed) newBackoff() retry.Backoff {
	return retry.WithCappedDuration(f.maxBackoff, retry.NewExponential(f.minBackoff))
}

// Run listens until ctx is done, reconnecting with capped exponential
// backoff. After every (re)connect all subscribers are signalled once so
// nothing sent while disconnected is missed.
func (f *PGFeed) Run(ctx context.Context) error {
	b := f.newBackoff()
	for {
		connected, err := f.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			b = f.newBackoff()
		}

		delay, _ := b.Next()
		f.log.Warn(ctx, "feed listener disconnected", "error", err, "retry_in", delay)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (f *PGFeed) listen(ctx context.Context) (bool, error) {
	conn, err := f.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
		return false, err
	}
	f.log.Info(ctx, "feed listener connected", "channel", f.channel)
	f.broker.PublishAll()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return true, err
		}
		if n == nil {
			return true, errors.New("empty notification")
		}
		if n.Channel == f.channel {
			_ = f.broker.Publish(ctx, n.Payload)
		}
	}
}
