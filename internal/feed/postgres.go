package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DefaultChannel is the LISTEN/NOTIFY channel (and redis channel) used for
// every topic; the topic travels inside the payload.
const DefaultChannel = "playroom_feed"

const reconnectDelay = time.Second

// Postgres relays notifications through LISTEN/NOTIFY so that every API
// instance sharing the database sees every write.
type Postgres struct {
	*hub
	pool    *pgxpool.Pool
	channel string
	log     *zap.Logger
}

func NewPostgres(pool *pgxpool.Pool, log *zap.Logger) *Postgres {
	return &Postgres{
		hub:     newHub(),
		pool:    pool,
		channel: DefaultChannel,
		log:     log.Named("feed.postgres"),
	}
}

func (p *Postgres) Publish(ctx context.Context, topic, payload string) error {
	body, err := encode(Message{Topic: topic, Payload: payload})
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, "SELECT pg_notify($1, $2)", p.channel, body); err != nil {
		return fmt.Errorf("notify %s: %w", topic, err)
	}
	return nil
}

// Run holds a dedicated connection in LISTEN mode. A dropped connection is
// re-established after a short pause; messages sent meanwhile are lost.
func (p *Postgres) Run(ctx context.Context) error {
	for {
		err := p.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		p.log.Error("listen connection lost", zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (p *Postgres) listen(ctx context.Context) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{p.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	p.log.Info("listening", zap.String("channel", p.channel))

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		msg, err := decode(n.Payload)
		if err != nil {
			p.log.Warn("dropping malformed notification", zap.Error(err))
			continue
		}
		p.dispatch(msg)
	}
}
