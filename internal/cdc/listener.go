package cdc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/rs/zerolog/log"

	"github.com/graphgate-io/graphgate/internal/config"
)

// Listener states.
const (
	StateStopped int32 = iota
	StateStarting
	StateRunning
	StateReconnecting
)

const (
	reconnectBase = time.Second
	reconnectCap  = 30 * time.Second

	standbyTimeout = 10 * time.Second
)

// Listener owns the replication connection: it provisions the publication
// and slot, consumes the pgoutput stream, and publishes decoded events to
// the hub. One listener runs per process; Start and Stop bound its life.
type Listener struct {
	cfg     config.CDCConfig
	connStr string // ordinary connection, for provisioning checks
	replStr string // replication=database connection
	hub     *Hub
	decoder *Decoder
	state   atomic.Int32
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	onEvent     func(*Event) // optional observer hooks
	onReconnect func()
}

// NewListener creates a stopped listener.
func NewListener(cfg config.CDCConfig, connStr, replStr string, hub *Hub) *Listener {
	return &Listener{
		cfg:     cfg,
		connStr: connStr,
		replStr: replStr,
		hub:     hub,
		decoder: NewDecoder(),
	}
}

// OnEvent installs an observer called for every decoded event. Must be set
// before Start.
func (l *Listener) OnEvent(fn func(*Event)) {
	l.onEvent = fn
}

// OnReconnect installs an observer called whenever the replication stream
// fails and the listener schedules a reconnect. Must be set before Start.
func (l *Listener) OnReconnect(fn func()) {
	l.onReconnect = fn
}

// State returns the listener's current state.
func (l *Listener) State() int32 {
	return l.state.Load()
}

// Start launches the replication loop. It returns immediately; connection
// failures are retried inside the loop.
func (l *Listener) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run(runCtx)
	}()
}

// Stop shuts the listener down and waits for the loop to exit.
func (l *Listener) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
	l.state.Store(StateStopped)
	log.Info().Msg("CDC listener stopped")
}

func (l *Listener) run(ctx context.Context) {
	backoff := reconnectBase
	for {
		l.state.Store(StateStarting)

		err := l.streamOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.state.Store(StateReconnecting)
			if l.onReconnect != nil {
				l.onReconnect()
			}
			log.Error().Err(err).Dur("backoff", backoff).Msg("Replication stream failed, reconnecting")
			l.hub.Fail(fmt.Errorf("replication stream interrupted: %w", err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectCap {
				backoff = reconnectCap
			}
			continue
		}
		backoff = reconnectBase
	}
}

// streamOnce provisions the publication and slot, opens the replication
// connection and consumes the stream until an error or shutdown.
func (l *Listener) streamOnce(ctx context.Context) error {
	if err := l.ensureProvisioned(ctx); err != nil {
		return err
	}

	conn, err := pgconn.Connect(ctx, l.replStr)
	if err != nil {
		return fmt.Errorf("opening replication connection: %w", err)
	}
	defer conn.Close(context.Background())

	sys, err := pglogrepl.IdentifySystem(ctx, conn)
	if err != nil {
		return fmt.Errorf("identify system: %w", err)
	}
	log.Info().
		Str("system_id", sys.SystemID).
		Str("xlog_pos", sys.XLogPos.String()).
		Str("slot", l.cfg.SlotName).
		Msg("Starting logical replication")

	// LSN zero starts from the slot's confirmed_flush_lsn.
	err = pglogrepl.StartReplication(ctx, conn, l.cfg.SlotName, 0,
		pglogrepl.StartReplicationOptions{
			PluginArgs: []string{
				"proto_version '1'",
				fmt.Sprintf("publication_names '%s'", l.cfg.PublicationName),
			},
		})
	if err != nil {
		return fmt.Errorf("start replication on slot %q: %w", l.cfg.SlotName, err)
	}

	l.state.Store(StateRunning)
	return l.consume(ctx, conn)
}

func (l *Listener) consume(ctx context.Context, conn *pgconn.PgConn) error {
	var flushed pglogrepl.LSN
	nextStandbyDeadline := time.Now().Add(standbyTimeout)

	for {
		if ctx.Err() != nil {
			// Drain point: report the final position before closing.
			if flushed != 0 {
				_ = pglogrepl.SendStandbyStatusUpdate(context.Background(), conn,
					pglogrepl.StandbyStatusUpdate{
						WALWritePosition: flushed,
						WALFlushPosition: flushed,
						WALApplyPosition: flushed,
					})
			}
			return nil
		}

		if time.Now().After(nextStandbyDeadline) && flushed != 0 {
			err := pglogrepl.SendStandbyStatusUpdate(ctx, conn, pglogrepl.StandbyStatusUpdate{
				WALWritePosition: flushed,
				WALFlushPosition: flushed,
				WALApplyPosition: flushed,
			})
			if err != nil {
				return fmt.Errorf("standby status update: %w", err)
			}
			nextStandbyDeadline = time.Now().Add(standbyTimeout)
		}

		readCtx, cancel := context.WithDeadline(ctx, nextStandbyDeadline)
		rawMsg, err := conn.ReceiveMessage(readCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			return fmt.Errorf("receiving replication message: %w", err)
		}

		if errMsg, ok := rawMsg.(*pgproto3.ErrorResponse); ok {
			return fmt.Errorf("replication error from server: %s", errMsg.Message)
		}

		msg, ok := rawMsg.(*pgproto3.CopyData)
		if !ok {
			continue
		}

		switch msg.Data[0] {
		case pglogrepl.PrimaryKeepaliveMessageByteID:
			pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(msg.Data[1:])
			if err != nil {
				log.Warn().Err(err).Msg("Malformed keepalive message")
				continue
			}
			if pkm.ServerWALEnd > flushed {
				flushed = pkm.ServerWALEnd
			}
			if pkm.ReplyRequested {
				nextStandbyDeadline = time.Time{}
			}

		case pglogrepl.XLogDataByteID:
			xld, err := pglogrepl.ParseXLogData(msg.Data[1:])
			if err != nil {
				log.Warn().Err(err).Msg("Malformed XLogData message")
				continue
			}

			ev, err := l.decoder.Decode(xld)
			if err != nil {
				log.Warn().Err(err).Msg("Undecodable pgoutput message, skipping")
			} else if ev != nil {
				if l.onEvent != nil {
					l.onEvent(ev)
				}
				switch ev.Operation {
				case OpInsert, OpUpdate, OpDelete:
					l.hub.Publish(*ev)
				}
			}

			if xld.ServerWALEnd > flushed {
				flushed = xld.ServerWALEnd
			}
			// Feedback after each processed message lets the server advance
			// the slot.
			err = pglogrepl.SendStandbyStatusUpdate(ctx, conn, pglogrepl.StandbyStatusUpdate{
				WALWritePosition: flushed,
				WALFlushPosition: flushed,
				WALApplyPosition: flushed,
			})
			if err != nil {
				return fmt.Errorf("standby status update: %w", err)
			}
			nextStandbyDeadline = time.Now().Add(standbyTimeout)
		}
	}
}

// ensureProvisioned creates the publication and replication slot when they
// do not exist yet. Transient failures retry with backoff; a definitive
// failure here is fatal for this connection attempt.
func (l *Listener) ensureProvisioned(ctx context.Context) error {
	return retry.Do(
		func() error {
			conn, err := pgx.Connect(ctx, l.connStr)
			if err != nil {
				return fmt.Errorf("connecting for provisioning: %w", err)
			}
			defer conn.Close(context.Background())

			var exists bool
			err = conn.QueryRow(ctx,
				"SELECT EXISTS (SELECT 1 FROM pg_publication WHERE pubname = $1)",
				l.cfg.PublicationName).Scan(&exists)
			if err != nil {
				return fmt.Errorf("checking publication: %w", err)
			}
			if !exists {
				_, err = conn.Exec(ctx, fmt.Sprintf("CREATE PUBLICATION %s FOR ALL TABLES",
					quotePublication(l.cfg.PublicationName)))
				if err != nil {
					return fmt.Errorf("creating publication %q: %w", l.cfg.PublicationName, err)
				}
				log.Info().Str("publication", l.cfg.PublicationName).Msg("Publication created")
			}

			err = conn.QueryRow(ctx,
				"SELECT EXISTS (SELECT 1 FROM pg_replication_slots WHERE slot_name = $1)",
				l.cfg.SlotName).Scan(&exists)
			if err != nil {
				return fmt.Errorf("checking replication slot: %w", err)
			}
			if !exists {
				_, err = conn.Exec(ctx,
					"SELECT pg_create_logical_replication_slot($1, 'pgoutput')", l.cfg.SlotName)
				if err != nil {
					return fmt.Errorf("creating replication slot %q: %w", l.cfg.SlotName, err)
				}
				log.Info().Str("slot", l.cfg.SlotName).Msg("Replication slot created")
			}

			return nil
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

func quotePublication(name string) string {
	out := make([]byte, 0, len(name)+2)
	out = append(out, '"')
	for i := 0; i < len(name); i++ {
		if name[i] == '"' {
			out = append(out, '"', '"')
		} else {
			out = append(out, name[i])
		}
	}
	return string(append(out, '"'))
}
