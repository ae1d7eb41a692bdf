package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
)

// listenCmd is a LISTEN/UNLISTEN request executed by the receive loop, the
// sole goroutine permitted to touch the dedicated pgx connection.
type listenCmd struct {
	sql     string
	channel string
	listen  bool
	result  chan error
}

// NotifyListener relays PostgreSQL NOTIFY events to a Hub, letting every
// pod's in-memory subscribers see events published by any other pod.
// Grounded on pkg/events/listener.go's dedicated-connection + command-
// channel + exponential-backoff-reconnect design, trimmed of the
// generation-counter staleness guard (this package never races concurrent
// Subscribe/Unsubscribe on the same channel from multiple goroutines).
type NotifyListener struct {
	dsn string
	hub *Hub

	connMu sync.Mutex
	conn   *pgx.Conn

	channelsMu sync.RWMutex
	channels   map[string]bool

	cmdCh   chan listenCmd
	running atomic.Bool

	cancelLoop context.CancelFunc
	loopDone   chan struct{}

	log *slog.Logger
}

func NewNotifyListener(dsn string, hub *Hub) *NotifyListener {
	return &NotifyListener{
		dsn:      dsn,
		hub:      hub,
		channels: make(map[string]bool),
		cmdCh:    make(chan listenCmd, 16),
		log:      slog.With("component", "events.NotifyListener"),
	}
}

// Start opens the dedicated LISTEN connection and begins the receive loop.
func (l *NotifyListener) Start(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return err
	}
	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()
	l.running.Store(true)

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancelLoop = cancel
	l.loopDone = make(chan struct{})
	go func() {
		defer close(l.loopDone)
		l.receiveLoop(loopCtx)
	}()

	l.log.Info("notify listener started")
	return nil
}

// Subscribe issues LISTEN for channel via the receive loop.
func (l *NotifyListener) Subscribe(ctx context.Context, channel string) error {
	sanitized := pgx.Identifier{channel}.Sanitize()
	return l.submit(ctx, listenCmd{sql: "LISTEN " + sanitized, channel: channel, listen: true})
}

// Unsubscribe issues UNLISTEN for channel.
func (l *NotifyListener) Unsubscribe(ctx context.Context, channel string) error {
	sanitized := pgx.Identifier{channel}.Sanitize()
	return l.submit(ctx, listenCmd{sql: "UNLISTEN " + sanitized, channel: channel})
}

func (l *NotifyListener) submit(ctx context.Context, cmd listenCmd) error {
	if !l.running.Load() {
		return nil
	}
	cmd.result = make(chan error, 1)
	select {
	case l.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *NotifyListener) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		l.processPendingCmds(ctx)

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()
		if conn == nil {
			l.reconnect(ctx)
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		notification, err := conn.WaitForNotification(waitCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if waitCtx.Err() != nil {
				continue
			}
			l.log.Error("notify receive error", "error", err)
			l.reconnect(ctx)
			continue
		}

		var env envelope
		if err := json.Unmarshal([]byte(notification.Payload), &env); err != nil {
			l.log.Warn("failed to unmarshal NOTIFY payload", "channel", notification.Channel, "error", err)
			continue
		}
		l.hub.Broadcast(notification.Channel, env)
	}
}

func (l *NotifyListener) processPendingCmds(ctx context.Context) {
	for {
		select {
		case cmd := <-l.cmdCh:
			l.connMu.Lock()
			conn := l.conn
			l.connMu.Unlock()
			if conn == nil {
				cmd.result <- nil
				continue
			}
			_, err := conn.Exec(ctx, cmd.sql)
			if err == nil {
				l.channelsMu.Lock()
				if cmd.listen {
					l.channels[cmd.channel] = true
				} else {
					delete(l.channels, cmd.channel)
				}
				l.channelsMu.Unlock()
			}
			cmd.result <- err
		default:
			return
		}
	}
}

func (l *NotifyListener) reconnect(ctx context.Context) {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := pgx.Connect(ctx, l.dsn)
		if err != nil {
			l.log.Error("listen reconnect failed", "error", err, "backoff", backoff)
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		l.conn = conn

		l.channelsMu.RLock()
		for ch := range l.channels {
			sanitized := pgx.Identifier{ch}.Sanitize()
			if _, err := conn.Exec(ctx, "LISTEN "+sanitized); err != nil {
				l.log.Error("re-listen failed", "channel", ch, "error", err)
			}
		}
		l.channelsMu.RUnlock()

		l.log.Info("notify listener reconnected")
		return
	}
}

// Stop signals the receive loop to exit and closes the LISTEN connection.
func (l *NotifyListener) Stop(ctx context.Context) {
	l.running.Store(false)
	if l.cancelLoop != nil {
		l.cancelLoop()
	}
	if l.loopDone != nil {
		<-l.loopDone
	}
	l.connMu.Lock()
	defer l.connMu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}
}
