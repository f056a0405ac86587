package idle

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/careportal/careportal/internal/auth"
	"github.com/careportal/careportal/internal/observability"
	"github.com/careportal/careportal/internal/shared"
)

// WatchPath is where browser agents connect, relative to the site root.
const WatchPath = "/api/session/watch"

// StatusPath is fetched by the agent when the watch handshake fails. The API
// guard answers 401 there once the session has expired or been revoked.
const StatusPath = "/api/session/permissions"

// Redirects sent to the agent once its session has ended.
const (
	TimeoutRedirect = "/login?reason=timeout"
	SignOutRedirect = "/login"
)

// Message types exchanged with the browser agent.
const (
	MsgActivity = "activity"
	MsgContinue = "continue"
	MsgFocus    = "focus"
	MsgLogout   = "logout"
	MsgConfig   = "config"
	MsgWarning  = "warning"
	MsgActive   = "active"
)

// Message is one frame on the watch channel.
type Message struct {
	Type        string `json:"type"`
	RemainingMS int64  `json:"remaining_ms,omitempty"`
	IdleMS      int64  `json:"idle_ms,omitempty"`
	WarningMS   int64  `json:"warning_ms,omitempty"`
	Redirect    string `json:"redirect,omitempty"`
}

// Logouter revokes sessions.
type Logouter interface {
	Logout(ctx context.Context, sid string) error
}

// HandlerConfig wires the watch endpoint.
type HandlerConfig struct {
	Budget  time.Duration
	Window  time.Duration
	Store   MarkerStore
	Auth    Logouter
	Clock   clockwork.Clock
	Logger  *slog.Logger
	Audit   shared.AuditSink
	Metrics *observability.Metrics
}

// Handler serves the idle watch websocket. It runs behind the API guard, so
// the request already carries a principal.
type Handler struct {
	cfg      HandlerConfig
	upgrader websocket.Upgrader
}

const (
	readLimit  = 512
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
	writeWait  = 5 * time.Second
)

// NewHandler constructs the watch handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Audit == nil {
		cfg.Audit = shared.NopAuditSink{}
	}
	return &Handler{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// MountAPIRoutes registers the watch endpoint, relative to /api.
func (h *Handler) MountAPIRoutes(r chi.Router) {
	r.Get("/session/watch", h.ServeHTTP)
}

type client struct {
	conn *websocket.Conn
	send chan Message
	done chan struct{}
}

// ServeHTTP upgrades the connection and runs a Watcher until either side
// closes it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.cfg.Logger.Warn("idle watch upgrade", slog.Any("error", err))
		return
	}
	release := h.cfg.Metrics.IdleWatcherOpened()
	defer release()

	c := &client{conn: conn, send: make(chan Message, 8), done: make(chan struct{})}
	ctx := context.WithoutCancel(r.Context())
	meta := shared.SessionEvent{
		UserID:     p.ID,
		Role:       p.Role.String(),
		SessionID:  p.SessionID,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}

	watcher := NewWatcher(Config{
		SessionID: p.SessionID,
		Budget:    h.cfg.Budget,
		Window:    h.cfg.Window,
		Store:     h.cfg.Store,
		Clock:     h.cfg.Clock,
		Logger:    h.cfg.Logger,
		Metrics:   h.cfg.Metrics,
		Logout: func(ctx context.Context, reason LogoutReason) error {
			event := meta
			event.Action = shared.AuditIdleTimeout
			if reason == ReasonSignOut {
				event.Action = shared.AuditLogout
			}
			event.At = h.cfg.Clock.Now().UTC()
			h.cfg.Audit.RecordSessionEvent(ctx, event)
			if h.cfg.Auth == nil {
				return nil
			}
			return h.cfg.Auth.Logout(ctx, p.SessionID)
		},
		OnWarning: func(remaining time.Duration) {
			c.push(Message{Type: MsgWarning, RemainingMS: remaining.Milliseconds()})
		},
		OnActive: func() {
			c.push(Message{Type: MsgActive})
		},
		OnLogout: func(reason LogoutReason) {
			redirect := TimeoutRedirect
			if reason == ReasonSignOut {
				redirect = SignOutRedirect
			}
			c.push(Message{Type: MsgLogout, Redirect: redirect})
		},
	})

	go c.writePump()
	c.push(Message{Type: MsgConfig, IdleMS: h.cfg.Budget.Milliseconds(), WarningMS: h.cfg.Window.Milliseconds()})
	watcher.Start(ctx)
	h.readPump(ctx, c, watcher)
	watcher.Stop()
	close(c.done)
}

func (h *Handler) readPump(ctx context.Context, c *client, watcher *Watcher) {
	defer func() { _ = c.conn.Close() }()
	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case MsgActivity:
			watcher.Activity(ctx)
		case MsgContinue:
			watcher.Continue(ctx)
		case MsgFocus:
			watcher.Focus(ctx)
		case MsgLogout:
			watcher.LogoutNow()
		}
	}
}

// push queues msg for the writer. Messages after close are dropped.
func (c *client) push(msg Message) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
