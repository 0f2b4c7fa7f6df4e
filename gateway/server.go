package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ethgate-dev/ethgate/internal/logctx"
	"github.com/ethgate-dev/ethgate/internal/ratelimit"
	"github.com/ethgate-dev/ethgate/jsonrpc"
	"github.com/ethgate-dev/ethgate/origins"
	"github.com/ethgate-dev/ethgate/provider"
	"github.com/ethgate-dev/ethgate/sessions"
	"github.com/ethgate-dev/ethgate/trust"
)

var _ http.Handler = (*Server)(nil)

const (
	transportWebsocket = "websocket"
	transportHTTP      = "http"

	// wsWriteWait is the time allowed to write a frame to a client.
	wsWriteWait = 10 * time.Second

	// wsPongWait is the time allowed to wait for the next client pong.
	wsPongWait = 30 * time.Second

	// wsPingPeriod is the ping cadence. Must be less than wsPongWait.
	wsPingPeriod = (wsPongWait * 9) / 10

	// wsReadLimit bounds a single inbound frame.
	wsReadLimit = 1 << 20

	// unsubscribeTimeout bounds the executor round trips that release
	// subscriptions orphaned by a closed connection.
	unsubscribeTimeout = 10 * time.Second
)

// MethodSummon asks the wallet front-end to come to the foreground.
// Only the extension sentinel identity can invoke it; it is answered
// with no response frame.
const MethodSummon = "ethgate_summon"

// SummonFunc handles the wallet-summon action.
type SummonFunc func(ctx context.Context)

// Config wires the gateway's collaborators. Executor, Origins, and
// Trust are required; everything else has a working zero value.
type Config struct {
	// Executor forwards requests upstream and emits push events.
	Executor provider.Executor

	// Origins attaches identities to payloads and resolves per-origin
	// chain selection.
	Origins origins.Store

	// Registry is the extension allow-list. Nil rejects all extension
	// traffic.
	Registry origins.Registry

	// Trust gates the protected-method surface.
	Trust *trust.Gate

	// Summon handles the wallet-summon action. Nil ignores it.
	Summon SummonFunc

	// SessionTTL overrides the default 60s sliding idle window.
	SessionTTL time.Duration

	// RateLimitRPS and RateLimitBurst enable per-identity request
	// limiting when both are positive. Disabled by default.
	RateLimitRPS   float64
	RateLimitBurst int

	// MetricsRegisterer enables Prometheus instrumentation when set.
	MetricsRegisterer prometheus.Registerer

	// LogHandler receives the gateway's logs. Nil discards them.
	LogHandler slog.Handler
}

// Server is the gateway's connection-accept surface. It serves
// websocket upgrades and single-shot HTTP POSTs from the same handler.
type Server struct {
	log      *slog.Logger
	executor provider.Executor
	origins  origins.Store
	resolver *origins.Resolver
	trust    *trust.Gate
	summon   SummonFunc
	tracker  *sessions.Tracker
	router   *subscriptionRouter
	limiter  *ratelimit.MapLimiter
	metrics  *metrics
	upgrader websocket.Upgrader

	pushOnce sync.Once
}

// New validates cfg and builds the gateway.
func New(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Origins == nil {
		return nil, fmt.Errorf("origin store is required")
	}
	if cfg.Trust == nil {
		return nil, fmt.Errorf("trust gate is required")
	}

	logHandler := cfg.LogHandler
	if logHandler == nil {
		logHandler = slog.NewTextHandler(io.Discard, nil)
	}
	log := slog.New(logctx.Handler{Handler: logHandler})

	s := &Server{
		log:      log,
		executor: cfg.Executor,
		origins:  cfg.Origins,
		resolver: origins.NewResolver(cfg.Registry),
		trust:    cfg.Trust,
		summon:   cfg.Summon,
		router:   newSubscriptionRouter(),
		limiter:  ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst, 0),
		metrics:  newMetrics(cfg.MetricsRegisterer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced per message by identity
			// resolution and the trust gate, not at upgrade time.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	s.tracker = sessions.NewTracker(s.endSession,
		sessions.WithIdleTTL(cfg.SessionTTL),
		sessions.WithLogger(log),
	)

	return s, nil
}

// Run installs the process-lifetime push handler and blocks until ctx
// ends. The handler is registered exactly once across calls.
func (s *Server) Run(ctx context.Context) error {
	s.pushOnce.Do(func() {
		s.executor.OnPush(s.handlePush)
	})

	<-ctx.Done()
	s.tracker.Stop()
	return ctx.Err()
}

// handlePush fans one executor notification out to the connection that
// owns its subscription id. Unroutable pushes are dropped.
func (s *Server) handlePush(raw json.RawMessage) {
	subID, ok := jsonrpc.PushSubscription(raw)
	if !ok {
		s.log.Debug("dropping push without subscription id")
		s.metrics.push(outcomeDropped)
		return
	}

	if !s.router.routePush(subID, raw) {
		s.log.Debug("dropping push for unowned subscription", slog.String("subscription", subID))
		s.metrics.push(outcomeDropped)
		return
	}
	s.metrics.push(outcomeRouted)
}

// endSession reports an idle origin to the origin store. Runs on the
// session tracker's timer goroutine.
func (s *Server) endSession(identity string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.origins.EndSession(ctx, identity); err != nil {
		s.log.ErrorContext(ctx, "failed to end idle session",
			slog.String("origin", identity),
			slog.String("err", err.Error()))
		return
	}
	s.metrics.sessionEnded()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.serveWebsocket(w, r)
		return
	}
	if r.Method == http.MethodPost {
		s.servePost(w, r)
		return
	}

	writeJSONError(w, http.StatusMethodNotAllowed, "websocket upgrade or POST required")
}

func connMetaFromRequest(r *http.Request) origins.ConnMeta {
	meta := origins.ConnMeta{RawOrigin: r.Header.Get("Origin")}
	if ext, ok := origins.ExtensionFromRequest(r); ok {
		meta.Extension = ext
	}
	return meta
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	meta := connMetaFromRequest(r)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP-level error.
		s.log.DebugContext(r.Context(), "websocket upgrade failed", slog.String("err", err.Error()))
		return
	}

	c := newConn(transportWebsocket, meta, func(data []byte) error {
		_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return ws.WriteMessage(websocket.TextMessage, data)
	})

	// The connection outlives the upgrade request's cancellation.
	ctx := logctx.WithConnData(context.WithoutCancel(r.Context()), &logctx.ConnData{
		ConnID:     c.id,
		Origin:     meta.RawOrigin,
		RemoteAddr: r.RemoteAddr,
		Transport:  transportWebsocket,
	})

	s.metrics.connOpened()
	s.log.InfoContext(ctx, "client connected")

	s.readLoop(ctx, c, ws)
}

// readLoop reads frames until the peer goes away. Parsing happens
// inline; each parsed message is dispatched on its own goroutine so a
// slow executor round trip never blocks the connection's other
// messages.
func (s *Server) readLoop(ctx context.Context, c *conn, ws *websocket.Conn) {
	defer func() {
		ws.Close()
		s.closeConn(ctx, c)
	}()

	ws.SetReadLimit(wsReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go pingLoop(ws, stop)

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.log.DebugContext(ctx, "websocket closed unexpectedly", slog.String("err", err.Error()))
			}
			return
		}

		p, err := jsonrpc.ParsePayload(raw)
		if err != nil {
			s.log.DebugContext(ctx, "dropping malformed frame", slog.String("err", err.Error()))
			continue
		}

		go s.dispatch(ctx, c, p)
	}
}

func pingLoop(ws *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// closeConn runs once per persistent connection. It closes the sink,
// removes every subscription the connection owned, and releases each
// one upstream.
func (s *Server) closeConn(ctx context.Context, c *conn) {
	c.close()
	s.metrics.connClosed()

	removed := s.router.removeConn(c)
	s.metrics.subscriptionRemoved(len(removed))
	for subID, sub := range removed {
		go s.unsubscribeUpstream(ctx, subID, sub)
	}

	s.log.InfoContext(ctx, "client disconnected", slog.Int("subscriptions_released", len(removed)))
}

// unsubscribeUpstream releases one orphaned subscription, tagged with
// the identity and chain that created it. The response is discarded.
func (s *Server) unsubscribeUpstream(ctx context.Context, subID string, sub subscription) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unsubscribeTimeout)
	defer cancel()

	params, err := json.Marshal([]string{subID})
	if err != nil {
		return
	}

	req := &jsonrpc.Payload{
		JSONRPCVersion: jsonrpc.ProtocolVersion,
		Method:         methodUnsubscribe,
		Params:         params,
		ID:             jsonrpc.NewRequestID(uuid.NewString()),
		ChainID:        sub.chainID,
		Origin:         sub.identity,
	}

	if _, err := s.executor.Forward(ctx, req); err != nil {
		s.log.WarnContext(ctx, "failed to release orphaned subscription",
			slog.String("subscription", subID),
			slog.String("err", err.Error()))
	}
}
