package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Shadowcake59/ChatVerse/internal/broadcast"
	"github.com/Shadowcake59/ChatVerse/internal/identity"
	"github.com/Shadowcake59/ChatVerse/internal/presence"
	"github.com/Shadowcake59/ChatVerse/internal/protocol"
	"github.com/Shadowcake59/ChatVerse/internal/server/middleware"
	"github.com/Shadowcake59/ChatVerse/internal/store"
	"github.com/Shadowcake59/ChatVerse/pkg/chat"
	"github.com/Shadowcake59/ChatVerse/pkg/chat/registry"
	"github.com/Shadowcake59/ChatVerse/pkg/chat/wordfilter"
	"github.com/Shadowcake59/ChatVerse/pkg/config"
	"github.com/Shadowcake59/ChatVerse/pkg/transport"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Stores bundles the external persistence ports the core writes through.
type Stores struct {
	Messages store.MessageStore
	Presence store.PresenceMirror
}

type App struct {
	logger      *slog.Logger
	registry    chat.Registry
	broadcaster *broadcast.Broadcaster
	presence    *presence.Tracker
	sessionDeps protocol.Deps
	wg          sync.WaitGroup
	http        *http.Server
	config      *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, stores Stores, resolver identity.Resolver) *App {
	reg := registry.NewInMemory(logger)
	bc := broadcast.New(logger, reg)
	tracker := presence.NewTracker(logger, reg, bc, stores.Presence)

	app := &App{
		logger:      logger,
		registry:    reg,
		broadcaster: bc,
		presence:    tracker,
		config:      cfg,
		ctx:         rootCtx,
		sessionDeps: protocol.Deps{
			Logger:           logger,
			Registry:         reg,
			Broadcaster:      bc,
			Presence:         tracker,
			Messages:         stores.Messages,
			Mirror:           stores.Presence,
			Resolver:         resolver,
			Filter:           wordfilter.New(cfg.Chat.BlockedWords),
			MaxMessageLength: cfg.Chat.MaxMessageLength,
			RateLimitBurst:   cfg.Chat.RateLimit.Burst,
			RateLimitRefill:  cfg.Chat.RateLimit.RefillInterval,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Create a cycler function that closes over the registry and logger.
	connCycler := func(ipAddr string) {
		conns := reg.Connections()
		var oldest *chat.Connection
		for _, c := range conns {
			if c.IPAddress != ipAddr {
				continue
			}
			if oldest == nil || c.CreatedAt.Before(oldest.CreatedAt) {
				oldest = c
			}
		}
		if oldest != nil {
			logger.Info("Cycling connection: closing oldest",
				slog.String("ip", ipAddr),
				slog.String("connID", oldest.ID.String()),
			)
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	upgradeHandler := http.HandlerFunc(app.upgradeHandler)
	mux.Handle("/ws",
		middleware.Chain(upgradeHandler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewConnectionLimiter(
				logger,
				reg.ConnectionCountForIP,
				connCycler,
				app.config.Server.ConnectionLimit,
			),
		),
	)

	app.http = &http.Server{Addr: app.config.Server.Address, Handler: mux, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app
}

func (a *App) Run() error {
	go a.runJanitor()

	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(slog.String("remoteAddr", reqMeta.IP))

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		nil,
		nil,
		a.logger,
	)

	if _, err := a.registry.Register(conn, reqMeta.IP); err != nil {
		connLogger.Error("Failed to register connection", slog.Any("error", err))
		conn.Close(err)
		return
	}

	session := protocol.NewSession(a.sessionDeps, conn)
	conn.SetOnMessageHandler(session.HandleFrame)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		session.HandleClose(id, err)
	})

	connLogger.Info("Connection established, awaiting authenticate")
	conn.Run()
	<-conn.Done()
}

// runJanitor periodically expires stale typing flags and prunes empty
// rooms, going through the same registry operations as interactive traffic.
func (a *App) runJanitor() {
	interval := a.config.Chat.JanitorInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.sweepTyping()
			if pruned := a.registry.PruneEmptyRooms(); pruned > 0 {
				a.logger.Debug("Pruned idle rooms", slog.Int("count", pruned))
			}
		}
	}
}

func (a *App) sweepTyping() {
	ttl := a.config.Chat.TypingTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	for _, expiry := range a.registry.ExpireTyping(ttl) {
		a.broadcaster.ToRoom(expiry.RoomID, protocol.UserTypingEvent(expiry.RoomID, expiry.UserID, false), uuid.Nil)
	}
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, conn := range a.registry.Connections() {
		conn.Transport.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
