package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/cuppid-coder/connect/internal/gateway/middleware"
	"github.com/cuppid-coder/connect/internal/presence"
	"github.com/cuppid-coder/connect/pkg/config"
	"github.com/cuppid-coder/connect/pkg/transport"
)

// App wires the gateway behind an HTTP server exposing the /ws upgrade
// endpoint.
type App struct {
	logger  *slog.Logger
	gateway *Gateway
	manager *presence.Manager
	http    *http.Server
	wg      sync.WaitGroup
	config  *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, gw *Gateway, manager *presence.Manager, authenticator middleware.HandshakeAuthenticator) *App {
	app := &App{
		logger:  logger,
		gateway: gw,
		manager: manager,
		config:  cfg,
		ctx:     rootCtx,
	}

	mux := http.NewServeMux()
	upgradeHandler := http.HandlerFunc(app.upgradeHandler)
	mux.Handle("/ws",
		middleware.Chain(upgradeHandler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			middleware.NewAuthMiddleware(logger, authenticator),
			middleware.NewDuplicateLoginLimiter(logger, manager.IsOnline, cfg.Server.DuplicateLogin),
		),
	)

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}
	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

// upgradeHandler runs after the middleware chain, so the request carries
// an authenticated identity by the time the transport is accepted.
func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, ok := middleware.ReqMetadataFrom(r.Context())
	if !ok || reqMeta.User.ID == "" {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	user := reqMeta.User
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", user.ID),
	)

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
		a.logger,
	)
	// The closures bind the authenticated identity to every event this
	// connection produces.
	conn.SetOnMessageHandler(func(ctx context.Context, connID uuid.UUID, msg []byte) {
		a.gateway.HandleMessage(ctx, user, connID, msg)
	})
	conn.SetOnCloseHandler(func(connID uuid.UUID, err error) {
		connLogger.Info("Connection closed, running disconnect sequence", slog.String("connID", connID.String()))
		a.gateway.Disconnect(user.ID, connID)
	})

	a.gateway.Connect(user, conn)
	conn.Run()
	<-conn.Done()
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
	for _, conn := range a.manager.AllConns() {
		conn.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
