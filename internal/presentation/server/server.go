package server

import (
	"context"
	"net/http"
	"strings"

	"parley/backend/internal/application/hub"
	"parley/backend/internal/application/presence"
	"parley/backend/internal/application/session"
	"parley/backend/internal/auth"
	"parley/backend/internal/infrastructure/postgres"
	redisrepo "parley/backend/internal/infrastructure/redis"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WsServer struct {
	Srv *http.Server

	upgrader *websocket.Upgrader
	hub      *hub.Hub
	engine   *presence.Engine
	store    *redisrepo.PresenceStore
	messages *postgres.MessageRepo
	verifier *auth.Verifier
	log      *zap.Logger
}

func NewWsServer(
	h *hub.Hub,
	engine *presence.Engine,
	store *redisrepo.PresenceStore,
	messages *postgres.MessageRepo,
	verifier *auth.Verifier,
	addr string,
	allowedOrigins []string,
	log *zap.Logger,
) *WsServer {
	mux := http.NewServeMux()
	s := &WsServer{
		Srv:      &http.Server{Addr: addr, Handler: mux},
		upgrader: newUpgrader(allowedOrigins),
		hub:      h,
		engine:   engine,
		store:    store,
		messages: messages,
		verifier: verifier,
		log:      log,
	}
	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /api/rooms", s.ListRoomsHandler)
	mux.HandleFunc("GET /api/rooms/{id}/messages", s.RoomMessagesHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	return s
}

func (s *WsServer) Start() error {
	go s.hub.Run()
	return s.Srv.ListenAndServe()
}

func (s *WsServer) Stop(ctx context.Context) error {
	return s.Srv.Shutdown(ctx)
}

// WebSocketHandler authenticates the connection, upgrades it and starts the
// session pumps. An invalid or missing token downgrades to a guest session;
// joining still requires a display name either way.
func (s *WsServer) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	identity := s.identify(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sess := session.New(uuid.New().String(), identity, conn, r.UserAgent(), s.log)

	// The request context dies with this handler; session operations use
	// their own lifetime.
	ctx := context.Background()
	s.engine.StartSession(ctx, sess)

	welcome := map[string]any{
		"type":         "welcome",
		"session_id":   sess.ID,
		"display_name": sess.Identity.DisplayName,
		"guest":        sess.Identity.Guest,
	}
	if err := conn.WriteJSON(welcome); err != nil {
		s.log.Warn("welcome frame failed", zap.String("session", sess.ID), zap.Error(err))
	}

	go sess.WritePump()
	go sess.ReadPump(ctx, s.engine)
}

func (s *WsServer) identify(r *http.Request) session.Identity {
	token := r.URL.Query().Get("token")
	if token == "" {
		authz := r.Header.Get("Authorization")
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			token = strings.TrimSpace(authz[len("Bearer "):])
		}
	}
	if token != "" {
		if id, err := s.verifier.Verify(token); err == nil {
			return session.Identity{UserID: id.UserID, DisplayName: id.Username}
		}
		s.log.Debug("token rejected, continuing as guest")
	}
	identity := session.Identity{Guest: true}
	if name := r.URL.Query().Get("display_name"); name != "" {
		suffix := uuid.New().String()[:8]
		identity.DisplayName = name + "-" + suffix
	}
	return identity
}
