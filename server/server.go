// Package server is the websocket front door: it upgrades connections,
// authenticates them, and pumps decoded messages into the coordinator.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/rpgserver/auth"
	"github.com/wfunc/rpgserver/coordinator"
	"github.com/wfunc/rpgserver/logger"
	"github.com/wfunc/rpgserver/monitor"
	"github.com/wfunc/rpgserver/network"
	"github.com/wfunc/rpgserver/registry"
)

const authTimeout = 5 * time.Second

type GameServer struct {
	addr         string
	upgrader     websocket.Upgrader
	registry     *registry.Registry
	coordinator  *coordinator.Coordinator
	validator    auth.Validator
	monitor      *monitor.Monitor
	httpServer   *http.Server
	shutdownChan chan struct{}
}

func NewGameServer(addr string, reg *registry.Registry, coord *coordinator.Coordinator, validator auth.Validator, mon *monitor.Monitor) *GameServer {
	s := &GameServer{
		addr:         addr,
		registry:     reg,
		coordinator:  coord,
		validator:    validator,
		monitor:      mon,
		shutdownChan: make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	return s
}

func (s *GameServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}
	logger.Log.Infof("Game server listening on %s", s.addr)
	return s.httpServer.ListenAndServe()
}

func (s *GameServer) Shutdown() {
	close(s.shutdownChan)
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(ctx)
	}
}

func (s *GameServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleWebSocket serves /ws/{sessionID}?token=...
func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, "/ws/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	token := r.URL.Query().Get("token")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	wsConn := network.NewWSConnection(conn)

	ctx, cancel := context.WithTimeout(r.Context(), authTimeout)
	identity, err := s.validator.Validate(ctx, token)
	cancel()
	if err != nil {
		logger.Log.Infof("Rejected connection from %s: %v", wsConn.RemoteAddr(), err)
		_ = wsConn.ClosePolicy("invalid token")
		return
	}

	s.handleConnection(sessionID, identity, wsConn)
}

func (s *GameServer) handleConnection(sessionID string, identity auth.Identity, wsConn *network.WSConnection) {
	logger.Log.Infof("Player %s (%s) connected to session %s from %s",
		identity.PlayerName, identity.PlayerID, sessionID, wsConn.RemoteAddr())

	s.registry.Connect(sessionID, identity.PlayerID, wsConn)
	if s.monitor != nil {
		s.monitor.IncConnectedPlayers()
	}

	defer func() {
		if s.monitor != nil {
			s.monitor.DecConnectedPlayers()
		}
		// Only announce the departure if this handle is still the live
		// one; a reconnect that superseded it already took over.
		if s.registry.DisconnectIf(sessionID, identity.PlayerID, wsConn) {
			s.coordinator.HandleLeave(sessionID, identity.PlayerID, identity.PlayerName)
		}
		logger.Log.Infof("Player %s disconnected from session %s", identity.PlayerID, sessionID)
	}()

	if err := s.coordinator.HandleJoin(sessionID, identity.PlayerID, identity.PlayerName); err != nil {
		logger.Log.Infof("Join refused for %s in session %s: %v", identity.PlayerID, sessionID, err)
		_ = wsConn.ClosePolicy(err.Error())
		return
	}

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
		}

		env, err := wsConn.ReadEnvelope()
		if err != nil {
			return
		}
		s.dispatch(sessionID, identity, env)
	}
}

func (s *GameServer) dispatch(sessionID string, identity auth.Identity, env *network.Envelope) {
	if s.monitor != nil {
		s.monitor.IncMessagesReceived()
		started := time.Now()
		defer func() {
			s.monitor.ObserveMessageLatency(time.Since(started))
		}()
	}

	msg, err := network.DecodeInbound(env)
	if err != nil {
		logger.Log.Infof("Bad message from %s: %v", identity.PlayerID, err)
		if errEnv, encErr := network.NewEnvelope(network.TypeError, network.ErrorPayload{Message: err.Error()}); encErr == nil {
			s.registry.Unicast(sessionID, identity.PlayerID, errEnv)
		}
		return
	}

	switch m := msg.(type) {
	case network.ChatMessage:
		s.coordinator.HandleChat(sessionID, identity.PlayerID, identity.PlayerName, m)
	case network.PlayerAction:
		s.coordinator.HandleAction(sessionID, identity.PlayerID, identity.PlayerName, m)
	case network.DiceRoll:
		s.coordinator.HandleDiceRoll(sessionID, identity.PlayerID, identity.PlayerName, m)
	case network.Ping:
		s.coordinator.HandlePing(sessionID, identity.PlayerID)
	}
}
