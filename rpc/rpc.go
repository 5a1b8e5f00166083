// Package rpc is the operator surface: a net/rpc listener exposing
// session administration. It is meant for localhost tooling, not
// players.
package rpc

import (
	"net"
	"net/rpc"

	"github.com/wfunc/rpgserver/coordinator"
	"github.com/wfunc/rpgserver/game"
	"github.com/wfunc/rpgserver/logger"
	"github.com/wfunc/rpgserver/registry"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
}

func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// AdminService exposes session administration over net/rpc. Methods
// follow the net/rpc signature rules.
type AdminService struct {
	sessions    *game.Manager
	coordinator *coordinator.Coordinator
	registry    *registry.Registry
}

func NewAdminService(sessions *game.Manager, coord *coordinator.Coordinator, reg *registry.Registry) *AdminService {
	return &AdminService{sessions: sessions, coordinator: coord, registry: reg}
}

type ListSessionsArgs struct{}

type ListSessionsReply struct {
	Sessions []game.Snapshot
}

func (a *AdminService) ListSessions(_ *ListSessionsArgs, reply *ListSessionsReply) error {
	reply.Sessions = a.sessions.List()
	return nil
}

type SessionArgs struct {
	SessionID string
}

type OpReply struct {
	OK bool
}

func (a *AdminService) StartSession(args *SessionArgs, reply *OpReply) error {
	if err := a.coordinator.StartSession(args.SessionID); err != nil {
		return err
	}
	reply.OK = true
	return nil
}

func (a *AdminService) PauseSession(args *SessionArgs, reply *OpReply) error {
	if err := a.coordinator.PauseSession(args.SessionID); err != nil {
		return err
	}
	reply.OK = true
	return nil
}

func (a *AdminService) ResumeSession(args *SessionArgs, reply *OpReply) error {
	if err := a.coordinator.ResumeSession(args.SessionID); err != nil {
		return err
	}
	reply.OK = true
	return nil
}

func (a *AdminService) EndSession(args *SessionArgs, reply *OpReply) error {
	if err := a.coordinator.EndSession(args.SessionID); err != nil {
		return err
	}
	reply.OK = true
	return nil
}

type KickArgs struct {
	SessionID string
	PlayerID  string
}

func (a *AdminService) KickParticipant(args *KickArgs, reply *OpReply) error {
	if err := a.coordinator.KickParticipant(args.SessionID, args.PlayerID); err != nil {
		return err
	}
	reply.OK = true
	return nil
}

type SceneArgs struct {
	SessionID string
	Scene     string
}

func (a *AdminService) SetScene(args *SceneArgs, reply *OpReply) error {
	if err := a.coordinator.SetScene(args.SessionID, args.Scene); err != nil {
		return err
	}
	reply.OK = true
	return nil
}

type InitiativeArgs struct {
	SessionID string
	Order     []string
}

func (a *AdminService) SetInitiative(args *InitiativeArgs, reply *OpReply) error {
	if err := a.coordinator.SetInitiative(args.SessionID, args.Order); err != nil {
		return err
	}
	reply.OK = true
	return nil
}

type ConnectedReply struct {
	// Participants currently holding a live connection; the session
	// roster can be wider.
	Participants []string
	Total        int
}

func (a *AdminService) ListConnected(args *SessionArgs, reply *ConnectedReply) error {
	reply.Participants = a.registry.ListParticipants(args.SessionID)
	reply.Total = a.registry.Count()
	return nil
}

type TurnReply struct {
	Turn game.TurnInfo
}

func (a *AdminService) AdvanceTurn(args *SessionArgs, reply *TurnReply) error {
	turn, err := a.coordinator.AdvanceTurn(args.SessionID)
	if err != nil {
		return err
	}
	reply.Turn = turn
	return nil
}
