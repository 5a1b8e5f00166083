// Package coordinator drives action resolution: it takes decoded
// inbound messages, consults the narrative oracle, requests and
// resolves dice checks and fans the results back out. The oracle is
// best-effort; every path through here must terminate in a broadcast
// even when the oracle is down.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wfunc/rpgserver/character"
	"github.com/wfunc/rpgserver/dice"
	"github.com/wfunc/rpgserver/game"
	"github.com/wfunc/rpgserver/logger"
	"github.com/wfunc/rpgserver/models"
	"github.com/wfunc/rpgserver/monitor"
	"github.com/wfunc/rpgserver/network"
	"github.com/wfunc/rpgserver/oracle"
	"github.com/wfunc/rpgserver/pending"
)

// Broadcaster is the fan-out the coordinator needs from the connection
// registry.
type Broadcaster interface {
	Broadcast(sessionID string, env *network.Envelope, excludeParticipant string)
	Unicast(sessionID, participantID string, env *network.Envelope)
	Disconnect(sessionID, participantID string)
}

// SheetResolver looks character sheets up by id.
type SheetResolver interface {
	SheetFor(characterID string) (*character.Sheet, error)
}

// Recorder is the slice of the persistence layer the coordinator
// talks to: best-effort writes plus snapshot loads for rehydration.
type Recorder interface {
	SaveMessage(record models.MessageRecord) error
	SaveDiceRoll(record models.DiceRollRecord) error
	SaveSessionState(record models.SessionRecord) error
	LoadSessionState(sessionID string) (models.SessionRecord, error)
}

const defaultOracleTimeout = 30 * time.Second

// Options wires a Coordinator. Sheets, Recorder and Monitor are
// optional; the rest are required.
type Options struct {
	Sessions      *game.Manager
	Broadcaster   Broadcaster
	Checks        *pending.Store
	Roller        *dice.Roller
	Oracle        oracle.Oracle
	Sheets        SheetResolver
	Recorder      Recorder
	Monitor       *monitor.Monitor
	MaxPlayers    int
	CheckTTL      time.Duration
	OracleTimeout time.Duration
}

type Coordinator struct {
	sessions      *game.Manager
	broadcaster   Broadcaster
	checks        *pending.Store
	roller        *dice.Roller
	oracle        oracle.Oracle
	sheets        SheetResolver
	recorder      Recorder
	monitor       *monitor.Monitor
	maxPlayers    int
	checkTTL      time.Duration
	oracleTimeout time.Duration
}

func New(opts Options) *Coordinator {
	if opts.OracleTimeout <= 0 {
		opts.OracleTimeout = defaultOracleTimeout
	}
	return &Coordinator{
		sessions:      opts.Sessions,
		broadcaster:   opts.Broadcaster,
		checks:        opts.Checks,
		roller:        opts.Roller,
		oracle:        opts.Oracle,
		sheets:        opts.Sheets,
		recorder:      opts.Recorder,
		monitor:       opts.Monitor,
		maxPlayers:    opts.MaxPlayers,
		checkTTL:      opts.CheckTTL,
		oracleTimeout: opts.OracleTimeout,
	}
}

// HandleJoin puts a participant on the session roster, creating the
// session on first join, and runs the welcome flow: player_joined to
// the room, connected to the joiner.
func (c *Coordinator) HandleJoin(sessionID, playerID, playerName string) error {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		if sess = c.rehydrate(sessionID); sess != nil {
			logger.Log.Infof("Rehydrated session %s from its snapshot", sessionID)
		} else {
			sess = c.sessions.Create(sessionID, fmt.Sprintf("Session %s", sessionID), c.maxPlayers)
			logger.Log.Infof("Created session %s", sessionID)
		}
	}

	err := sess.AddParticipant(playerID, "")
	switch err {
	case nil:
		c.send(sessionID, network.TypePlayerJoined, network.PlayerJoinedPayload{
			PlayerID:   playerID,
			PlayerName: playerName,
			Message:    fmt.Sprintf("%s joined the session", playerName),
		}, playerID)
	case game.ErrAlreadyJoined:
		// Reconnect. The roster survives a dropped connection.
	default:
		return err
	}

	snap := sess.Snapshot()
	connected := network.ConnectedPayload{
		SessionID:   snap.ID,
		SessionName: snap.Name,
		Status:      string(snap.Status),
		Scene:       snap.Scene,
		Players:     snap.Players,
		TurnInfo:    snap.Turn,
	}
	if sheet := c.sheetForPlayer(snap, playerID); sheet != nil {
		connected.Character = sheet
	}
	c.unicast(sessionID, playerID, network.TypeConnected, connected)

	c.persistSnapshot(sess)
	c.updateSessionGauge()
	return nil
}

// HandleLeave announces a departure. The participant stays on the
// roster so they can rejoin; only an explicit kick or a session end
// removes them.
func (c *Coordinator) HandleLeave(sessionID, playerID, playerName string) {
	sess, ok := c.sessions.Get(sessionID)
	if !ok || !sess.HasParticipant(playerID) {
		return
	}

	c.send(sessionID, network.TypePlayerLeft, network.PlayerLeftPayload{
		PlayerID:   playerID,
		PlayerName: playerName,
		Message:    fmt.Sprintf("%s left the session", playerName),
	}, playerID)
}

// KickParticipant removes a participant from the roster and announces
// it. Used by the admin surface.
func (c *Coordinator) KickParticipant(sessionID, playerID string) error {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	if err := sess.RemoveParticipant(playerID); err != nil {
		return err
	}

	c.checks.Clear(sessionID, playerID)
	c.broadcaster.Disconnect(sessionID, playerID)
	c.send(sessionID, network.TypePlayerLeft, network.PlayerLeftPayload{
		PlayerID: playerID,
		Message:  "removed from the session",
	}, "")
	c.persistSnapshot(sess)
	return nil
}

// rehydrate rebuilds a session from its persisted snapshot. Scene and
// roster come back; an ended session stays gone, and a rebuilt session
// restarts in the waiting state since nobody was live in it.
func (c *Coordinator) rehydrate(sessionID string) *game.Session {
	if c.recorder == nil {
		return nil
	}

	record, err := c.recorder.LoadSessionState(sessionID)
	if err != nil {
		return nil
	}
	if record.Status == string(game.StatusEnded) {
		return nil
	}

	sess := game.NewSession(record.SessionID, record.Name, record.MaxPlayers)
	sess.SetScene(record.Scene)
	for _, playerID := range record.Players {
		_ = sess.AddParticipant(playerID, record.Characters[playerID])
	}
	return c.sessions.Adopt(sess)
}

// EndSession ends a session, drops its pending checks and tells the
// room.
func (c *Coordinator) EndSession(sessionID string) error {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	if err := sess.End(); err != nil {
		return err
	}

	c.checks.ClearSession(sessionID)
	c.send(sessionID, network.TypeSystem, network.SystemPayload{
		Message: "The session has ended.",
	}, "")
	c.persistSnapshot(sess)
	c.sessions.Remove(sessionID)
	c.updateSessionGauge()
	return nil
}

// StartSession begins play.
func (c *Coordinator) StartSession(sessionID string) error {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	if err := sess.Start(); err != nil {
		return err
	}

	c.send(sessionID, network.TypeSystem, network.SystemPayload{
		Message: "The session has started.",
	}, "")
	c.persistSnapshot(sess)
	return nil
}

// PauseSession suspends play.
func (c *Coordinator) PauseSession(sessionID string) error {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	if err := sess.Pause(); err != nil {
		return err
	}

	c.send(sessionID, network.TypeSystem, network.SystemPayload{
		Message: "The session is paused.",
	}, "")
	c.persistSnapshot(sess)
	return nil
}

// ResumeSession continues a paused session.
func (c *Coordinator) ResumeSession(sessionID string) error {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	if err := sess.Resume(); err != nil {
		return err
	}

	c.send(sessionID, network.TypeSystem, network.SystemPayload{
		Message: "The session resumes.",
	}, "")
	c.persistSnapshot(sess)
	return nil
}

// SetScene updates the scene and tells the room.
func (c *Coordinator) SetScene(sessionID, scene string) error {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	sess.SetScene(scene)

	c.send(sessionID, network.TypeSystem, network.SystemPayload{
		Message: fmt.Sprintf("Scene: %s", scene),
	}, "")
	c.persistSnapshot(sess)
	return nil
}

// SetInitiative replaces the initiative order.
func (c *Coordinator) SetInitiative(sessionID string, order []string) error {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	sess.SetInitiativeOrder(order)
	c.persistSnapshot(sess)
	return nil
}

// AdvanceTurn moves the turn cursor and announces whose turn it is.
func (c *Coordinator) AdvanceTurn(sessionID string) (game.TurnInfo, error) {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		return game.TurnInfo{}, fmt.Errorf("session %s not found", sessionID)
	}
	turn := sess.AdvanceTurn()

	if turn.CurrentPlayerID != "" {
		c.send(sessionID, network.TypeSystem, network.SystemPayload{
			Message: fmt.Sprintf("Round %d. It is %s's turn.", turn.RoundNumber, turn.CurrentPlayerID),
		}, "")
	}
	c.persistSnapshot(sess)
	return turn, nil
}

// HandleChat fans table talk out. In-character talk also goes to the
// oracle for a reaction; out-of-character talk never does.
func (c *Coordinator) HandleChat(sessionID, playerID, playerName string, msg network.ChatMessage) {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		c.sendError(sessionID, playerID, "unknown session")
		return
	}

	sess.CountMessage()
	c.record(models.MessageRecord{
		SessionID:  sessionID,
		SenderID:   playerID,
		SenderName: playerName,
		Kind:       "chat",
		Content:    msg.Content,
		IsOOC:      msg.IsOOC,
	})

	c.send(sessionID, network.TypeChatMessage, network.ChatMessagePayload{
		Content:    msg.Content,
		IsOOC:      msg.IsOOC,
		SenderID:   playerID,
		SenderName: playerName,
	}, "")

	if msg.IsOOC {
		return
	}

	snap := sess.Snapshot()
	sheet := c.sheetForPlayer(snap, playerID)
	go c.narrate(sessionID, playerName, msg.Content, sheet, snap.Scene)
}

// HandleAction resolves a free-text action. The echo goes out
// immediately; assessment and narration run off the request goroutine
// so a slow oracle never blocks the read loop.
func (c *Coordinator) HandleAction(sessionID, playerID, playerName string, msg network.PlayerAction) {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		c.sendError(sessionID, playerID, "unknown session")
		return
	}
	action := strings.TrimSpace(msg.Action)
	if action == "" {
		c.sendError(sessionID, playerID, "empty action")
		return
	}

	sess.CountMessage()
	c.record(models.MessageRecord{
		SessionID:  sessionID,
		SenderID:   playerID,
		SenderName: playerName,
		Kind:       "action",
		Content:    action,
	})

	c.send(sessionID, network.TypePlayerAction, network.PlayerActionPayload{
		Action:     action,
		PlayerID:   playerID,
		PlayerName: playerName,
	}, "")

	snap := sess.Snapshot()
	sheet := c.sheetForPlayer(snap, playerID)
	go c.resolveAction(sessionID, playerID, playerName, action, sheet, snap.Scene)
}

// resolveAction runs the assess step and either narrates directly or
// parks a pending check and asks for a roll. Always called on its own
// goroutine with no session lock held.
func (c *Coordinator) resolveAction(sessionID, playerID, playerName, action string, sheet *character.Sheet, scene string) {
	assessment, fallback := c.assess(action, sheet, scene)

	if !assessment.RequiresCheck {
		text := ""
		if !fallback {
			text = c.tryNarrate(playerName, action, sheet, scene)
		}
		isFallback := text == ""
		if isFallback {
			text = oracle.FallbackNarration(playerName, action)
			c.countFallback()
		}
		c.send(sessionID, network.TypeAIResponse, network.AIResponsePayload{
			Message:      text,
			InResponseTo: action,
			PlayerName:   playerName,
			IsFallback:   isFallback,
		}, "")
		c.record(models.MessageRecord{
			SessionID:  sessionID,
			SenderID:   "narrator",
			SenderName: "Narrator",
			Kind:       "narration",
			Content:    text,
		})
		return
	}

	modifier := 0
	if sheet != nil {
		modifier = sheet.ModifierFor(assessment.AbilityOrSkill)
	}

	c.checks.Put(pending.Check{
		SessionID:      sessionID,
		ActorName:      playerName,
		RollType:       assessment.RollType,
		AbilityOrSkill: assessment.AbilityOrSkill,
		DC:             assessment.SuggestedDC,
		Modifier:       modifier,
		Advantage:      assessment.Advantage,
		Disadvantage:   assessment.Disadvantage,
		OriginalAction: action,
	}, c.checkTTL)
	c.updateCheckGauge()

	instruction := "1d20"
	note := ""
	if assessment.Advantage {
		note = " with advantage"
	} else if assessment.Disadvantage {
		note = " with disadvantage"
	}
	c.send(sessionID, network.TypeRollRequest, network.RollRequestPayload{
		PlayerName:      playerName,
		RollType:        assessment.RollType,
		Skill:           assessment.AbilityOrSkill,
		SuggestedDC:     assessment.SuggestedDC,
		Modifier:        modifier,
		Advantage:       assessment.Advantage,
		Disadvantage:    assessment.Disadvantage,
		DiceInstruction: instruction,
		Message: fmt.Sprintf("%s, roll %s%s for %s (%+d)",
			playerName, instruction, note, assessment.AbilityOrSkill, modifier),
	}, "")
}

// assess asks the oracle whether the action needs a check, degrading
// to the keyword heuristic. The second return reports degradation so
// the caller skips a second doomed oracle call.
func (c *Coordinator) assess(action string, sheet *character.Sheet, scene string) (oracle.Assessment, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), c.oracleTimeout)
	defer cancel()

	started := time.Now()
	assessment, err := c.oracle.AssessAction(ctx, action, sheet, scene)
	c.observeOracle(time.Since(started))
	if err != nil {
		logger.Log.Warnf("Oracle assess failed, using keyword fallback: %v", err)
		c.countFallback()
		return oracle.FallbackAssess(action), true
	}
	return assessment, false
}

func (c *Coordinator) tryNarrate(playerName, action string, sheet *character.Sheet, scene string) string {
	ctx, cancel := context.WithTimeout(context.Background(), c.oracleTimeout)
	defer cancel()

	started := time.Now()
	text, err := c.oracle.Narrate(ctx, playerName, action, sheet, scene)
	c.observeOracle(time.Since(started))
	if err != nil {
		logger.Log.Warnf("Oracle narration failed: %v", err)
		return ""
	}
	return text
}

// narrate produces a reaction to in-character chat.
func (c *Coordinator) narrate(sessionID, playerName, content string, sheet *character.Sheet, scene string) {
	text := c.tryNarrate(playerName, fmt.Sprintf("says: %q", content), sheet, scene)
	if text == "" {
		// Chat narration is color, not mechanics. Stay silent rather
		// than sending canned text after every line of dialogue.
		c.countFallback()
		return
	}

	c.send(sessionID, network.TypeAIResponse, network.AIResponsePayload{
		Message:    text,
		PlayerName: playerName,
	}, "")
	c.record(models.MessageRecord{
		SessionID:  sessionID,
		SenderID:   "narrator",
		SenderName: "Narrator",
		Kind:       "narration",
		Content:    text,
	})
}

// HandleDiceRoll executes a roll. A roll from a player with an
// outstanding check resolves that check; any other roll is just
// broadcast.
func (c *Coordinator) HandleDiceRoll(sessionID, playerID, playerName string, msg network.DiceRoll) {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		c.sendError(sessionID, playerID, "unknown session")
		return
	}

	check, prompted := c.checks.Get(sessionID, playerName)

	opts := dice.Options{}
	if prompted {
		opts.Advantage = check.Advantage
		opts.Disadvantage = check.Disadvantage
	}

	result, err := c.roller.Roll(msg.Notation, opts)
	if err != nil {
		c.sendError(sessionID, playerID, err.Error())
		return
	}

	sess.CountDiceRoll()
	c.countDiceRoll()

	c.send(sessionID, network.TypeDiceRoll, network.DiceRollPayload{
		Notation:        result.Notation,
		Purpose:         msg.Purpose,
		IndividualRolls: result.IndividualRolls,
		Modifiers:       result.Modifiers,
		Total:           result.Total,
		IsCritical:      result.IsCritical,
		IsFumble:        result.IsFumble,
		PlayerName:      playerName,
	}, "")

	record := models.DiceRollRecord{
		SessionID:  sessionID,
		PlayerID:   playerID,
		PlayerName: playerName,
		Notation:   result.Notation,
		Rolls:      result.IndividualRolls,
		Total:      result.Total,
		Purpose:    msg.Purpose,
	}

	if !prompted {
		c.recordRoll(record)
		return
	}

	baseRoll := result.IndividualRolls[0]
	finalTotal := baseRoll + check.Modifier
	success, margin := oracle.GradeMargin(baseRoll, finalTotal, check.DC)

	c.checks.Clear(sessionID, playerName)
	c.updateCheckGauge()

	record.Skill = check.AbilityOrSkill
	record.DC = check.DC
	record.Success = &success
	c.recordRoll(record)

	c.send(sessionID, network.TypeDiceCheckResult, network.DiceCheckResultPayload{
		PlayerName: playerName,
		Skill:      check.AbilityOrSkill,
		BaseRoll:   baseRoll,
		Modifier:   check.Modifier,
		FinalTotal: finalTotal,
		DC:         check.DC,
		Success:    success,
		Message: fmt.Sprintf("%s: [%d%+d = %d] vs DC %d, %s",
			check.AbilityOrSkill, baseRoll, check.Modifier, finalTotal, check.DC, margin),
	}, "")

	snap := sess.Snapshot()
	sheet := c.sheetForPlayer(snap, playerID)
	outcome := oracle.CheckOutcome{
		ActorName:  playerName,
		Action:     check.OriginalAction,
		Skill:      check.AbilityOrSkill,
		BaseRoll:   baseRoll,
		Modifier:   check.Modifier,
		FinalTotal: finalTotal,
		DC:         check.DC,
		Success:    success,
		Margin:     margin,
	}
	go c.narrateOutcome(sessionID, outcome, sheet, snap.Scene)
}

func (c *Coordinator) narrateOutcome(sessionID string, outcome oracle.CheckOutcome, sheet *character.Sheet, scene string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.oracleTimeout)
	defer cancel()

	started := time.Now()
	text, err := c.oracle.NarrateOutcome(ctx, outcome, sheet, scene)
	c.observeOracle(time.Since(started))
	isFallback := false
	if err != nil {
		logger.Log.Warnf("Oracle outcome narration failed: %v", err)
		text = oracle.FallbackOutcomeNarration(outcome)
		isFallback = true
		c.countFallback()
	}

	c.send(sessionID, network.TypeAIResponse, network.AIResponsePayload{
		Message:      text,
		InResponseTo: outcome.Action,
		PlayerName:   outcome.ActorName,
		IsFallback:   isFallback,
	}, "")
	c.record(models.MessageRecord{
		SessionID:  sessionID,
		SenderID:   "narrator",
		SenderName: "Narrator",
		Kind:       "narration",
		Content:    text,
	})
}

// HandlePing answers a keepalive.
func (c *Coordinator) HandlePing(sessionID, playerID string) {
	c.unicast(sessionID, playerID, network.TypePong, network.PongPayload{})
}

func (c *Coordinator) sheetForPlayer(snap game.Snapshot, playerID string) *character.Sheet {
	if c.sheets == nil {
		return nil
	}
	characterID, ok := snap.Characters[playerID]
	if !ok {
		return nil
	}
	sheet, err := c.sheets.SheetFor(characterID)
	if err != nil {
		logger.Log.Warnf("Loading character %s failed: %v", characterID, err)
		return nil
	}
	return sheet
}

func (c *Coordinator) send(sessionID, msgType string, payload interface{}, exclude string) {
	env, err := network.NewEnvelope(msgType, payload)
	if err != nil {
		logger.Log.Errorf("Encoding %s failed: %v", msgType, err)
		return
	}
	c.broadcaster.Broadcast(sessionID, env, exclude)
}

func (c *Coordinator) unicast(sessionID, playerID, msgType string, payload interface{}) {
	env, err := network.NewEnvelope(msgType, payload)
	if err != nil {
		logger.Log.Errorf("Encoding %s failed: %v", msgType, err)
		return
	}
	c.broadcaster.Unicast(sessionID, playerID, env)
}

func (c *Coordinator) sendError(sessionID, playerID, message string) {
	c.unicast(sessionID, playerID, network.TypeError, network.ErrorPayload{Message: message})
}

func (c *Coordinator) record(record models.MessageRecord) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.SaveMessage(record); err != nil {
		logger.Log.Warnf("Saving message failed: %v", err)
	}
}

func (c *Coordinator) recordRoll(record models.DiceRollRecord) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.SaveDiceRoll(record); err != nil {
		logger.Log.Warnf("Saving dice roll failed: %v", err)
	}
}

func (c *Coordinator) persistSnapshot(sess *game.Session) {
	if c.recorder == nil {
		return
	}
	snap := sess.Snapshot()
	err := c.recorder.SaveSessionState(models.SessionRecord{
		SessionID:      snap.ID,
		Name:           snap.Name,
		Status:         string(snap.Status),
		Scene:          snap.Scene,
		Players:        snap.Players,
		Characters:     snap.Characters,
		MaxPlayers:     snap.MaxPlayers,
		CurrentTurn:    snap.Turn.CurrentTurn,
		RoundNumber:    snap.Turn.RoundNumber,
		TotalMessages:  snap.TotalMessages,
		TotalDiceRolls: snap.TotalDiceRolls,
	})
	if err != nil {
		logger.Log.Warnf("Saving session %s failed: %v", snap.ID, err)
	}
}

func (c *Coordinator) countDiceRoll() {
	if c.monitor != nil {
		c.monitor.IncDiceRolls()
	}
}

func (c *Coordinator) countFallback() {
	if c.monitor != nil {
		c.monitor.IncOracleFallbacks()
	}
}

func (c *Coordinator) observeOracle(duration time.Duration) {
	if c.monitor != nil {
		c.monitor.ObserveOracleLatency(duration)
	}
}

func (c *Coordinator) updateCheckGauge() {
	if c.monitor != nil {
		c.monitor.SetPendingChecks(c.checks.Len())
	}
}

func (c *Coordinator) updateSessionGauge() {
	if c.monitor != nil {
		c.monitor.SetActiveSessions(c.sessions.Len())
	}
}
