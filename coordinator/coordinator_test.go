package coordinator

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/rpgserver/character"
	"github.com/wfunc/rpgserver/dice"
	"github.com/wfunc/rpgserver/game"
	"github.com/wfunc/rpgserver/logger"
	"github.com/wfunc/rpgserver/models"
	"github.com/wfunc/rpgserver/network"
	"github.com/wfunc/rpgserver/oracle"
	"github.com/wfunc/rpgserver/pending"
	"github.com/wfunc/rpgserver/persistence"
	"github.com/wfunc/rpgserver/timer"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

type sentMessage struct {
	sessionID string
	target    string // empty for broadcast
	exclude   string
	env       *network.Envelope
}

type mockBroadcaster struct {
	mutex        sync.Mutex
	messages     []sentMessage
	disconnected []string
}

func (b *mockBroadcaster) Broadcast(sessionID string, env *network.Envelope, exclude string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.messages = append(b.messages, sentMessage{sessionID: sessionID, exclude: exclude, env: env})
}

func (b *mockBroadcaster) Unicast(sessionID, participantID string, env *network.Envelope) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.messages = append(b.messages, sentMessage{sessionID: sessionID, target: participantID, env: env})
}

func (b *mockBroadcaster) Disconnect(sessionID, participantID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.disconnected = append(b.disconnected, participantID)
}

func (b *mockBroadcaster) ofType(msgType string) []sentMessage {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	var matched []sentMessage
	for _, msg := range b.messages {
		if msg.env.Type == msgType {
			matched = append(matched, msg)
		}
	}
	return matched
}

// waitFor polls for the first message of a type; oracle-driven sends
// arrive from spawned goroutines.
func (b *mockBroadcaster) waitFor(t *testing.T, msgType string, timeout time.Duration) sentMessage {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if matched := b.ofType(msgType); len(matched) > 0 {
			return matched[0]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("No %s message arrived within %v", msgType, timeout)
	return sentMessage{}
}

type scriptedOracle struct {
	mutex      sync.Mutex
	assessment oracle.Assessment
	assessErr  error
	narration  string
	narrateErr error
	outcome    string
	outcomeErr error

	assessCalls  int
	narrateCalls int
	outcomeCalls int
}

func (o *scriptedOracle) AssessAction(ctx context.Context, action string, sheet *character.Sheet, scene string) (oracle.Assessment, error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.assessCalls++
	return o.assessment, o.assessErr
}

func (o *scriptedOracle) Narrate(ctx context.Context, actorName, action string, sheet *character.Sheet, scene string) (string, error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.narrateCalls++
	return o.narration, o.narrateErr
}

func (o *scriptedOracle) NarrateOutcome(ctx context.Context, outcome oracle.CheckOutcome, sheet *character.Sheet, scene string) (string, error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.outcomeCalls++
	return o.outcome, o.outcomeErr
}

func (o *scriptedOracle) calls() (assess, narrate, outcome int) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.assessCalls, o.narrateCalls, o.outcomeCalls
}

type mockSheets struct {
	sheets map[string]*character.Sheet
}

func (s *mockSheets) SheetFor(characterID string) (*character.Sheet, error) {
	return s.sheets[characterID], nil
}

// lyraSheet rolls stealth at +5: DEX +3 and proficiency +2.
func lyraSheet() *character.Sheet {
	return &character.Sheet{
		ID:    "char-lyra",
		Name:  "Lyra",
		Race:  "Elf",
		Class: "Rogue",
		Level: 1,
		Abilities: character.Abilities{
			Strength: 10, Dexterity: 16, Constitution: 12,
			Intelligence: 13, Wisdom: 14, Charisma: 11,
		},
		Skills: map[string]character.Proficiency{
			"stealth": character.Proficient,
		},
	}
}

type fixture struct {
	coordinator *Coordinator
	broadcaster *mockBroadcaster
	oracle      *scriptedOracle
	sessions    *game.Manager
	checks      *pending.Store
	timers      *timer.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	timers := timer.NewManager(20 * time.Millisecond)
	t.Cleanup(timers.Stop)

	f := &fixture{
		broadcaster: &mockBroadcaster{},
		oracle:      &scriptedOracle{},
		sessions:    game.NewManager(),
		checks:      pending.NewStore(timers),
		timers:      timers,
	}
	f.coordinator = New(Options{
		Sessions:    f.sessions,
		Broadcaster: f.broadcaster,
		Checks:      f.checks,
		Roller:      dice.NewRoller(),
		Oracle:      f.oracle,
		Sheets:      &mockSheets{sheets: map[string]*character.Sheet{"char-lyra": lyraSheet()}},
		MaxPlayers:  4,
	})
	return f
}

func (f *fixture) joinLyra(t *testing.T) {
	t.Helper()
	sess := f.sessions.Create("s1", "Test Session", 4)
	if err := sess.AddParticipant("p1", "char-lyra"); err != nil {
		t.Fatalf("AddParticipant failed: %v", err)
	}
}

func decode(t *testing.T, env *network.Envelope, payload interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, payload); err != nil {
		t.Fatalf("Decoding %s payload failed: %v", env.Type, err)
	}
}

func TestHandleJoin_WelcomeFlow(t *testing.T) {
	f := newFixture(t)

	if err := f.coordinator.HandleJoin("s1", "p1", "Alice"); err != nil {
		t.Fatalf("HandleJoin failed: %v", err)
	}

	joined := f.broadcaster.ofType(network.TypePlayerJoined)
	if len(joined) != 1 {
		t.Fatalf("Expected 1 player_joined, got %d", len(joined))
	}
	if joined[0].exclude != "p1" {
		t.Errorf("Joiner must be excluded from the announcement, got exclude %q", joined[0].exclude)
	}

	connected := f.broadcaster.ofType(network.TypeConnected)
	if len(connected) != 1 || connected[0].target != "p1" {
		t.Fatalf("Expected 1 connected unicast to p1, got %+v", connected)
	}
	var payload network.ConnectedPayload
	decode(t, connected[0].env, &payload)
	if payload.SessionID != "s1" || payload.Status != string(game.StatusWaiting) {
		t.Errorf("Unexpected connected payload: %+v", payload)
	}

	// A rejoin repeats the welcome but not the announcement.
	if err := f.coordinator.HandleJoin("s1", "p1", "Alice"); err != nil {
		t.Fatalf("Rejoin failed: %v", err)
	}
	if got := len(f.broadcaster.ofType(network.TypePlayerJoined)); got != 1 {
		t.Errorf("Rejoin must not announce again, got %d player_joined", got)
	}
	if got := len(f.broadcaster.ofType(network.TypeConnected)); got != 2 {
		t.Errorf("Expected connected on every join, got %d", got)
	}
}

func TestHandleJoin_ConcurrentFirstJoinsShareRoster(t *testing.T) {
	f := newFixture(t)

	start := make(chan struct{})
	var wg sync.WaitGroup
	joiners := map[string]string{"p1": "Alice", "p2": "Bob"}
	for playerID, name := range joiners {
		wg.Add(1)
		go func(playerID, name string) {
			defer wg.Done()
			<-start
			if err := f.coordinator.HandleJoin("s1", playerID, name); err != nil {
				t.Errorf("HandleJoin(%s) failed: %v", playerID, err)
			}
		}(playerID, name)
	}
	close(start)
	wg.Wait()

	sess, ok := f.sessions.Get("s1")
	if !ok {
		t.Fatal("Expected the session in the live set")
	}
	for playerID := range joiners {
		if !sess.HasParticipant(playerID) {
			t.Errorf("Racing first joins must land on one roster, %s is missing", playerID)
		}
	}
	if got := len(f.broadcaster.ofType(network.TypeConnected)); got != 2 {
		t.Errorf("Expected a connected unicast per joiner, got %d", got)
	}
}

func TestHandleChat_OOCStaysOutOfStory(t *testing.T) {
	f := newFixture(t)
	f.joinLyra(t)
	f.oracle.narration = "should never be used"

	f.coordinator.HandleChat("s1", "p1", "Lyra", network.ChatMessage{Content: "brb, tea", IsOOC: true})

	chat := f.broadcaster.ofType(network.TypeChatMessage)
	if len(chat) != 1 {
		t.Fatalf("Expected 1 chat_message, got %d", len(chat))
	}
	var payload network.ChatMessagePayload
	decode(t, chat[0].env, &payload)
	if !payload.IsOOC || payload.SenderName != "Lyra" {
		t.Errorf("Unexpected chat payload: %+v", payload)
	}

	time.Sleep(50 * time.Millisecond)
	if _, narrate, _ := f.oracle.calls(); narrate != 0 {
		t.Error("Out-of-character chat must not reach the oracle")
	}
}

func TestHandleChat_InCharacterGetsReaction(t *testing.T) {
	f := newFixture(t)
	f.joinLyra(t)
	f.oracle.narration = "The innkeeper nods slowly. What do you do?"

	f.coordinator.HandleChat("s1", "p1", "Lyra", network.ChatMessage{Content: "Any rumors lately?"})

	msg := f.broadcaster.waitFor(t, network.TypeAIResponse, time.Second)
	var payload network.AIResponsePayload
	decode(t, msg.env, &payload)
	if payload.Message != f.oracle.narration {
		t.Errorf("Unexpected reaction: %q", payload.Message)
	}
}

func TestHandleAction_NoCheckNarrates(t *testing.T) {
	f := newFixture(t)
	f.joinLyra(t)
	f.oracle.assessment = oracle.Assessment{RequiresCheck: false}
	f.oracle.narration = "You stroll down the road. What do you do?"

	f.coordinator.HandleAction("s1", "p1", "Lyra", network.PlayerAction{Action: "walk down the road"})

	echo := f.broadcaster.waitFor(t, network.TypePlayerAction, time.Second)
	var action network.PlayerActionPayload
	decode(t, echo.env, &action)
	if action.PlayerName != "Lyra" {
		t.Errorf("Unexpected action echo: %+v", action)
	}

	msg := f.broadcaster.waitFor(t, network.TypeAIResponse, time.Second)
	var payload network.AIResponsePayload
	decode(t, msg.env, &payload)
	if payload.IsFallback {
		t.Error("A healthy oracle response must not be marked fallback")
	}
	if payload.Message != f.oracle.narration {
		t.Errorf("Unexpected narration: %q", payload.Message)
	}
	if f.checks.Len() != 0 {
		t.Error("No-check actions must not park a pending check")
	}
}

func TestHandleAction_CheckRequested(t *testing.T) {
	f := newFixture(t)
	f.joinLyra(t)
	f.oracle.assessment = oracle.Assessment{
		RequiresCheck:  true,
		RollType:       "skill_check",
		AbilityOrSkill: "stealth",
		SuggestedDC:    15,
	}

	f.coordinator.HandleAction("s1", "p1", "Lyra", network.PlayerAction{Action: "sneak past the guard"})

	msg := f.broadcaster.waitFor(t, network.TypeRollRequest, time.Second)
	var request network.RollRequestPayload
	decode(t, msg.env, &request)
	if request.Skill != "stealth" || request.SuggestedDC != 15 {
		t.Errorf("Unexpected roll request: %+v", request)
	}
	if request.Modifier != 5 {
		t.Errorf("Expected modifier +5 from the sheet, got %+d", request.Modifier)
	}

	check, ok := f.checks.Get("s1", "Lyra")
	if !ok {
		t.Fatal("Expected a pending check for Lyra")
	}
	if check.DC != 15 || check.Modifier != 5 || check.OriginalAction != "sneak past the guard" {
		t.Errorf("Unexpected pending check: %+v", check)
	}
}

func TestHandleAction_OracleDownUsesKeywordFallback(t *testing.T) {
	f := newFixture(t)
	f.joinLyra(t)
	f.oracle.assessErr = oracle.ErrUnavailable
	f.oracle.narrateErr = oracle.ErrUnavailable
	f.oracle.outcomeErr = oracle.ErrUnavailable

	f.coordinator.HandleAction("s1", "p1", "Lyra", network.PlayerAction{Action: "I sneak past the sleeping guard"})

	msg := f.broadcaster.waitFor(t, network.TypeRollRequest, time.Second)
	var request network.RollRequestPayload
	decode(t, msg.env, &request)
	if request.Skill != "stealth" || request.SuggestedDC != 15 {
		t.Errorf("Keyword fallback should request a stealth check at DC 15, got %+v", request)
	}

	// The prompted roll resolves the check end to end.
	f.coordinator.HandleDiceRoll("s1", "p1", "Lyra", network.DiceRoll{Notation: "1d20"})

	result := f.broadcaster.waitFor(t, network.TypeDiceCheckResult, time.Second)
	var payload network.DiceCheckResultPayload
	decode(t, result.env, &payload)
	if payload.FinalTotal != payload.BaseRoll+5 {
		t.Errorf("Final total must be base roll plus modifier: %+v", payload)
	}
	wantSuccess, _ := oracle.GradeMargin(payload.BaseRoll, payload.FinalTotal, 15)
	if payload.Success != wantSuccess {
		t.Errorf("Success flag disagrees with the grading: %+v", payload)
	}

	narration := f.broadcaster.waitFor(t, network.TypeAIResponse, time.Second)
	var ai network.AIResponsePayload
	decode(t, narration.env, &ai)
	if !ai.IsFallback {
		t.Error("With the oracle down the outcome narration must be the fallback")
	}

	if _, ok := f.checks.Get("s1", "Lyra"); ok {
		t.Error("A resolved check must be cleared")
	}
}

func TestStealthCheckResolution(t *testing.T) {
	f := newFixture(t)
	f.joinLyra(t)
	f.oracle.assessment = oracle.Assessment{
		RequiresCheck:  true,
		RollType:       "skill_check",
		AbilityOrSkill: "stealth",
		SuggestedDC:    15,
	}
	f.oracle.outcome = "Lyra melts into the shadows. What do you do?"
	// Raw d20 comes up 12; with the sheet's +5 that beats DC 15.
	f.coordinator.roller = dice.NewRollerWithRand(func(n int) int { return 11 })

	f.coordinator.HandleAction("s1", "p1", "Lyra", network.PlayerAction{Action: "sneak past the guard"})
	f.broadcaster.waitFor(t, network.TypeRollRequest, time.Second)

	f.coordinator.HandleDiceRoll("s1", "p1", "Lyra", network.DiceRoll{Notation: "1d20"})

	result := f.broadcaster.waitFor(t, network.TypeDiceCheckResult, time.Second)
	var payload network.DiceCheckResultPayload
	decode(t, result.env, &payload)
	if payload.BaseRoll != 12 || payload.Modifier != 5 || payload.FinalTotal != 17 {
		t.Errorf("Expected 12 + 5 = 17, got %+v", payload)
	}
	if payload.DC != 15 || !payload.Success {
		t.Errorf("17 vs DC 15 must succeed, got %+v", payload)
	}

	narration := f.broadcaster.waitFor(t, network.TypeAIResponse, time.Second)
	var ai network.AIResponsePayload
	decode(t, narration.env, &ai)
	if ai.Message != f.oracle.outcome || ai.IsFallback {
		t.Errorf("Expected the oracle's outcome narration, got %+v", ai)
	}

	if _, ok := f.checks.Get("s1", "Lyra"); ok {
		t.Error("The resolved check must be cleared")
	}
}

func TestHandleDiceRoll_UnpromptedJustBroadcasts(t *testing.T) {
	f := newFixture(t)
	f.joinLyra(t)

	f.coordinator.HandleDiceRoll("s1", "p1", "Lyra", network.DiceRoll{Notation: "2d6+3", Purpose: "damage"})

	rolls := f.broadcaster.ofType(network.TypeDiceRoll)
	if len(rolls) != 1 {
		t.Fatalf("Expected 1 dice_roll, got %d", len(rolls))
	}
	var payload network.DiceRollPayload
	decode(t, rolls[0].env, &payload)
	if len(payload.IndividualRolls) != 2 || payload.Purpose != "damage" {
		t.Errorf("Unexpected roll payload: %+v", payload)
	}

	if got := len(f.broadcaster.ofType(network.TypeDiceCheckResult)); got != 0 {
		t.Errorf("Unprompted rolls must not produce a check result, got %d", got)
	}
}

func TestHandleDiceRoll_InvalidNotation(t *testing.T) {
	f := newFixture(t)
	f.joinLyra(t)

	f.coordinator.HandleDiceRoll("s1", "p1", "Lyra", network.DiceRoll{Notation: "20d"})

	errs := f.broadcaster.ofType(network.TypeError)
	if len(errs) != 1 || errs[0].target != "p1" {
		t.Fatalf("Expected 1 error unicast to p1, got %+v", errs)
	}
	if got := len(f.broadcaster.ofType(network.TypeDiceRoll)); got != 0 {
		t.Errorf("An invalid notation must not broadcast a roll, got %d", got)
	}
}

func TestHandlePing(t *testing.T) {
	f := newFixture(t)
	f.joinLyra(t)

	f.coordinator.HandlePing("s1", "p1")

	pongs := f.broadcaster.ofType(network.TypePong)
	if len(pongs) != 1 || pongs[0].target != "p1" {
		t.Fatalf("Expected 1 pong unicast to p1, got %+v", pongs)
	}
}

func TestEndSession_ClearsChecksAndAnnounces(t *testing.T) {
	f := newFixture(t)
	f.joinLyra(t)
	f.checks.Put(pending.Check{SessionID: "s1", ActorName: "Lyra", DC: 15}, 0)

	if err := f.coordinator.EndSession("s1"); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	if f.checks.Len() != 0 {
		t.Error("Ending a session must drop its pending checks")
	}
	if len(f.broadcaster.ofType(network.TypeSystem)) != 1 {
		t.Error("Expected a system announcement")
	}
	if _, ok := f.sessions.Get("s1"); ok {
		t.Error("An ended session must leave the live set")
	}
}

func TestLifecycleAnnouncements(t *testing.T) {
	f := newFixture(t)
	f.joinLyra(t)

	if err := f.coordinator.StartSession("s1"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if err := f.coordinator.PauseSession("s1"); err != nil {
		t.Fatalf("PauseSession failed: %v", err)
	}
	if err := f.coordinator.ResumeSession("s1"); err != nil {
		t.Fatalf("ResumeSession failed: %v", err)
	}
	if err := f.coordinator.SetScene("s1", "a fogbound moor"); err != nil {
		t.Fatalf("SetScene failed: %v", err)
	}

	if got := len(f.broadcaster.ofType(network.TypeSystem)); got != 4 {
		t.Errorf("Expected 4 system announcements, got %d", got)
	}

	// A second pause from active is fine; pausing a paused session is
	// a guard error and must not announce.
	f.coordinator.PauseSession("s1")
	if err := f.coordinator.PauseSession("s1"); err == nil {
		t.Error("Pausing a paused session must fail")
	}
	if got := len(f.broadcaster.ofType(network.TypeSystem)); got != 5 {
		t.Errorf("Expected 5 system announcements, got %d", got)
	}
}

func TestAdvanceTurnAnnouncesActor(t *testing.T) {
	f := newFixture(t)
	sess := f.sessions.Create("s1", "Turn Session", 4)
	sess.AddParticipant("p1", "")
	sess.AddParticipant("p2", "")

	if err := f.coordinator.SetInitiative("s1", []string{"p2", "p1"}); err != nil {
		t.Fatalf("SetInitiative failed: %v", err)
	}

	turn, err := f.coordinator.AdvanceTurn("s1")
	if err != nil {
		t.Fatalf("AdvanceTurn failed: %v", err)
	}
	if turn.CurrentPlayerID != "p1" {
		t.Errorf("Expected the cursor on p1, got %s", turn.CurrentPlayerID)
	}
	if got := len(f.broadcaster.ofType(network.TypeSystem)); got != 1 {
		t.Errorf("Expected a turn announcement, got %d system messages", got)
	}
}

func TestKickParticipant(t *testing.T) {
	f := newFixture(t)
	f.joinLyra(t)
	f.checks.Put(pending.Check{SessionID: "s1", ActorName: "p1", DC: 10}, 0)

	if err := f.coordinator.KickParticipant("s1", "p1"); err != nil {
		t.Fatalf("KickParticipant failed: %v", err)
	}

	sess, _ := f.sessions.Get("s1")
	if sess.HasParticipant("p1") {
		t.Error("Kicked participant must leave the roster")
	}
	if len(f.broadcaster.ofType(network.TypePlayerLeft)) != 1 {
		t.Error("Expected a player_left announcement")
	}

	f.broadcaster.mutex.Lock()
	disconnected := append([]string(nil), f.broadcaster.disconnected...)
	f.broadcaster.mutex.Unlock()
	if len(disconnected) != 1 || disconnected[0] != "p1" {
		t.Errorf("A kick must close the live handle, got %v", disconnected)
	}
}

type mockRecorder struct {
	mutex    sync.Mutex
	sessions map[string]models.SessionRecord
	messages []models.MessageRecord
	rolls    []models.DiceRollRecord
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{sessions: make(map[string]models.SessionRecord)}
}

func (r *mockRecorder) SaveMessage(record models.MessageRecord) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.messages = append(r.messages, record)
	return nil
}

func (r *mockRecorder) SaveDiceRoll(record models.DiceRollRecord) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.rolls = append(r.rolls, record)
	return nil
}

func (r *mockRecorder) SaveSessionState(record models.SessionRecord) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.sessions[record.SessionID] = record
	return nil
}

func (r *mockRecorder) LoadSessionState(sessionID string) (models.SessionRecord, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	record, ok := r.sessions[sessionID]
	if !ok {
		return models.SessionRecord{}, persistence.ErrRecordNotFound
	}
	return record, nil
}

func TestHandleJoin_RehydratesFromSnapshot(t *testing.T) {
	f := newFixture(t)
	recorder := newMockRecorder()
	recorder.sessions["s1"] = models.SessionRecord{
		SessionID:  "s1",
		Name:       "The Sunken Crypt",
		Status:     string(game.StatusActive),
		Scene:      "a flooded antechamber",
		Players:    []string{"p1", "p2"},
		Characters: map[string]string{"p1": "char-lyra"},
		MaxPlayers: 4,
	}
	f.coordinator.recorder = recorder

	if err := f.coordinator.HandleJoin("s1", "p1", "Lyra"); err != nil {
		t.Fatalf("HandleJoin failed: %v", err)
	}

	sess, ok := f.sessions.Get("s1")
	if !ok {
		t.Fatal("Expected the session in the live set")
	}
	snap := sess.Snapshot()
	if snap.Name != "The Sunken Crypt" || snap.Scene != "a flooded antechamber" {
		t.Errorf("Snapshot fields did not come back: %+v", snap)
	}
	if !sess.HasParticipant("p2") {
		t.Error("The persisted roster must come back")
	}
	if charID, _ := sess.CharacterID("p1"); charID != "char-lyra" {
		t.Errorf("Character assignments must come back, got %q", charID)
	}

	// Nobody was live in the rebuilt session; it waits to be started.
	if snap.Status != game.StatusWaiting {
		t.Errorf("A rehydrated session restarts waiting, got %s", snap.Status)
	}
}

func TestHandleJoin_EndedSnapshotStartsFresh(t *testing.T) {
	f := newFixture(t)
	recorder := newMockRecorder()
	recorder.sessions["s1"] = models.SessionRecord{
		SessionID: "s1",
		Name:      "Old Campaign",
		Status:    string(game.StatusEnded),
	}
	f.coordinator.recorder = recorder

	if err := f.coordinator.HandleJoin("s1", "p1", "Lyra"); err != nil {
		t.Fatalf("HandleJoin failed: %v", err)
	}

	sess, _ := f.sessions.Get("s1")
	if sess.Snapshot().Name == "Old Campaign" {
		t.Error("An ended snapshot must not be rehydrated")
	}
}
