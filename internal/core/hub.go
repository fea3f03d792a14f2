package core

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/buzzdeck/buzzdeck-host/internal/config"
	"github.com/buzzdeck/buzzdeck-host/internal/proto"
	"github.com/buzzdeck/buzzdeck-host/internal/store"
)

// Sender is the outbound half of the router as the hub sees it. Send never
// blocks; delivery policy is the router's business.
type Sender interface {
	Send(connID string, env *proto.Envelope)
	Bind(connID, persistentID string)
}

// Hub is the single owner of all session, team and buzzer state. Every
// mutation flows through Run's event loop: inbound transport events,
// presentation commands, and timer ticks. Nothing else reads or writes the
// hub's fields, so no two mutations can race.
type Hub struct {
	cfg      config.Game
	clock    clockwork.Clock
	log      *zerolog.Logger
	sender   Sender
	store    store.Store
	notifier Notifier

	events   chan Event
	commands chan Command

	sessions *SessionManager
	ledger   *Ledger
	buzzer   *Session

	answererOverride string
	noTeams          bool

	superActive bool
	super       map[string]*proto.SuperGameEntry

	ctx context.Context
}

// NewHub wires the owner loop. store and notifier may be nil.
func NewHub(cfg config.Game, clock clockwork.Clock, sender Sender, st store.Store, notifier Notifier, logger *zerolog.Logger) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Hub{
		cfg:      cfg,
		clock:    clock,
		log:      logger,
		sender:   sender,
		store:    st,
		notifier: notifier,
		events:   make(chan Event, 256),
		commands: make(chan Command, 32),
		sessions: NewSessionManager(),
		ledger:   NewLedger(),
		super:    make(map[string]*proto.SuperGameEntry),
	}
}

// PeerConnected is called by the transport when a connection opens.
func (h *Hub) PeerConnected(connID string) {
	h.post(Event{Kind: EventPeerConnected, ConnID: connID})
}

// PeerDisconnected is called by the transport when a connection drops.
func (h *Hub) PeerDisconnected(connID string) {
	h.post(Event{Kind: EventPeerDisconnected, ConnID: connID})
}

// PeerMessage hands one decoded inbound envelope to the owner loop.
func (h *Hub) PeerMessage(connID string, env *proto.Envelope) {
	h.post(Event{Kind: EventPeerMessage, ConnID: connID, Envelope: env})
}

func (h *Hub) post(ev Event) {
	select {
	case h.events <- ev:
	default:
		// Overload sheds inbound load; the next sync broadcast corrects
		// any client that lost an update this way.
		h.log.Warn().Str("conn_id", ev.ConnID).Msg("event queue full, dropping")
	}
}

// Do submits a presentation-layer command to the owner loop. It never
// blocks: with the loop gone or the queue saturated the command is dropped,
// so a board-UI call during shutdown cannot hang its goroutine.
func (h *Hub) Do(cmd Command) {
	select {
	case h.commands <- cmd:
	default:
		h.log.Warn().Int("kind", int(cmd.Kind)).Msg("command queue full, dropping")
	}
}

// OpenQuestion opens a question; timers nil uses the host defaults.
func (h *Hub) OpenQuestion(q Question, timers *TimerConfig) {
	h.Do(Command{Kind: CommandOpenQuestion, Question: q, Timers: timers})
}

// CloseQuestion destroys the open buzzer session.
func (h *Hub) CloseQuestion() {
	h.Do(Command{Kind: CommandCloseQuestion})
}

// ApplyScoreDecision scores the current answerer.
func (h *Hub) ApplyScoreDecision(correct bool) {
	h.Do(Command{Kind: CommandScoreDecision, Correct: correct})
}

// SetAnswerer overrides the answering team for the open session.
func (h *Hub) SetAnswerer(teamID string) {
	h.Do(Command{Kind: CommandSetAnswerer, TeamID: teamID})
}

// SetNoTeamsMode toggles roster suppression.
func (h *Hub) SetNoTeamsMode(enabled bool) {
	h.Do(Command{Kind: CommandSetNoTeamsMode, Enabled: enabled})
}

// CreateTeam creates a team from the board UI.
func (h *Hub) CreateTeam(name string) {
	h.Do(Command{Kind: CommandCreateTeam, Name: name})
}

// DeleteTeam removes a team from the board UI.
func (h *Hub) DeleteTeam(teamID string) {
	h.Do(Command{Kind: CommandDeleteTeam, TeamID: teamID})
}

// KickClient evicts a client immediately and tells it to clear its cache.
func (h *Hub) KickClient(persistentID, reason string) {
	h.Do(Command{Kind: CommandKickClient, PersistentID: persistentID, Reason: reason})
}

// StartSuperGame begins the final betting round.
func (h *Hub) StartSuperGame() {
	h.Do(Command{Kind: CommandStartSuperGame})
}

// Run owns the state until ctx is cancelled. All timers are created here
// and stopped on the way out; none outlive the loop.
func (h *Hub) Run(ctx context.Context) {
	h.ctx = ctx
	h.restoreTeams(ctx)

	buzzTick := h.clock.NewTicker(h.cfg.TickInterval)
	defer buzzTick.Stop()
	pingTick := h.clock.NewTicker(h.cfg.PingInterval)
	defer pingTick.Stop()
	evictTick := h.clock.NewTicker(h.cfg.EvictionSweep)
	defer evictTick.Stop()
	teamTick := h.clock.NewTicker(h.cfg.TeamSweep)
	defer teamTick.Stop()
	flashTick := h.clock.NewTicker(h.cfg.BuzzFlashTTL)
	defer flashTick.Stop()
	syncTick := h.clock.NewTicker(h.cfg.SyncInterval)
	defer syncTick.Stop()

	h.log.Info().Msg("hub started")
	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("hub stopped")
			return
		case ev := <-h.events:
			h.handleEvent(ev)
		case cmd := <-h.commands:
			h.handleCommand(cmd)
		case <-buzzTick.Chan():
			h.onBuzzTick()
		case <-pingTick.Chan():
			h.onPingTick()
		case <-evictTick.Chan():
			h.onEvictionSweep()
		case <-teamTick.Chan():
			h.onTeamSweep()
		case <-flashTick.Chan():
			h.onFlashSweep()
		case <-syncTick.Chan():
			h.onSyncTick()
		}
	}
}

func (h *Hub) restoreTeams(ctx context.Context) {
	if h.store == nil {
		return
	}
	teams, err := h.store.LoadTeams(ctx)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to load persisted teams")
		return
	}
	for _, t := range teams {
		h.ledger.Restore(Team{
			ID:         t.ID,
			Name:       t.Name,
			Score:      t.Score,
			CreatedAt:  t.CreatedAt,
			LastUsedAt: t.LastUsedAt,
		})
	}
	if len(teams) > 0 {
		h.log.Info().Int("teams", len(teams)).Msg("restored teams from store")
	}
}

// ==== inbound events ====

func (h *Hub) handleEvent(ev Event) {
	now := h.clock.Now()
	switch ev.Kind {
	case EventPeerConnected:
		h.log.Debug().Str("conn_id", ev.ConnID).Msg("peer connected")
	case EventPeerDisconnected:
		h.handleTransportDisconnect(ev.ConnID, now)
	case EventPeerMessage:
		h.handleMessage(ev.ConnID, ev.Envelope, now)
	}
}

func (h *Hub) handleMessage(connID string, env *proto.Envelope, now time.Time) {
	if env == nil || env.Type == "" {
		h.log.Warn().Str("conn_id", connID).Str("code", ErrCodeBadPayload).Msg("empty envelope dropped")
		return
	}
	switch env.Type {
	case proto.TypeJoin, proto.TypeReconnect:
		h.handleJoin(connID, env, now)
	case proto.TypeLeave:
		h.handleLeave(connID, now)
	case proto.TypeGetTeams:
		h.sendTo(connID, proto.TypeTeamList, proto.TeamListData{Teams: h.rosterData()})
	case proto.TypeTeamStateRequest:
		h.handleTeamStateRequest(connID)
	case proto.TypeCreateTeam:
		h.handleCreateTeam(connID, env, now)
	case proto.TypeJoinTeam:
		h.handleJoinTeam(connID, env, now)
	case proto.TypePing:
		h.handleClientPing(connID, env)
	case proto.TypePong:
		h.handlePong(connID, env, now)
	case proto.TypeHealthCheck:
		h.handleHealthCheck(connID, now)
	case proto.TypeBuzz:
		h.handleBuzz(connID, env, now)
	case proto.TypeSuperGameBet:
		h.handleSuperBet(connID, env, now)
	case proto.TypeSuperGameTeamAnswer:
		h.handleSuperAnswer(connID, env, now)
	default:
		// Protocol error: log and drop, never crash the owner loop.
		h.log.Warn().Str("conn_id", connID).Str("type", env.Type).Str("code", ErrCodeUnknownType).Msg("message dropped")
	}
}

func (h *Hub) handleJoin(connID string, env *proto.Envelope, now time.Time) {
	var data proto.JoinData
	if !h.decode(connID, env, &data) {
		return
	}

	res := h.sessions.OnJoin(connID, data.PersistentID, data.DisplayName, now)
	rec := res.Record
	h.sender.Bind(connID, rec.PersistentID)

	// A remembered team is restored only if it still exists; a vanished
	// team leaves the client teamless, which is not an error.
	if data.TeamID != "" {
		if team, ok := h.ledger.Get(data.TeamID); ok {
			rec.TeamID = team.ID
			h.ledger.Touch(team.ID, now)
		} else {
			h.log.Info().Str("persistent_id", rec.PersistentID).Str("team_id", data.TeamID).
				Str("code", ErrCodeUnknownTeam).Msg("remembered team no longer exists")
		}
	}

	h.persistClient(rec)
	h.log.Info().
		Str("persistent_id", rec.PersistentID).
		Str("conn_id", connID).
		Bool("reconnect", res.Reconnected).
		Msg("client joined")

	h.sendTo(connID, proto.TypeTeamStateResponse, proto.TeamStateData{
		Teams:  h.rosterData(),
		TeamID: rec.TeamID,
	})
	h.broadcastRoster()
}

func (h *Hub) handleLeave(connID string, now time.Time) {
	rec, ok := h.sessions.OnLeave(connID)
	if !ok {
		return
	}
	h.log.Info().Str("persistent_id", rec.PersistentID).Msg("client left")

	if rec.TeamID != "" {
		// A sole member leaving explicitly takes the team with it; the TTL
		// path is for abandoned teams, not deliberate exits.
		if h.sessions.TeamMembers(rec.TeamID) == 0 {
			h.removeTeam(rec.TeamID)
		} else {
			h.ledger.Touch(rec.TeamID, now)
		}
	}

	if h.store != nil {
		if err := h.store.DeleteClient(h.ctx, rec.PersistentID); err != nil {
			h.log.Warn().Err(err).Msg("delete client from store")
		}
	}
	h.broadcastRoster()
}

func (h *Hub) handleTransportDisconnect(connID string, now time.Time) {
	rec, ok := h.sessions.OnDisconnect(connID, now)
	if !ok {
		return
	}
	// Not an eviction: the grace window keeps the record (and its team
	// placement) alive through blips and page reloads.
	h.log.Info().Str("persistent_id", rec.PersistentID).Msg("transport disconnect, grace window started")
}

func (h *Hub) handleTeamStateRequest(connID string) {
	teamID := ""
	if rec, ok := h.sessions.ByConn(connID); ok {
		teamID = rec.TeamID
	}
	h.sendTo(connID, proto.TypeTeamStateResponse, proto.TeamStateData{
		Teams:  h.rosterData(),
		TeamID: teamID,
	})
}

func (h *Hub) handleCreateTeam(connID string, env *proto.Envelope, now time.Time) {
	var data proto.CreateTeamData
	if !h.decode(connID, env, &data) {
		return
	}
	if data.Name == "" {
		h.log.Warn().Str("conn_id", connID).Str("code", ErrCodeBadPayload).Msg("create team without name")
		return
	}
	team := h.ledger.Create(data.Name, now)
	if rec, ok := h.sessions.ByConn(connID); ok {
		rec.TeamID = team.ID
		h.persistClient(rec)
	}
	h.persistTeam(team)
	h.log.Info().Str("team_id", team.ID).Str("name", team.Name).Msg("team created")
	h.broadcastRoster()
}

func (h *Hub) handleJoinTeam(connID string, env *proto.Envelope, now time.Time) {
	var data proto.JoinTeamData
	if !h.decode(connID, env, &data) {
		return
	}
	rec, ok := h.sessions.ByConn(connID)
	if !ok {
		h.log.Warn().Str("conn_id", connID).Str("code", ErrCodeUnknownPeer).Msg("join team from unknown peer")
		return
	}
	team, ok := h.ledger.Get(data.TeamID)
	if !ok {
		// Accepted but teamless, same as a stale reconnect reference.
		rec.TeamID = ""
		h.persistClient(rec)
		return
	}
	rec.TeamID = team.ID
	h.ledger.Touch(team.ID, now)
	h.persistClient(rec)
	h.broadcastRoster()
}

func (h *Hub) handleClientPing(connID string, env *proto.Envelope) {
	var data proto.PingData
	if !h.decode(connID, env, &data) {
		return
	}
	h.sendTo(connID, proto.TypePong, proto.PongData{SentAtMs: data.SentAtMs})
}

func (h *Hub) handlePong(connID string, env *proto.Envelope, now time.Time) {
	var data proto.PongData
	if !h.decode(connID, env, &data) {
		return
	}
	rec, ok := h.sessions.ByConn(connID)
	if !ok {
		return
	}
	// Prefer the echoed timestamp; a client that drops it still gets an
	// estimate from the send time the hub remembered.
	var rtt time.Duration
	if data.SentAtMs > 0 {
		rtt = time.Duration(now.UnixMilli()-data.SentAtMs) * time.Millisecond
	} else if !rec.pingSentAt.IsZero() {
		rtt = now.Sub(rec.pingSentAt)
	}
	if rtt < 0 {
		rtt = 0
	}
	rec.Health.Observe(rtt)
	rec.awaitingPong = false
	rec.LastSeenAt = now
}

func (h *Hub) handleHealthCheck(connID string, now time.Time) {
	rec, ok := h.sessions.ByConn(connID)
	if !ok {
		return
	}
	h.sendTo(connID, proto.TypeHealthResponse, proto.HealthData{
		LastRttMs:   rec.Health.LastRTTMs,
		HealthScore: rec.Health.Score,
		Stale:       rec.Stale(now, h.cfg.StaleAfter),
	})
}

func (h *Hub) handleBuzz(connID string, env *proto.Envelope, now time.Time) {
	var data proto.BuzzData
	if !h.decode(connID, env, &data) {
		return
	}
	rec, recKnown := h.sessions.ByConn(connID)
	if recKnown {
		rec.LastSeenAt = now
	}

	if h.buzzer == nil {
		// Buzzes with no open question are ignored, not errors.
		h.sendTo(connID, proto.TypeBuzzAck, proto.BuzzAckData{Accepted: false, Reason: BuzzIgnored.String()})
		return
	}

	teamID := ""
	score := 0
	switch {
	case data.Team != "":
		if team, ok := h.ledger.Resolve(data.Team); ok {
			teamID = team.ID
			score = team.Score
		}
	case recKnown && rec.TeamID != "":
		teamID = rec.TeamID
		if team, ok := h.ledger.Get(teamID); ok {
			score = team.Score
		}
	}

	h.advanceBuzzer(now)
	decidedBefore := h.buzzer.AnswererDecided()
	answererBefore := h.buzzer.FirstBuzzTeamID()

	verdict := h.buzzer.HandleBuzz(teamID, score, now)
	h.sendTo(connID, proto.TypeBuzzAck, proto.BuzzAckData{
		Accepted: verdict == BuzzAccepted,
		Reason:   verdict.String(),
	})

	if verdict == BuzzAccepted {
		answerer := h.buzzer.FirstBuzzTeamID()
		if !decidedBefore || answerer != answererBefore {
			h.notifier.AnswererChanged(answerer)
			h.appendGameLog(answerer, "buzz", "")
		}
		h.broadcastBuzzerState(now)
	}
	h.log.Debug().
		Str("conn_id", connID).
		Str("team_id", teamID).
		Str("verdict", verdict.String()).
		Msg("buzz processed")
}

func (h *Hub) handleSuperBet(connID string, env *proto.Envelope, now time.Time) {
	var data proto.SuperGameBetData
	if !h.decode(connID, env, &data) {
		return
	}
	entry := h.superEntryFor(connID)
	if entry == nil {
		return
	}
	entry.Bet = data.Bet
	h.appendGameLog(entry.TeamID, "super_bet", strconv.Itoa(data.Bet))
	h.broadcastSuperState()
}

func (h *Hub) handleSuperAnswer(connID string, env *proto.Envelope, now time.Time) {
	var data proto.SuperGameAnswerData
	if !h.decode(connID, env, &data) {
		return
	}
	entry := h.superEntryFor(connID)
	if entry == nil {
		return
	}
	entry.Answer = data.Answer
	entry.Answered = true
	h.appendGameLog(entry.TeamID, "super_answer", "")
	h.broadcastSuperState()
}

func (h *Hub) superEntryFor(connID string) *proto.SuperGameEntry {
	if !h.superActive {
		return nil
	}
	rec, ok := h.sessions.ByConn(connID)
	if !ok || rec.TeamID == "" {
		h.log.Warn().Str("conn_id", connID).Msg("super game message without team")
		return nil
	}
	entry, ok := h.super[rec.TeamID]
	if !ok {
		entry = &proto.SuperGameEntry{TeamID: rec.TeamID}
		h.super[rec.TeamID] = entry
	}
	return entry
}

// ==== presentation commands ====

func (h *Hub) handleCommand(cmd Command) {
	now := h.clock.Now()
	switch cmd.Kind {
	case CommandOpenQuestion:
		h.openQuestion(cmd, now)
	case CommandCloseQuestion:
		h.closeQuestion(now)
	case CommandScoreDecision:
		h.applyScoreDecision(cmd.Correct, now)
	case CommandSetAnswerer:
		h.setAnswerer(cmd.TeamID)
	case CommandSetNoTeamsMode:
		h.noTeams = cmd.Enabled
		h.log.Info().Bool("enabled", cmd.Enabled).Msg("no-teams mode")
	case CommandCreateTeam:
		team := h.ledger.Create(cmd.Name, now)
		h.persistTeam(team)
		h.broadcastRoster()
	case CommandDeleteTeam:
		h.removeTeam(cmd.TeamID)
		h.broadcastRoster()
	case CommandKickClient:
		h.kickClient(cmd.PersistentID, cmd.Reason)
	case CommandStartSuperGame:
		h.superActive = true
		h.super = make(map[string]*proto.SuperGameEntry)
		h.log.Info().Msg("super game started")
		h.broadcastSuperState()
	}
}

func (h *Hub) openQuestion(cmd Command, now time.Time) {
	if h.buzzer != nil {
		h.closeQuestion(now)
	}

	timers := h.defaultTimers()
	if cmd.Timers != nil {
		timers = *cmd.Timers
	}
	var tie TieBreaker = FirstWins{}
	if timers.ClashUnderdogWins {
		tie = UnderdogWins{}
	}

	h.answererOverride = ""
	h.buzzer = NewSession(cmd.Question, timers, tie, h.cfg.BuzzFlashTTL, func() (string, bool) {
		if !timers.HandicapEnabled {
			return "", false
		}
		leader, ok := h.ledger.Leader()
		if !ok {
			return "", false
		}
		return leader.ID, true
	}, now)

	h.log.Info().
		Str("question_id", cmd.Question.ID).
		Str("generation", h.buzzer.Generation).
		Str("phase", h.buzzer.Phase().String()).
		Msg("question opened")

	h.notifier.BuzzerPhaseChanged(h.buzzer.Phase(), h.buzzerStateData(now))
	h.broadcastBuzzerState(now)
}

// closeQuestion destroys the session synchronously; the generation tag on
// the broadcast lets clients discard any state from the dead session that
// was still in flight.
func (h *Hub) closeQuestion(now time.Time) {
	if h.buzzer == nil {
		return
	}
	gen := h.buzzer.Generation
	h.buzzer = nil
	h.answererOverride = ""
	h.log.Info().Str("generation", gen).Msg("question closed")

	h.notifier.BuzzerPhaseChanged(PhaseIdle, proto.BuzzerStateData{Phase: PhaseIdle.String()})
	h.broadcast(proto.TypeBuzzerState, proto.BuzzerStateData{Phase: PhaseIdle.String()})
}

func (h *Hub) applyScoreDecision(correct bool, now time.Time) {
	if h.buzzer == nil {
		h.log.Warn().Str("code", ErrCodeNoOpenSession).Msg("score decision with no open question")
		return
	}
	answerer := h.answererOverride
	if answerer == "" {
		answerer = h.buzzer.FirstBuzzTeamID()
	}
	if answerer == "" {
		h.log.Warn().Msg("score decision with no answerer")
		return
	}

	delta := h.buzzer.Question.Value
	if delta == 0 {
		delta = 100
	}
	if !correct {
		delta = -delta
	}

	team, ok := h.ledger.AdjustScore(answerer, delta, now)
	if !ok {
		h.log.Warn().Str("team_id", answerer).Str("code", ErrCodeUnknownTeam).Msg("score decision for missing team")
		return
	}
	h.persistTeam(team)
	h.appendGameLog(team.ID, "score", strconv.Itoa(delta))
	h.log.Info().Str("team_id", team.ID).Int("delta", delta).Int("score", team.Score).Msg("score adjusted")

	for _, tr := range h.buzzer.Complete(now) {
		h.notifier.BuzzerPhaseChanged(tr.To, h.buzzerStateData(now))
	}
	h.broadcastBuzzerState(now)
	h.broadcastRoster()
}

func (h *Hub) setAnswerer(teamID string) {
	if h.buzzer == nil {
		h.log.Warn().Str("code", ErrCodeNoOpenSession).Msg("answerer override with no open question")
		return
	}
	h.answererOverride = teamID
	h.notifier.AnswererChanged(teamID)
}

func (h *Hub) kickClient(persistentID, reason string) {
	rec, ok := h.sessions.Kick(persistentID)
	if !ok {
		return
	}
	if rec.Connected && rec.ConnID != "" {
		h.sendTo(rec.ConnID, proto.TypeKickClient, proto.KickData{Reason: reason})
		h.sendTo(rec.ConnID, proto.TypeClearCache, nil)
	}
	if h.store != nil {
		if err := h.store.DeleteClient(h.ctx, persistentID); err != nil {
			h.log.Warn().Err(err).Msg("delete kicked client from store")
		}
	}
	h.log.Info().Str("persistent_id", persistentID).Str("reason", reason).Msg("client kicked")
	h.broadcastRoster()
}

// ==== timers ====

func (h *Hub) onBuzzTick() {
	now := h.clock.Now()
	h.advanceBuzzer(now)
	if h.buzzer != nil && h.buzzer.Running() {
		h.broadcastBuzzerState(now)
	}
}

func (h *Hub) advanceBuzzer(now time.Time) {
	if h.buzzer == nil {
		return
	}
	decidedBefore := h.buzzer.AnswererDecided()
	for _, tr := range h.buzzer.Tick(now) {
		h.log.Debug().
			Str("from", tr.From.String()).
			Str("to", tr.To.String()).
			Str("generation", h.buzzer.Generation).
			Msg("buzzer transition")
		h.notifier.BuzzerPhaseChanged(tr.To, h.buzzerStateData(now))
		h.broadcastBuzzerState(now)
	}
	if !decidedBefore && h.buzzer.AnswererDecided() {
		h.notifier.AnswererChanged(h.buzzer.FirstBuzzTeamID())
	}
}

func (h *Hub) onPingTick() {
	now := h.clock.Now()
	for _, rec := range h.sessions.Records() {
		if !rec.Connected {
			continue
		}
		if rec.awaitingPong {
			// The previous ping never came back; that silence is a sample.
			rec.Health.ObserveLoss()
		}
		rec.awaitingPong = true
		rec.pingSentAt = now
		h.sendTo(rec.ConnID, proto.TypePing, proto.PingData{SentAtMs: now.UnixMilli()})
	}
}

func (h *Hub) onEvictionSweep() {
	now := h.clock.Now()
	evicted := h.sessions.SweepEvictions(now, h.cfg.DisconnectGrace)
	if len(evicted) == 0 {
		return
	}
	for _, rec := range evicted {
		if rec.TeamID != "" {
			h.ledger.Touch(rec.TeamID, now)
		}
		if h.store != nil {
			if err := h.store.DeleteClient(h.ctx, rec.PersistentID); err != nil {
				h.log.Warn().Err(err).Msg("delete evicted client from store")
			}
		}
		h.log.Info().Str("persistent_id", rec.PersistentID).Msg("client evicted after grace window")
	}
	h.broadcastRoster()
}

func (h *Hub) onTeamSweep() {
	// No-teams mode suppresses rosters downstream; sweeping would race
	// the suppressed view, so the sweep pauses with it.
	if h.noTeams {
		return
	}
	now := h.clock.Now()
	removed := h.ledger.Sweep(now, h.cfg.EmptyTeamTTL, h.sessions.TeamInUse)
	for _, team := range removed {
		h.log.Info().Str("team_id", team.ID).Str("name", team.Name).Msg("empty team swept")
		h.afterTeamRemoved(team)
	}
	if len(removed) > 0 {
		h.broadcastRoster()
	}
}

func (h *Hub) onFlashSweep() {
	if h.buzzer != nil {
		h.buzzer.PruneFlashes(h.clock.Now())
	}
}

func (h *Hub) onSyncTick() {
	if h.superActive {
		h.broadcastSuperState()
	}
	if !h.noTeams {
		h.broadcast(proto.TypeTeamList, proto.TeamListData{Teams: h.rosterData()})
	}
}

// ==== teams ====

// removeTeam deletes a team, announcing the removal before the refreshed
// roster so clients can tell "my team vanished" from a plain roster change.
func (h *Hub) removeTeam(teamID string) {
	team, ok := h.ledger.Delete(teamID)
	if !ok {
		return
	}
	h.afterTeamRemoved(team)
}

func (h *Hub) afterTeamRemoved(team *Team) {
	h.broadcast(proto.TypeTeamDeleted, proto.TeamDeletedData{TeamID: team.ID, Name: team.Name})
	for _, rec := range h.sessions.ClearTeam(team.ID) {
		h.persistClient(rec)
	}
	if h.store != nil {
		if err := h.store.DeleteTeam(h.ctx, team.ID); err != nil {
			h.log.Warn().Err(err).Msg("delete team from store")
		}
	}
}

func (h *Hub) rosterData() []proto.TeamInfo {
	teams := h.ledger.Teams()
	out := make([]proto.TeamInfo, 0, len(teams))
	for _, t := range teams {
		out = append(out, proto.TeamInfo{
			ID:      t.ID,
			Name:    t.Name,
			Score:   t.Score,
			Members: h.sessions.TeamMembers(t.ID),
		})
	}
	return out
}

func (h *Hub) broadcastRoster() {
	if h.noTeams {
		return
	}
	roster := h.rosterData()
	h.notifier.RosterChanged(roster)
	h.broadcast(proto.TypeTeamList, proto.TeamListData{Teams: roster})
}

// ==== buzzer state ====

func (h *Hub) buzzerStateData(now time.Time) proto.BuzzerStateData {
	if h.buzzer == nil {
		return proto.BuzzerStateData{Phase: PhaseIdle.String()}
	}
	readingMs, responseMs := h.buzzer.Remaining(now)
	return proto.BuzzerStateData{
		Phase:               h.buzzer.Phase().String(),
		Generation:          h.buzzer.Generation,
		ReadingRemainingMs:  readingMs,
		ResponseRemainingMs: responseMs,
		HandicapTeamID:      h.buzzer.HandicapTeamID(now),
		FirstBuzzTeamID:     h.buzzer.FirstBuzzTeamID(),
	}
}

func (h *Hub) broadcastBuzzerState(now time.Time) {
	h.broadcast(proto.TypeBuzzerState, h.buzzerStateData(now))
}

func (h *Hub) broadcastSuperState() {
	entries := make([]proto.SuperGameEntry, 0, len(h.super))
	for _, e := range h.super {
		entries = append(entries, *e)
	}
	h.broadcast(proto.TypeSuperGameStateSync, proto.SuperGameStateData{Entries: entries})
}

// ==== plumbing ====

func (h *Hub) defaultTimers() TimerConfig {
	return TimerConfig{
		LetterReadTime:    h.cfg.LetterReadTime,
		ResponseWindow:    h.cfg.ResponseWindow,
		HandicapEnabled:   h.cfg.HandicapEnabled,
		HandicapDelay:     h.cfg.HandicapDelay,
		ClashWindow:       h.cfg.ClashWindow,
		ClashUnderdogWins: h.cfg.ClashUnderdogWins,
	}
}

func (h *Hub) decode(connID string, env *proto.Envelope, v any) bool {
	if len(env.Data) == 0 {
		// Some messages legitimately carry no payload.
		return true
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		h.log.Warn().Err(err).Str("conn_id", connID).Str("type", env.Type).
			Str("code", ErrCodeBadPayload).Msg("malformed payload dropped")
		return false
	}
	return true
}

func (h *Hub) sendTo(connID, msgType string, payload any) {
	env, err := proto.NewEnvelope(msgType, payload)
	if err != nil {
		h.log.Error().Err(err).Str("type", msgType).Msg("marshal outbound")
		return
	}
	h.sender.Send(connID, env)
}

func (h *Hub) broadcast(msgType string, payload any) {
	env, err := proto.NewEnvelope(msgType, payload)
	if err != nil {
		h.log.Error().Err(err).Str("type", msgType).Msg("marshal broadcast")
		return
	}
	for _, rec := range h.sessions.Records() {
		if rec.Connected {
			h.sender.Send(rec.ConnID, env)
		}
	}
}

func (h *Hub) persistTeam(t *Team) {
	if h.store == nil {
		return
	}
	err := h.store.SaveTeam(h.ctx, store.TeamRecord{
		ID:         t.ID,
		Name:       t.Name,
		Score:      t.Score,
		CreatedAt:  t.CreatedAt,
		LastUsedAt: t.LastUsedAt,
	})
	if err != nil {
		h.log.Warn().Err(err).Str("team_id", t.ID).Msg("persist team")
	}
}

func (h *Hub) persistClient(rec *ClientRecord) {
	if h.store == nil {
		return
	}
	err := h.store.SaveClient(h.ctx, store.ClientRecord{
		PersistentID: rec.PersistentID,
		DisplayName:  rec.DisplayName,
		TeamID:       rec.TeamID,
		JoinedAt:     rec.JoinedAt,
		LastSeenAt:   rec.LastSeenAt,
	})
	if err != nil {
		h.log.Warn().Err(err).Str("persistent_id", rec.PersistentID).Msg("persist client")
	}
}

func (h *Hub) appendGameLog(teamID, kind, detail string) {
	if h.store == nil {
		return
	}
	err := h.store.AppendGameLog(h.ctx, store.GameLogEntry{
		At:     h.clock.Now(),
		TeamID: teamID,
		Kind:   kind,
		Detail: detail,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("append game log")
	}
}
