package core

import (
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Phase is the buzzer session state. Handicap is an overlay on Response,
// not a phase of its own: the leader is blocked while the overlay is live.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseReading
	PhaseResponse
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseReading:
		return "reading"
	case PhaseResponse:
		return "response"
	case PhaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// BuzzVerdict classifies one press.
type BuzzVerdict int

const (
	// BuzzAccepted made or kept this team the answerer.
	BuzzAccepted BuzzVerdict = iota
	// BuzzDiscarded arrived during Reading; it is not even recorded.
	BuzzDiscarded
	// BuzzHandicapped came from the blocked leader inside its delay.
	BuzzHandicapped
	// BuzzLate is recorded for the UI but the answerer was already set.
	BuzzLate
	// BuzzClashLost fell inside the clash window but lost the tie-break.
	BuzzClashLost
	// BuzzUnattributed resolved to no team and cannot answer.
	BuzzUnattributed
	// BuzzIgnored arrived with no session or after completion.
	BuzzIgnored
)

func (v BuzzVerdict) String() string {
	switch v {
	case BuzzAccepted:
		return "accepted"
	case BuzzDiscarded:
		return "discarded"
	case BuzzHandicapped:
		return "handicap"
	case BuzzLate:
		return "late"
	case BuzzClashLost:
		return "clash_lost"
	case BuzzUnattributed:
		return "unattributed"
	case BuzzIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Buzz is one recorded press, kept for UI flashes and the game log.
type Buzz struct {
	TeamID     string
	At         time.Time
	Verdict    BuzzVerdict
	FlashUntil time.Time
}

// Transition is one phase change produced by a tick.
type Transition struct {
	From Phase
	To   Phase
}

// Session is the timing engine for one open question. It exists from
// openQuestion to closeQuestion and is the single source of truth for who
// may answer. All methods take the caller's notion of now; the session
// never reads the wall clock, which keeps it exactly reproducible.
type Session struct {
	Generation string
	Question   Question

	cfg      TimerConfig
	leaderFn func() (string, bool)

	phase          Phase
	openedAt       time.Time
	readingEndsAt  time.Time
	responseEndsAt time.Time

	handicapTeamID string
	handicapEndsAt time.Time

	// firstBuzz, once set, is immutable until the session is destroyed.
	firstBuzz   *Buzz
	provisional *BuzzCandidate
	clashEndsAt time.Time

	tie      TieBreaker
	flashTTL time.Duration
	buzzes   []Buzz
}

// NewSession opens a question. Reading duration is letters-only text length
// times the per-letter rate; a zero rate skips Reading entirely. leaderFn is
// consulted once, at the moment Response begins, to pick the handicap target.
func NewSession(q Question, cfg TimerConfig, tie TieBreaker, flashTTL time.Duration, leaderFn func() (string, bool), now time.Time) *Session {
	if tie == nil {
		tie = FirstWins{}
	}
	if leaderFn == nil {
		leaderFn = func() (string, bool) { return "", false }
	}
	s := &Session{
		Generation: uuid.NewString(),
		Question:   q,
		cfg:        cfg,
		leaderFn:   leaderFn,
		tie:        tie,
		flashTTL:   flashTTL,
		openedAt:   now,
	}

	reading := time.Duration(letterCount(q.Text)) * cfg.LetterReadTime
	if reading > 0 {
		s.phase = PhaseReading
		s.readingEndsAt = now.Add(reading)
	} else {
		s.enterResponse(now)
	}
	return s
}

func (s *Session) enterResponse(at time.Time) {
	s.phase = PhaseResponse
	s.responseEndsAt = at.Add(s.cfg.ResponseWindow)
	if s.cfg.HandicapEnabled && s.cfg.HandicapDelay > 0 {
		if leader, ok := s.leaderFn(); ok {
			s.handicapTeamID = leader
			s.handicapEndsAt = at.Add(s.cfg.HandicapDelay)
		}
	}
}

// Tick advances the machine to now and returns the transitions that fired.
// Buzzes received during Reading were never recorded, so crossing into
// Response starts from a clean slate by construction.
func (s *Session) Tick(now time.Time) []Transition {
	var out []Transition

	if s.phase == PhaseReading && !now.Before(s.readingEndsAt) {
		// Anchor the response window to the scheduled boundary, not tick
		// arrival, so a late tick does not stretch the question.
		s.enterResponse(s.readingEndsAt)
		out = append(out, Transition{From: PhaseReading, To: PhaseResponse})
	}

	if s.phase == PhaseResponse {
		if s.provisional != nil && s.firstBuzz == nil && now.After(s.clashEndsAt) {
			s.freezeAnswerer()
		}
		if !now.Before(s.responseEndsAt) {
			if s.provisional != nil && s.firstBuzz == nil {
				s.freezeAnswerer()
			}
			s.phase = PhaseComplete
			out = append(out, Transition{From: PhaseResponse, To: PhaseComplete})
		}
	}

	return out
}

func (s *Session) freezeAnswerer() {
	s.firstBuzz = &Buzz{
		TeamID:  s.provisional.TeamID,
		At:      s.provisional.At,
		Verdict: BuzzAccepted,
	}
	s.provisional = nil
}

// HandleBuzz processes one press attributed to teamID (empty when the
// reference resolved to no team). score is the team's current score, used
// only by the tie-break policy.
func (s *Session) HandleBuzz(teamID string, score int, now time.Time) BuzzVerdict {
	// Run due transitions first so a buzz arriving after the reading
	// boundary but before the next tick is judged in Response.
	s.Tick(now)

	switch s.phase {
	case PhaseReading:
		// Illegal by rule: the question is not fully read yet.
		return BuzzDiscarded
	case PhaseComplete:
		s.record(teamID, now, BuzzIgnored)
		return BuzzIgnored
	case PhaseResponse:
	default:
		return BuzzIgnored
	}

	if teamID == "" {
		s.record(teamID, now, BuzzUnattributed)
		return BuzzUnattributed
	}
	if teamID == s.handicapTeamID && now.Before(s.handicapEndsAt) {
		s.record(teamID, now, BuzzHandicapped)
		return BuzzHandicapped
	}
	if s.firstBuzz != nil {
		s.record(teamID, now, BuzzLate)
		return BuzzLate
	}

	cand := BuzzCandidate{TeamID: teamID, At: now, Score: score}

	if s.provisional == nil {
		s.provisional = &cand
		if s.cfg.ClashWindow <= 0 {
			s.freezeAnswerer()
		} else {
			s.clashEndsAt = now.Add(s.cfg.ClashWindow)
		}
		s.record(teamID, now, BuzzAccepted)
		return BuzzAccepted
	}

	// Second legal press inside the clash window: let the policy decide.
	winner := s.tie.Pick(*s.provisional, cand)
	if winner.TeamID == cand.TeamID {
		loser := s.provisional.TeamID
		s.provisional = &winner
		s.demote(loser)
		s.record(teamID, now, BuzzAccepted)
		return BuzzAccepted
	}
	s.record(teamID, now, BuzzClashLost)
	return BuzzClashLost
}

// demote rewrites the previously accepted press as a clash loser.
func (s *Session) demote(teamID string) {
	for i := len(s.buzzes) - 1; i >= 0; i-- {
		if s.buzzes[i].TeamID == teamID && s.buzzes[i].Verdict == BuzzAccepted {
			s.buzzes[i].Verdict = BuzzClashLost
			return
		}
	}
}

func (s *Session) record(teamID string, now time.Time, v BuzzVerdict) {
	s.buzzes = append(s.buzzes, Buzz{
		TeamID:     teamID,
		At:         now,
		Verdict:    v,
		FlashUntil: now.Add(s.flashTTL),
	})
}

// Complete force-finishes the session (score decision applied or host
// closed the response window manually).
func (s *Session) Complete(now time.Time) []Transition {
	if s.phase == PhaseComplete {
		return nil
	}
	if s.provisional != nil && s.firstBuzz == nil {
		s.freezeAnswerer()
	}
	from := s.phase
	s.phase = PhaseComplete
	return []Transition{{From: from, To: PhaseComplete}}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	return s.phase
}

// FirstBuzzTeamID returns the decided answerer, or "" while undecided. A
// provisional winner inside an open clash window is reported, since it
// answers unless the tie-break overturns it.
func (s *Session) FirstBuzzTeamID() string {
	if s.firstBuzz != nil {
		return s.firstBuzz.TeamID
	}
	if s.provisional != nil {
		return s.provisional.TeamID
	}
	return ""
}

// AnswererDecided reports whether the answerer is frozen.
func (s *Session) AnswererDecided() bool {
	return s.firstBuzz != nil
}

// HandicapTeamID returns the blocked leader while its delay is live.
func (s *Session) HandicapTeamID(now time.Time) string {
	if s.handicapTeamID != "" && now.Before(s.handicapEndsAt) {
		return s.handicapTeamID
	}
	return ""
}

// Remaining reports reading and response milliseconds left at now.
func (s *Session) Remaining(now time.Time) (readingMs, responseMs int64) {
	if s.phase == PhaseReading {
		readingMs = positiveMs(s.readingEndsAt.Sub(now))
		responseMs = s.cfg.ResponseWindow.Milliseconds()
		return readingMs, responseMs
	}
	if s.phase == PhaseResponse {
		return 0, positiveMs(s.responseEndsAt.Sub(now))
	}
	return 0, 0
}

// Running reports whether a timer is counting down.
func (s *Session) Running() bool {
	return s.phase == PhaseReading || s.phase == PhaseResponse
}

// RecentBuzzes returns presses whose UI flash window is still open.
func (s *Session) RecentBuzzes(now time.Time) []Buzz {
	var out []Buzz
	for _, b := range s.buzzes {
		if now.Before(b.FlashUntil) {
			out = append(out, b)
		}
	}
	return out
}

// PruneFlashes drops presses whose flash window expired, keeping the
// frozen answerer intact (it lives in firstBuzz, not in this log).
func (s *Session) PruneFlashes(now time.Time) int {
	kept := s.buzzes[:0]
	for _, b := range s.buzzes {
		if now.Before(b.FlashUntil) {
			kept = append(kept, b)
		}
	}
	dropped := len(s.buzzes) - len(kept)
	s.buzzes = kept
	return dropped
}

func positiveMs(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}

func letterCount(text string) int {
	n := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
