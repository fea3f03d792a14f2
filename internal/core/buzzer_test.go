package core

import (
	"testing"
	"time"
)

var testBase = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func responseOnlyConfig() TimerConfig {
	return TimerConfig{
		LetterReadTime: 0,
		ResponseWindow: 30 * time.Second,
	}
}

func noLeader() (string, bool) { return "", false }

func TestReadingPhaseBuzzesNeverWin(t *testing.T) {
	cfg := TimerConfig{
		LetterReadTime: 50 * time.Millisecond,
		ResponseWindow: 30 * time.Second,
	}
	// "abcd efg!" has 7 letters -> 350ms of reading.
	s := NewSession(Question{Text: "abcd efg!"}, cfg, FirstWins{}, 500*time.Millisecond, noLeader, testBase)

	if s.Phase() != PhaseReading {
		t.Fatalf("expected reading phase, got %s", s.Phase())
	}

	if v := s.HandleBuzz("t1", 0, testBase.Add(100*time.Millisecond)); v != BuzzDiscarded {
		t.Fatalf("expected discarded verdict during reading, got %s", v)
	}

	trs := s.Tick(testBase.Add(400 * time.Millisecond))
	if len(trs) != 1 || trs[0].To != PhaseResponse {
		t.Fatalf("expected reading->response transition, got %+v", trs)
	}
	if got := s.FirstBuzzTeamID(); got != "" {
		t.Fatalf("reading-phase buzz leaked into answerer: %q", got)
	}

	if v := s.HandleBuzz("t1", 0, testBase.Add(450*time.Millisecond)); v != BuzzAccepted {
		t.Fatalf("expected legal buzz accepted in response, got %s", v)
	}
	if got := s.FirstBuzzTeamID(); got != "t1" {
		t.Fatalf("expected t1 as answerer, got %q", got)
	}
}

func TestReadingSkippedWhenRateZero(t *testing.T) {
	s := NewSession(Question{Text: "a long question"}, responseOnlyConfig(), FirstWins{}, 0, noLeader, testBase)
	if s.Phase() != PhaseResponse {
		t.Fatalf("expected immediate response phase, got %s", s.Phase())
	}
}

func TestFirstBuzzImmutable(t *testing.T) {
	s := NewSession(Question{}, responseOnlyConfig(), FirstWins{}, 0, noLeader, testBase)

	if v := s.HandleBuzz("a", 0, testBase.Add(time.Second)); v != BuzzAccepted {
		t.Fatalf("expected first buzz accepted, got %s", v)
	}
	if !s.AnswererDecided() {
		t.Fatal("zero clash window should freeze the answerer immediately")
	}

	for i, team := range []string{"b", "c", "a"} {
		at := testBase.Add(time.Duration(2+i) * time.Second)
		if v := s.HandleBuzz(team, 0, at); v != BuzzLate {
			t.Fatalf("buzz %d from %s: expected late, got %s", i, team, v)
		}
	}
	if got := s.FirstBuzzTeamID(); got != "a" {
		t.Fatalf("answerer changed after late buzzes: %q", got)
	}
}

func TestHandicapBlocksLeaderOnly(t *testing.T) {
	cfg := responseOnlyConfig()
	cfg.HandicapEnabled = true
	cfg.HandicapDelay = 2 * time.Second
	leader := func() (string, bool) { return "lead", true }

	s := NewSession(Question{}, cfg, FirstWins{}, 0, leader, testBase)

	if v := s.HandleBuzz("lead", 900, testBase.Add(500*time.Millisecond)); v != BuzzHandicapped {
		t.Fatalf("expected leader blocked during handicap, got %s", v)
	}
	if got := s.FirstBuzzTeamID(); got != "" {
		t.Fatalf("handicapped buzz set answerer: %q", got)
	}

	if v := s.HandleBuzz("under", 100, testBase.Add(time.Second)); v != BuzzAccepted {
		t.Fatalf("expected non-leader accepted during handicap window, got %s", v)
	}
	if got := s.FirstBuzzTeamID(); got != "under" {
		t.Fatalf("expected under as answerer, got %q", got)
	}

	if v := s.HandleBuzz("lead", 900, testBase.Add(2500*time.Millisecond)); v != BuzzLate {
		t.Fatalf("expected leader late after answerer set, got %s", v)
	}
}

func TestHandicapExpiresForLeader(t *testing.T) {
	cfg := responseOnlyConfig()
	cfg.HandicapEnabled = true
	cfg.HandicapDelay = 2 * time.Second
	leader := func() (string, bool) { return "lead", true }

	s := NewSession(Question{}, cfg, FirstWins{}, 0, leader, testBase)

	if v := s.HandleBuzz("lead", 900, testBase.Add(3*time.Second)); v != BuzzAccepted {
		t.Fatalf("expected leader accepted after handicap expiry, got %s", v)
	}
	if got := s.FirstBuzzTeamID(); got != "lead" {
		t.Fatalf("expected lead as answerer, got %q", got)
	}
}

func TestFirstBuzzWinsScenario(t *testing.T) {
	// Reading 0, response 30s, no handicap. A buzzes at t=5s, B at t=5.2s.
	s := NewSession(Question{}, responseOnlyConfig(), FirstWins{}, 0, noLeader, testBase)

	if v := s.HandleBuzz("teamA", 0, testBase.Add(5*time.Second)); v != BuzzAccepted {
		t.Fatalf("expected A accepted, got %s", v)
	}
	if v := s.HandleBuzz("teamB", 0, testBase.Add(5200*time.Millisecond)); v != BuzzLate {
		t.Fatalf("expected B late, got %s", v)
	}
	if got := s.FirstBuzzTeamID(); got != "teamA" {
		t.Fatalf("expected teamA answering at t=5s, got %q", got)
	}

	for at := 6; at <= 29; at += 5 {
		if trs := s.Tick(testBase.Add(time.Duration(at) * time.Second)); len(trs) != 0 {
			t.Fatalf("unexpected transition at t=%ds: %+v", at, trs)
		}
	}

	trs := s.Tick(testBase.Add(30*time.Second + 100*time.Millisecond))
	if len(trs) != 1 || trs[0].To != PhaseComplete {
		t.Fatalf("expected response->complete at window end, got %+v", trs)
	}
	if got := s.FirstBuzzTeamID(); got != "teamA" {
		t.Fatalf("answerer changed across complete transition: %q", got)
	}
}

func TestClashWindowUnderdogWins(t *testing.T) {
	cfg := responseOnlyConfig()
	cfg.ClashWindow = 300 * time.Millisecond
	cfg.ClashUnderdogWins = true

	s := NewSession(Question{}, cfg, UnderdogWins{}, 0, noLeader, testBase)

	if v := s.HandleBuzz("rich", 500, testBase.Add(time.Second)); v != BuzzAccepted {
		t.Fatalf("expected first press provisionally accepted, got %s", v)
	}
	if s.AnswererDecided() {
		t.Fatal("answerer frozen before clash window closed")
	}

	if v := s.HandleBuzz("poor", 100, testBase.Add(1100*time.Millisecond)); v != BuzzAccepted {
		t.Fatalf("expected underdog to take the clash, got %s", v)
	}
	if got := s.FirstBuzzTeamID(); got != "poor" {
		t.Fatalf("expected poor as provisional answerer, got %q", got)
	}

	s.Tick(testBase.Add(1500 * time.Millisecond))
	if !s.AnswererDecided() {
		t.Fatal("answerer not frozen after clash window closed")
	}
	if got := s.FirstBuzzTeamID(); got != "poor" {
		t.Fatalf("expected poor frozen as answerer, got %q", got)
	}

	if v := s.HandleBuzz("third", 0, testBase.Add(1600*time.Millisecond)); v != BuzzLate {
		t.Fatalf("expected late after freeze, got %s", v)
	}
}

func TestClashWindowFirstWinsKeepsOrder(t *testing.T) {
	cfg := responseOnlyConfig()
	cfg.ClashWindow = 300 * time.Millisecond

	s := NewSession(Question{}, cfg, FirstWins{}, 0, noLeader, testBase)

	s.HandleBuzz("a", 0, testBase.Add(time.Second))
	if v := s.HandleBuzz("b", 0, testBase.Add(1100*time.Millisecond)); v != BuzzClashLost {
		t.Fatalf("expected challenger to lose under first-wins, got %s", v)
	}
	s.Tick(testBase.Add(2 * time.Second))
	if got := s.FirstBuzzTeamID(); got != "a" {
		t.Fatalf("expected a as answerer, got %q", got)
	}
}

func TestUnattributedBuzzCannotAnswer(t *testing.T) {
	s := NewSession(Question{}, responseOnlyConfig(), FirstWins{}, 0, noLeader, testBase)

	if v := s.HandleBuzz("", 0, testBase.Add(time.Second)); v != BuzzUnattributed {
		t.Fatalf("expected unattributed verdict, got %s", v)
	}
	if got := s.FirstBuzzTeamID(); got != "" {
		t.Fatalf("teamless buzz set answerer: %q", got)
	}
}

func TestTimeoutFreezesProvisionalWinner(t *testing.T) {
	cfg := responseOnlyConfig()
	cfg.ResponseWindow = 2 * time.Second
	cfg.ClashWindow = 5 * time.Second

	s := NewSession(Question{}, cfg, FirstWins{}, 0, noLeader, testBase)
	s.HandleBuzz("a", 0, testBase.Add(time.Second))

	trs := s.Tick(testBase.Add(3 * time.Second))
	if len(trs) != 1 || trs[0].To != PhaseComplete {
		t.Fatalf("expected complete on timeout, got %+v", trs)
	}
	if got := s.FirstBuzzTeamID(); got != "a" {
		t.Fatalf("provisional winner lost at timeout: %q", got)
	}
}

func TestBuzzFlashPruning(t *testing.T) {
	flash := 500 * time.Millisecond
	s := NewSession(Question{}, responseOnlyConfig(), FirstWins{}, flash, noLeader, testBase)

	s.HandleBuzz("a", 0, testBase.Add(time.Second))
	s.HandleBuzz("b", 0, testBase.Add(1100*time.Millisecond))

	if got := len(s.RecentBuzzes(testBase.Add(1200 * time.Millisecond))); got != 2 {
		t.Fatalf("expected 2 recent buzzes, got %d", got)
	}

	if dropped := s.PruneFlashes(testBase.Add(2 * time.Second)); dropped != 2 {
		t.Fatalf("expected 2 flashes pruned, got %d", dropped)
	}
	if got := s.FirstBuzzTeamID(); got != "a" {
		t.Fatalf("pruning flashes must not touch the answerer, got %q", got)
	}
}

func TestLetterCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 3},
		{"a b c!", 3},
		{"привет, мир", 9},
		{"42 is the answer", 11},
	}
	for _, tt := range tests {
		if got := letterCount(tt.text); got != tt.want {
			t.Errorf("letterCount(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
