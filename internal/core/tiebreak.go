package core

import "time"

// BuzzCandidate is one legal press competing for the answering slot.
type BuzzCandidate struct {
	TeamID string
	At     time.Time
	Score  int
}

// TieBreaker decides between two legal buzzes that landed within the clash
// window of each other. It runs on the owner goroutine; implementations
// must be deterministic.
type TieBreaker interface {
	Pick(current, challenger BuzzCandidate) BuzzCandidate
}

// FirstWins keeps strict processing order: the earlier press stands.
type FirstWins struct{}

func (FirstWins) Pick(current, challenger BuzzCandidate) BuzzCandidate {
	return current
}

// UnderdogWins hands a clash to the team with the lower score, so trailing
// teams are not punished for a few milliseconds of phone latency. Equal
// scores keep the earlier press.
type UnderdogWins struct{}

func (UnderdogWins) Pick(current, challenger BuzzCandidate) BuzzCandidate {
	if challenger.Score < current.Score {
		return challenger
	}
	return current
}
