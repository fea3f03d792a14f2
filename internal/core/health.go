package core

import "time"

// Health is the derived connection quality for one client. It is owned by
// the ClientRecord and recomputed on every round-trip sample; it does not
// survive eviction.
type Health struct {
	LastRTTMs int64
	Score     int
}

// NewHealth starts a fresh connection at full score.
func NewHealth() Health {
	return Health{Score: 100}
}

// emaWeight is the share of the previous score kept per sample.
const emaWeight = 0.7

// Observe folds one round-trip sample into the score.
func (h *Health) Observe(rtt time.Duration) {
	ms := rtt.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	h.LastRTTMs = ms
	h.fold(bucketScore(ms))
}

// ObserveLoss records a missed response as a zero-score sample.
func (h *Health) ObserveLoss() {
	h.fold(0)
}

func (h *Health) fold(sample int) {
	score := int(emaWeight*float64(h.Score) + (1-emaWeight)*float64(sample))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	h.Score = score
}

func bucketScore(rttMs int64) int {
	switch {
	case rttMs < 50:
		return 100
	case rttMs < 100:
		return 90
	case rttMs < 250:
		return 75
	case rttMs < 500:
		return 50
	case rttMs < 1000:
		return 25
	default:
		return 10
	}
}
