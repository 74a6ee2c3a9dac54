// Package rating implements the pairwise logistic rating update and the
// sentiment-based initialization of personal affinity.
package rating

import (
	"math"

	"github.com/okian/tastegraph/internal/domain/model"
)

// Default rating constants.
const (
	defaultGlobalK      = 20
	defaultDuelK        = 80
	defaultDislikeScore = 800
	defaultBonusBanger  = 400
	defaultBonusGood    = 200
	scaleFactor         = 400
)

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithKFactors sets the K factor for global and duel updates.
func WithKFactors(global, duel float64) Option {
	return func(c *Calculator) {
		if global > 0 {
			c.globalK = global
		}
		if duel > 0 {
			c.duelK = duel
		}
	}
}

// WithDislikeScore sets the fixed affinity assigned to a DISLIKE sentiment.
func WithDislikeScore(score int) Option {
	return func(c *Calculator) {
		if score > 0 {
			c.dislikeScore = score
		}
	}
}

// WithSentimentBonus sets the bonus added to the global score for BANGER and GOOD.
func WithSentimentBonus(banger, good int) Option {
	return func(c *Calculator) {
		c.bonus[model.SentimentBanger] = banger
		c.bonus[model.SentimentGood] = good
	}
}

// Calculator applies rating updates. It is stateless and safe for concurrent use.
type Calculator struct {
	globalK      float64
	duelK        float64
	dislikeScore int
	bonus        map[model.Sentiment]int
}

// NewCalculator creates a Calculator with default constants.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		globalK:      defaultGlobalK,
		duelK:        defaultDuelK,
		dislikeScore: defaultDislikeScore,
		bonus: map[model.Sentiment]int{
			model.SentimentBanger: defaultBonusBanger,
			model.SentimentGood:   defaultBonusGood,
			model.SentimentOkay:   0,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Expected returns the probability that a player rated a beats one rated b.
func Expected(a, b int) float64 {
	return 1 / (1 + math.Pow(10, float64(b-a)/scaleFactor))
}

// UpdateGlobal returns the new global ratings after winner beats loser.
func (c *Calculator) UpdateGlobal(winner, loser int) (int, int) {
	return update(winner, loser, c.globalK)
}

// UpdateDuel returns the new personal affinities after winner beats loser.
func (c *Calculator) UpdateDuel(winner, loser int) (int, int) {
	return update(winner, loser, c.duelK)
}

// Initialize returns the first affinity for a media the user tagged with s.
// Unknown sentiments get no bonus.
func (c *Calculator) Initialize(global int, s model.Sentiment) int {
	if s == model.SentimentDislike {
		return c.dislikeScore
	}
	return global + c.bonus[s]
}

func update(winner, loser int, k float64) (int, int) {
	expWinner := Expected(winner, loser)
	expLoser := Expected(loser, winner)
	return round(float64(winner) + k*(1-expWinner)), round(float64(loser) + k*(0-expLoser))
}

// round is half-up, so x.5 goes toward +Inf for negative deltas too.
func round(x float64) int {
	return int(math.Floor(x + 0.5))
}
