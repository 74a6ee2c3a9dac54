package chart

import "time"

// Option configures a Builder.
type Option func(*Builder)

// WithKFactor sets the K used when replaying duels.
func WithKFactor(k float64) Option {
	return func(b *Builder) {
		if k > 0 {
			b.kFactor = k
		}
	}
}

// WithSeeds sets the starting scores for a BANGER like, a plain like and a
// wishlist entry.
func WithSeeds(banger, like, wishlist int) Option {
	return func(b *Builder) {
		b.seedBanger, b.seedLike, b.seedWishlist = banger, like, wishlist
	}
}

// WithDefaultScore sets the score of a media that enters a duel unseeded.
func WithDefaultScore(score int) Option {
	return func(b *Builder) {
		b.defaultScore = score
	}
}

// WithDuelWindow sets the maximum gap between the two halves of a duel.
func WithDuelWindow(d time.Duration) Option {
	return func(b *Builder) {
		if d > 0 {
			b.duelWindow = d
		}
	}
}
