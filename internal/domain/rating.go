package domain

import "fmt"

// Rating is the user's self-assessed recall quality for one card.
type Rating int

// Possible rating values. The scale is 0..3 with Good as the first "success" grade.
const (
	RatingAgain Rating = 0
	RatingHard  Rating = 1
	RatingGood  Rating = 2
	RatingEasy  Rating = 3
)

// NeutralRating is the midpoint of the rating scale. Initial stability and
// difficulty are linear in the distance from it.
const NeutralRating = (float64(RatingAgain) + float64(RatingEasy)) / 2

// Valid reports whether r is one of the four defined ratings.
func (r Rating) Valid() bool {
	return r >= RatingAgain && r <= RatingEasy
}

// IsSuccess reports whether r counts as a successful recall (Good or Easy).
func (r Rating) IsSuccess() bool {
	return r >= RatingGood
}

// String returns the lowercase name of the rating.
func (r Rating) String() string {
	switch r {
	case RatingAgain:
		return "again"
	case RatingHard:
		return "hard"
	case RatingGood:
		return "good"
	case RatingEasy:
		return "easy"
	default:
		return fmt.Sprintf("rating(%d)", int(r))
	}
}

// Tier is a user class that determines daily quotas.
type Tier string

// Supported tiers.
const (
	TierFree  Tier = "free"
	TierPaid  Tier = "paid"
	TierAdmin Tier = "admin"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPaid, TierAdmin:
		return true
	default:
		return false
	}
}
