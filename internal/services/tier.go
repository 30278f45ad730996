package services

import "github.com/fompt/backend/internal/models"

// Tier thresholds on total transaction count (sales + purchases).
const (
	silverThreshold   = 5
	goldThreshold     = 15
	platinumThreshold = 30
)

// CalculateTier maps a cumulative transaction count to a rank. Pure
// function; callers recompute the tier from the counters on every change
// instead of patching it incrementally, so it can never drift.
func CalculateTier(totalTransactions int) models.Tier {
	switch {
	case totalTransactions >= platinumThreshold:
		return models.TierPlatinum
	case totalTransactions >= goldThreshold:
		return models.TierGold
	case totalTransactions >= silverThreshold:
		return models.TierSilver
	default:
		return models.TierBronze
	}
}
