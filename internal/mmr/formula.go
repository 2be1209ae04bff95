package mmr

import (
	"math"

	"github.com/JoaoVictor-C/ArenaRanking/internal/constants"
)

// Delta computes the rating change for one participant of a settled match.
// It is pure: the same inputs always yield the same bounded integer.
//
// Players still inside their placement games get a fixed high K so their
// rating converges quickly. Established players get a dynamic K that grows
// with the gap between their rating and the lobby average, saturating below
// KFactorMax, and is further scaled when a favorite underperforms (above
// average yet out of the top half) or an underdog upsets (below average yet
// top two).
func Delta(playerMMR int, averageMMR float64, placement, gamesPlayed int) int {
	var k float64
	if gamesPlayed < constants.MinMatchesStable {
		k = constants.KFactorNewPlayer
	} else if averageMMR == 0 {
		k = constants.KFactorBase
	} else {
		diff := math.Abs(float64(playerMMR) - averageMMR)
		k = constants.KFactorBase + math.Min(
			constants.KFactorMax-constants.KFactorBase,
			(100/math.Max(1, diff))*math.Abs(math.Tanh(diff/100)),
		)

		if float64(playerMMR) > averageMMR && placement > constants.WinPlacementThreshold {
			// Favorite finishing in the bottom half loses more.
			k *= 1.2
		} else if float64(playerMMR) < averageMMR && placement <= 2 {
			// Underdog finishing top two gains more.
			k *= 1.3
		}
	}

	multiplier := constants.PlacementMultipliers[placement]

	change := int(k * multiplier)

	if change > constants.MMRChangeLimit {
		return constants.MMRChangeLimit
	}
	if change < -constants.MMRChangeLimit {
		return -constants.MMRChangeLimit
	}
	return change
}
