package hiscore

import "math"

const (
	maxLevel        = 99
	maxVirtualLevel = 126
)

// xpTable[l] is the experience required to reach level l.
var xpTable = buildXPTable()

func buildXPTable() [maxVirtualLevel + 1]int64 {
	var table [maxVirtualLevel + 1]int64
	points := 0.0
	table[1] = 0
	for lvl := 1; lvl < maxVirtualLevel; lvl++ {
		points += math.Floor(float64(lvl) + 300*math.Pow(2, float64(lvl)/7))
		table[lvl+1] = int64(math.Floor(points / 4))
	}
	return table
}

// XPForLevel returns the experience needed for a level in [1, 126].
func XPForLevel(level int) int64 {
	if level < 1 {
		return 0
	}
	if level > maxVirtualLevel {
		level = maxVirtualLevel
	}
	return xpTable[level]
}

// Level converts experience to a level, capped at 99 unless virtual levels
// are requested.
func Level(xp int64, virtual bool) int {
	top := maxLevel
	if virtual {
		top = maxVirtualLevel
	}
	for lvl := 1; lvl <= top; lvl++ {
		if xp < xpTable[lvl] {
			return lvl - 1
		}
	}
	return top
}

// CombatLevel computes the combat level from the seven combat skill levels.
func CombatLevel(attack, defence, strength, hitpoints, ranged, prayer, magic int) float64 {
	base := 0.25 * float64(defence+hitpoints+prayer/2)
	melee := 0.325 * float64(attack+strength)
	rng := 0.325 * float64(ranged/2+ranged)
	mage := 0.325 * float64(magic/2+magic)
	return base + math.Max(melee, math.Max(rng, mage))
}
