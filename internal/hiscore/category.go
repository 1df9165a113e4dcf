package hiscore

import (
	"fmt"
	"strings"
)

// Kind tells which hiscore table a category lives in.
type Kind int

// Category kinds. The numeric value of KindSkill and KindMisc is the
// category_type query parameter of the leaderboard page.
const (
	KindSkill Kind = iota
	KindMisc
	KindDerived
)

// Category is a single hiscore leaderboard.
type Category struct {
	Name string
	Kind Kind
	// Table is the table query parameter within the kind.
	Table int
	// CSVIndex is the line of the player CSV holding this category, -1 when
	// the category is not present in the CSV.
	CSVIndex int
}

var skillNames = []string{
	"overall", "attack", "defence", "strength", "hitpoints", "ranged", "prayer",
	"magic", "cooking", "woodcutting", "fletching", "fishing", "firemaking",
	"crafting", "smithing", "mining", "herblore", "agility", "thieving", "slayer",
	"farming", "runecrafting", "hunter", "construction", "sailing",
}

var miscNames = []string{
	"grid_points", "league_points", "dmm", "bh_hunter", "bh_rogue",
	"bh_legacy_hunter", "bh_legacy_rogue", "clue_all", "clue_beginner",
	"clue_easy", "clue_medium", "clue_hard", "clue_elite", "clue_master",
	"lms_rank", "pvp_arena_rank", "sw_zeal", "rifts_closed", "colosseum_glory",
	"collections_logged",
	// bosses
	"sire", "hydra", "amoxliatl", "araxxor", "artio", "barrows_chests",
	"bryophyta", "callisto", "calvarion", "cerberus", "cox", "cox_cm",
	"chaos_elemental", "chaos_fanatic", "saradomin", "corp",
	"crazy_archaeologist", "dks_prime", "dks_rex", "dks_supreme",
	"deranged_archaeologist", "doom_mokhaiotl", "duke", "bandos", "giant_mole",
	"gg", "hespori", "kq", "kbd", "kraken", "armadyl", "zamorak",
	"lunar_chests", "mimic", "nex", "nightmare", "psn", "obor",
	"phantom_muspah", "sarachnis", "scorpia", "scurrius", "shellbane_gryphon",
	"skotizo", "sol", "spindel", "tempoross", "gauntlet", "cg", "hueycoatl",
	"leviathan", "royal_titans", "whisperer", "tob", "hmt", "thermy", "toa",
	"toa_em", "zuk", "jad", "vardorvis", "venenatis", "vetion", "vorkath",
	"wt", "yama", "zalcano", "zulrah",
}

var combatSkills = map[string]struct{}{
	"attack": {}, "defence": {}, "strength": {}, "hitpoints": {},
	"ranged": {}, "prayer": {}, "magic": {}, "combat": {},
}

// Combat is the derived combat level category. It has no leaderboard.
var Combat = Category{Name: "combat", Kind: KindDerived, Table: -1, CSVIndex: -1}

var (
	categories      []Category
	categoriesByKey map[string]Category
)

func init() {
	categories = make([]Category, 0, len(skillNames)+len(miscNames)+1)
	csv := 0
	for i, name := range skillNames {
		categories = append(categories, Category{Name: name, Kind: KindSkill, Table: i, CSVIndex: csv})
		csv++
	}
	for i, name := range miscNames {
		categories = append(categories, Category{Name: name, Kind: KindMisc, Table: i, CSVIndex: csv})
		csv++
	}
	categories = append(categories, Combat)

	categoriesByKey = make(map[string]Category, len(categories))
	for _, c := range categories {
		categoriesByKey[c.Name] = c
	}
}

// Categories returns every known category in CSV order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// CSVLen is the number of lines a complete player CSV carries.
func CSVLen() int {
	return len(skillNames) + len(miscNames)
}

// ParseCategory resolves a category by name.
func ParseCategory(name string) (Category, error) {
	c, ok := categoriesByKey[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Category{}, fmt.Errorf("unknown category %q", name)
	}
	return c, nil
}

// MustCategory is ParseCategory for names known at compile time.
func MustCategory(name string) Category {
	c, err := ParseCategory(name)
	if err != nil {
		panic(err)
	}
	return c
}

// IsSkill reports whether the category is a skill leaderboard.
func (c Category) IsSkill() bool { return c.Kind == KindSkill }

// IsMisc reports whether the category is a minigame, activity or boss leaderboard.
func (c Category) IsMisc() bool { return c.Kind == KindMisc }

// IsCombat reports whether the category feeds the combat level formula.
func (c Category) IsCombat() bool {
	_, ok := combatSkills[c.Name]
	return ok
}

// Ranked reports whether the category has a leaderboard that can be paged.
func (c Category) Ranked() bool { return c.Kind != KindDerived }

// String implements fmt.Stringer.
func (c Category) String() string { return c.Name }
