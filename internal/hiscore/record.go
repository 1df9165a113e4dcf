package hiscore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CategoryRecord is one row of a leaderboard page.
type CategoryRecord struct {
	Rank     int    `json:"rank"`
	Score    int64  `json:"score"`
	Username string `json:"username"`
	// Level is the level column of skill leaderboards, zero elsewhere.
	Level int `json:"level,omitempty"`
}

// Value is the number filters compare against for this record: the level on
// skill leaderboards, the score otherwise.
func (r CategoryRecord) Value(c Category) float64 {
	if !c.IsSkill() {
		return float64(r.Score)
	}
	if r.Level > 0 {
		return float64(r.Level)
	}
	return float64(Level(r.Score, false))
}

// SkillInfo is a player's standing in one skill.
type SkillInfo struct {
	Rank  int   `json:"rank"`
	Level int   `json:"lvl"`
	XP    int64 `json:"xp"`
}

// MiscInfo is a player's standing in an activity or boss leaderboard.
type MiscInfo struct {
	Rank  int   `json:"rank"`
	Score int64 `json:"kc"`
}

// PlayerRecord is a player's full stat sheet from the CSV lookup endpoint.
type PlayerRecord struct {
	Rank        int                  `json:"rank"`
	Username    string               `json:"username"`
	Timestamp   time.Time            `json:"timestamp"`
	TotalLevel  int                  `json:"total_level"`
	CombatLevel float64              `json:"combat_lvl"`
	TotalXP     int64                `json:"total_xp"`
	Skills      map[string]SkillInfo `json:"skills"`
	Misc        map[string]MiscInfo  `json:"misc"`
}

// ErrShortCSV is returned when a player CSV has fewer lines than there are
// known categories.
var ErrShortCSV = errors.New("player csv is missing categories")

// ParsePlayerCSV builds a PlayerRecord from the lookup endpoint body. Lines
// are read by category position; lines past the known categories are
// ignored so newly added leaderboards do not break parsing.
func ParsePlayerCSV(username, body string, ts time.Time) (*PlayerRecord, error) {
	lines := splitLines(body)
	if len(lines) == 0 {
		return nil, fmt.Errorf("empty player csv")
	}
	if len(lines) < CSVLen() {
		return nil, fmt.Errorf("%d of %d lines: %w", len(lines), CSVLen(), ErrShortCSV)
	}
	overall, err := parseInts(lines[0], 3)
	if err != nil {
		return nil, fmt.Errorf("overall line: %w", err)
	}
	rec := &PlayerRecord{
		Rank:       int(overall[0]),
		Username:   username,
		Timestamp:  ts,
		TotalLevel: int(overall[1]),
		TotalXP:    overall[2],
		Skills:     map[string]SkillInfo{},
		Misc:       map[string]MiscInfo{},
	}
	for _, c := range categories {
		if c.CSVIndex <= 0 {
			continue
		}
		switch c.Kind {
		case KindSkill:
			vals, err := parseInts(lines[c.CSVIndex], 3)
			if err != nil {
				return nil, fmt.Errorf("%s line: %w", c.Name, err)
			}
			rec.Skills[c.Name] = SkillInfo{Rank: int(vals[0]), Level: int(vals[1]), XP: vals[2]}
		case KindMisc:
			vals, err := parseInts(lines[c.CSVIndex], 2)
			if err != nil {
				return nil, fmt.Errorf("%s line: %w", c.Name, err)
			}
			// A score can be present while the rank is unknown (-1).
			if vals[1] <= 0 {
				continue
			}
			rec.Misc[c.Name] = MiscInfo{Rank: int(vals[0]), Score: vals[1]}
		}
	}

	rec.CombatLevel = CombatLevel(
		rec.Skills["attack"].Level,
		rec.Skills["defence"].Level,
		rec.Skills["strength"].Level,
		rec.Skills["hitpoints"].Level,
		rec.Skills["ranged"].Level,
		rec.Skills["prayer"].Level,
		rec.Skills["magic"].Level,
	)
	return rec, nil
}

// Stat returns the value of a category for this player. Activities and
// bosses the player has no score in count as 0.
func (p *PlayerRecord) Stat(c Category) float64 {
	switch {
	case c.Name == "overall":
		return float64(p.TotalLevel)
	case c.Kind == KindDerived:
		return p.CombatLevel
	case c.IsSkill():
		if s, ok := p.Skills[c.Name]; ok {
			return float64(s.Level)
		}
	case c.IsMisc():
		return float64(p.Misc[c.Name].Score)
	}
	return -1
}

// Meets reports whether the player satisfies every filter.
func (p *PlayerRecord) Meets(filters []FilterEntry) bool {
	for _, f := range filters {
		if !f.Match(p.Stat(f.Category)) {
			return false
		}
	}
	return true
}

func splitLines(body string) []string {
	raw := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func parseInts(line string, want int) ([]int64, error) {
	parts := strings.Split(line, ",")
	if len(parts) < want {
		return nil, fmt.Errorf("expected %d fields, got %d", want, len(parts))
	}
	out := make([]int64, want)
	for i := 0; i < want; i++ {
		v, err := strconv.ParseInt(strings.TrimSpace(parts[i]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
