package hiscore

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseAccountType(t *testing.T) {
	t.Parallel()

	acc, err := ParseAccountType("IM")
	require.NoError(t, err)
	require.Equal(t, AccountIronman, acc)
	require.Equal(t, "im", acc.String())

	_, err = ParseAccountType("main")
	require.Error(t, err)
	require.Contains(t, err.Error(), "regular")
}

func TestCategoriesLayout(t *testing.T) {
	t.Parallel()

	overall := MustCategory("overall")
	require.True(t, overall.IsSkill())
	require.Equal(t, 0, overall.Table)
	require.Equal(t, 0, overall.CSVIndex)

	sailing := MustCategory("sailing")
	require.Equal(t, KindSkill, sailing.Kind)
	require.Equal(t, 24, sailing.Table)

	grid := MustCategory("grid_points")
	require.True(t, grid.IsMisc())
	require.Equal(t, 0, grid.Table)
	require.Equal(t, 25, grid.CSVIndex)

	require.False(t, Combat.Ranked())
	require.True(t, Combat.IsCombat())
	require.True(t, MustCategory("prayer").IsCombat())
	require.False(t, MustCategory("zulrah").IsCombat())

	_, err := ParseCategory("nope")
	require.Error(t, err)
}

func TestLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		xp      int64
		virtual bool
		want    int
	}{
		{0, false, 1},
		{82, false, 1},
		{83, false, 2},
		{1_154, false, 10},
		{13_034_430, false, 98},
		{13_034_431, false, 99},
		{200_000_000, false, 99},
		{14_391_160, true, 100},
		{200_000_000, true, 126},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("%d_%t", tt.xp, tt.virtual), func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Level(tt.xp, tt.virtual))
		})
	}
	require.Equal(t, int64(13_034_431), XPForLevel(99))
	require.Equal(t, int64(188_884_740), XPForLevel(126))
}

func TestCombatLevel(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 126.1, CombatLevel(99, 99, 99, 99, 99, 99, 99), 1e-9)
	require.InDelta(t, 3.4, CombatLevel(1, 1, 1, 10, 1, 1, 1), 1e-9)
}

func TestCategoryRecordValue(t *testing.T) {
	t.Parallel()

	attack := MustCategory("attack")
	require.Equal(t, 99.0, CategoryRecord{Score: 13_034_431, Level: 99}.Value(attack))
	require.Equal(t, 99.0, CategoryRecord{Score: 13_034_431}.Value(attack))
	require.Equal(t, 250.0, CategoryRecord{Score: 250}.Value(MustCategory("zulrah")))
}

func fullCSV(skillLevel int, zulrahKC int) string {
	lines := []string{"5,2277,4600000000"}
	for _, c := range Categories() {
		if c.CSVIndex <= 0 {
			continue
		}
		switch c.Kind {
		case KindSkill:
			lines = append(lines, fmt.Sprintf("10,%d,%d", skillLevel, XPForLevel(skillLevel)))
		case KindMisc:
			if c.Name == "zulrah" && zulrahKC > 0 {
				lines = append(lines, fmt.Sprintf("42,%d", zulrahKC))
				continue
			}
			lines = append(lines, "-1,-1")
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

func TestParsePlayerCSV(t *testing.T) {
	t.Parallel()

	ts := time.Unix(1_700_000_000, 0).UTC()
	rec, err := ParsePlayerCSV("Zezima", fullCSV(99, 500), ts)
	require.NoError(t, err)
	require.Equal(t, 5, rec.Rank)
	require.Equal(t, 2277, rec.TotalLevel)
	require.Equal(t, int64(4_600_000_000), rec.TotalXP)
	require.Len(t, rec.Skills, len(skillNames)-1)
	require.Equal(t, MiscInfo{Rank: 42, Score: 500}, rec.Misc["zulrah"])
	require.NotContains(t, rec.Misc, "vorkath")
	require.InDelta(t, 126.1, rec.CombatLevel, 1e-9)

	require.Equal(t, 2277.0, rec.Stat(MustCategory("overall")))
	require.Equal(t, 99.0, rec.Stat(MustCategory("attack")))
	require.Equal(t, 500.0, rec.Stat(MustCategory("zulrah")))
	require.Equal(t, 0.0, rec.Stat(MustCategory("vorkath")))
	require.InDelta(t, 126.1, rec.Stat(Combat), 1e-9)
}

func TestParsePlayerCSVAppendedLines(t *testing.T) {
	t.Parallel()

	rec, err := ParsePlayerCSV("Zezima", fullCSV(99, 500)+"-1,-1\n7,12\n", time.Time{})
	require.NoError(t, err)
	require.Len(t, rec.Skills, len(skillNames)-1)
	require.Equal(t, 99.0, rec.Stat(MustCategory("attack")))
	require.Equal(t, 500.0, rec.Stat(MustCategory("zulrah")))
	require.InDelta(t, 126.1, rec.CombatLevel, 1e-9)

	filters, err := ParseFilters([]string{"attack<60"})
	require.NoError(t, err)
	require.False(t, rec.Meets(filters))
}

func TestParsePlayerCSVShort(t *testing.T) {
	t.Parallel()

	_, err := ParsePlayerCSV("short", "1,32,100\n2,1,0\n", time.Time{})
	require.ErrorIs(t, err, ErrShortCSV)

	full := strings.Split(strings.TrimSpace(fullCSV(99, 0)), "\n")
	_, err = ParsePlayerCSV("short", strings.Join(full[:len(full)-1], "\n"), time.Time{})
	require.ErrorIs(t, err, ErrShortCSV)

	_, err = ParsePlayerCSV("bad", "a,b,c", time.Time{})
	require.Error(t, err)
	_, err = ParsePlayerCSV("empty", "\n", time.Time{})
	require.Error(t, err)
}

func TestParseFilterEntry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr string
		cmp  Comparator
		cat  string
		thr  float64
	}{
		{"attack<60", Lt, "attack", 60},
		{"attack <= 60", Le, "attack", 60},
		{"zulrah==100", Eq, "zulrah", 100},
		{"zulrah=100", Eq, "zulrah", 100},
		{"combat>=100.5", Ge, "combat", 100.5},
		{"overall>2000", Gt, "overall", 2000},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()
			f, err := ParseFilterEntry(tt.expr)
			require.NoError(t, err)
			require.Equal(t, tt.cmp, f.Comparator)
			require.Equal(t, tt.cat, f.Category.Name)
			require.Equal(t, tt.thr, f.Threshold)
		})
	}

	for _, bad := range []string{"attack", "<5", "nope>5", "attack>x"} {
		_, err := ParseFilterEntry(bad)
		require.Error(t, err, bad)
	}
}

func TestComparatorApply(t *testing.T) {
	t.Parallel()

	require.True(t, Lt.Apply(1, 2))
	require.False(t, Lt.Apply(2, 2))
	require.True(t, Le.Apply(2, 2))
	require.True(t, Eq.Apply(2, 2))
	require.True(t, Ge.Apply(2, 2))
	require.False(t, Gt.Apply(2, 2))
	require.True(t, Gt.Apply(3, 2))
	require.Equal(t, "attack>=60", FilterEntry{Category: MustCategory("attack"), Comparator: Ge, Threshold: 60}.String())
}

func TestPlayerMeets(t *testing.T) {
	t.Parallel()

	rec, err := ParsePlayerCSV("p", fullCSV(70, 120), time.Time{})
	require.NoError(t, err)
	filters, err := ParseFilters([]string{"zulrah>=100", "attack<=70", ""})
	require.NoError(t, err)
	require.Len(t, filters, 2)
	require.True(t, rec.Meets(filters))

	filters, err = ParseFilters([]string{"zulrah>=100", "attack>70"})
	require.NoError(t, err)
	require.False(t, rec.Meets(filters))

	filters, err = ParseFilters([]string{"vorkath==0", "vorkath<=0"})
	require.NoError(t, err)
	require.True(t, rec.Meets(filters))
}

func TestCategoryStats(t *testing.T) {
	t.Parallel()

	stats := NewCategoryStats("zulrah", time.Unix(0, 0))
	require.Equal(t, 0, stats.Summary().Count)

	for i, score := range []int64{50, 40, 30, 20, 10} {
		stats.Add(CategoryRecord{Rank: i + 1, Score: score, Username: fmt.Sprintf("u%d", i+1)})
	}
	sum := stats.Summary()
	require.Equal(t, 5, sum.Count)
	require.Equal(t, 150.0, sum.Total)
	require.Equal(t, 30.0, sum.Mean)
	require.Equal(t, 30.0, sum.Median)
	require.Equal(t, 20.0, sum.Q1)
	require.Equal(t, 40.0, sum.Q3)
	require.Equal(t, 20.0, sum.IQR)
	require.Equal(t, 200.0, sum.PopulationVariance)
	require.Equal(t, 250.0, sum.SampleVariance)
	require.Equal(t, "u1", sum.Max.Username)
	require.Equal(t, "u5", sum.Min.Username)
}
