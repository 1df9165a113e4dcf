package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
	"github.com/JakeFAU/hiscore-crawler/internal/job"
	"github.com/JakeFAU/hiscore-crawler/internal/queue/memory"
)

func resolvedPage(t *testing.T, ranks ...int) *job.PageJob {
	t.Helper()
	records := make([]hiscore.CategoryRecord, 0, len(ranks))
	for _, r := range ranks {
		records = append(records, hiscore.CategoryRecord{Rank: r, Username: "p" + string(rune('a'+r%26))})
	}
	j := &job.PageJob{
		Page:      1,
		StartRank: ranks[0],
		EndRank:   ranks[0] + len(ranks) - 1,
		EndIdx:    len(ranks),
		Account:   hiscore.AccountIronman,
	}
	require.True(t, j.SetResult(records))
	return j
}

func TestExpandEnqueuesOneLookupPerRank(t *testing.T) {
	t.Parallel()

	out := memory.NewQueue[*job.LookupJob](0)
	err := Expand{Out: out}.Emit(context.Background(), resolvedPage(t, 4, 5, 6))
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())

	for want := 4; want <= 6; want++ {
		lj, err := out.Dequeue(context.Background())
		require.NoError(t, err)
		require.Equal(t, want, lj.Priority())
		require.Equal(t, want, lj.Rank)
		require.Equal(t, hiscore.AccountIronman, lj.Account)
	}
}

func TestExpandRejectsGaps(t *testing.T) {
	t.Parallel()

	out := memory.NewQueue[*job.LookupJob](0)
	page := resolvedPage(t, 1, 2, 4)
	err := Expand{Out: out}.Emit(context.Background(), page)
	require.ErrorIs(t, err, ErrPriorityGap)
	require.Zero(t, out.Len())

	err = Expand{Out: out}.Skip(context.Background(), page)
	require.ErrorIs(t, err, ErrPriorityGap)
}

func TestFilterForwardSendsNilForMisses(t *testing.T) {
	t.Parallel()

	filters, err := hiscore.ParseFilters([]string{"attack>=90"})
	require.NoError(t, err)

	out := make(chan *job.LookupJob, 3)
	emitter := FilterForward{Out: out, Filters: filters}

	hit := &job.LookupJob{Seq: 1, Username: "hit"}
	require.True(t, hit.SetResult(&hiscore.PlayerRecord{
		Username: "hit",
		Skills:   map[string]hiscore.SkillInfo{"attack": {Rank: 10, Level: 99, XP: 13_034_431}},
	}))
	miss := &job.LookupJob{Seq: 2, Username: "miss"}
	require.True(t, miss.SetResult(&hiscore.PlayerRecord{
		Username: "miss",
		Skills:   map[string]hiscore.SkillInfo{"attack": {Rank: 900, Level: 60, XP: 273_742}},
	}))

	ctx := context.Background()
	require.NoError(t, emitter.Emit(ctx, hit))
	require.NoError(t, emitter.Emit(ctx, miss))
	require.NoError(t, emitter.Skip(ctx, &job.LookupJob{Seq: 3}))

	require.Same(t, hit, <-out)
	require.Nil(t, <-out)
	require.Nil(t, <-out)
}

func TestEmitHonorsCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Forward[*job.PageJob]{Out: make(chan *job.PageJob)}.Emit(ctx, &job.PageJob{Page: 1})
	require.ErrorIs(t, err, context.Canceled)
}
