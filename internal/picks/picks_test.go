package picks

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tailgame/internal/contracts"
)

func samplePick(date string, kind contracts.PickKind, code string) *contracts.Pick {
	at, _ := time.Parse("2006-01-02 15:04", date+" 13:35")
	return &contracts.Pick{
		TradeDate:    date,
		Kind:         kind,
		Code:         code,
		Name:         "测试" + code,
		Price:        10.5,
		ChangePct:    2.3,
		Amount:       3e8,
		Composite:    0.71,
		RiskAdjusted: 0.69,
		Sector:       "半导体",
		Source:       contracts.SourceEastmoney,
		Time:         at,
		Auto:         true,
	}
}

func exerciseStore(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.GetPick(ctx, "2024-05-06", contracts.PickFirst)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SavePick(ctx, samplePick("2024-05-06", contracts.PickFirst, "600000")))
	require.NoError(t, store.SavePick(ctx, samplePick("2024-05-06", contracts.PickFinal, "000001")))
	require.NoError(t, store.SavePick(ctx, samplePick("2024-05-07", contracts.PickFirst, "300750")))

	// upsert replaces
	require.NoError(t, store.SavePick(ctx, samplePick("2024-05-06", contracts.PickFirst, "601318")))
	got, err := store.GetPick(ctx, "2024-05-06", contracts.PickFirst)
	require.NoError(t, err)
	assert.Equal(t, "601318", got.Code)
	assert.Equal(t, contracts.SourceEastmoney, got.Source)

	list, err := store.ListPicks(ctx, "2024-05-01", "2024-05-31")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "2024-05-07", list[0].TradeDate)
	assert.Equal(t, contracts.PickFirst, list[1].Kind, "first sorts before final within a day")

	list, err = store.ListPicks(ctx, "2024-05-07", "2024-05-07")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.DeletePicks(ctx, "2024-05-06"))
	list, err = store.ListPicks(ctx, "2024-05-01", "2024-05-31")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.SaveCycle(ctx, &contracts.CycleSummary{
			TradeDate:     "2024-05-06",
			At:            time.Date(2024, 5, 6, 13, 30+i, 0, 0, time.UTC),
			Source:        contracts.SourceSina,
			Status:        contracts.StatusRealData,
			Total:         5000 + i,
			CandidateCode: "600000",
			Duration:      1500 * time.Millisecond,
		}))
	}
	cycles, err := store.ListCycles(ctx, "2024-05-06", 2)
	require.NoError(t, err)
	require.Len(t, cycles, 2)
	assert.Equal(t, 5002, cycles[0].Total)
	assert.Equal(t, 1500*time.Millisecond, cycles[0].Duration)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCycleBound(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < maxCyclesPerDay+10; i++ {
		require.NoError(t, store.SaveCycle(ctx, &contracts.CycleSummary{TradeDate: "2024-05-06", Total: i}))
	}
	cycles, err := store.ListCycles(ctx, "2024-05-06", 0)
	require.NoError(t, err)
	assert.Len(t, cycles, maxCyclesPerDay)
	assert.Equal(t, maxCyclesPerDay+9, cycles[0].Total)
}

func TestMemoryStoreDropsOldDays(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < maxCycleDays+3; i++ {
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		require.NoError(t, store.SaveCycle(ctx, &contracts.CycleSummary{TradeDate: date, Total: i}))
		require.NoError(t, store.SaveCycle(ctx, &contracts.CycleSummary{TradeDate: date, Total: i}))
	}
	assert.Len(t, store.cycles, maxCycleDays)

	cycles, err := store.ListCycles(ctx, "2024-05-01", 0)
	require.NoError(t, err)
	assert.Empty(t, cycles)

	newest := start.AddDate(0, 0, maxCycleDays+2).Format("2006-01-02")
	cycles, err = store.ListCycles(ctx, newest, 0)
	require.NoError(t, err)
	assert.Len(t, cycles, 2)
}

func TestSchema(t *testing.T) {
	assert.Contains(t, Schema(), "tailgame.picks")
	assert.Contains(t, Schema(), "PRIMARY KEY (trade_date, kind)")
}

func TestRepositoryIntegration(t *testing.T) {
	dsn := os.Getenv("TAILGAME_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TAILGAME_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	repo := NewRepository(pool)
	require.NoError(t, repo.Migrate(ctx))
	_, err = pool.Exec(ctx, "TRUNCATE tailgame.picks, tailgame.cycles")
	require.NoError(t, err)

	exerciseStore(t, repo)
}
