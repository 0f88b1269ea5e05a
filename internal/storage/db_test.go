package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"arbiscout/internal"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func taskFixture(id string) internal.Task {
	now := time.Date(2026, 8, 30, 12, 0, 0, 123456000, time.UTC)
	price := internal.NewMoney(decimal.NewFromInt(1500), "RUB")
	cost := internal.CostBreakdown{
		PurchasePrice: internal.NewMoney(decimal.RequireFromString("10"), "USD"),
		LandedCost:    internal.NewMoney(decimal.RequireFromString("12.15"), "USD"),
		BreakEven:     internal.NewMoney(decimal.RequireFromString("16.64"), "USD"),
		Margin:        internal.NewMoney(decimal.RequireFromString("83.36"), "USD"),
		MarginPct:     decimal.RequireFromString("83.36"),
	}
	return internal.Task{
		ID:          id,
		RequesterID: "user-1",
		Reference:   "https://www.ozon.ru/product/widget-123/",
		State:       internal.StateCosting,
		Descriptor: &internal.ProductDescriptor{
			SourceURL:       "https://www.ozon.ru/product/widget-123/",
			ProductID:       "123",
			Title:           "Чехол для телефона",
			Price:           price,
			Characteristics: map[string]string{"Цвет": "черный"},
			ImagePrints:     []string{"a1b2c3d4e5f60718"},
			WeightGrams:     250,
		},
		Entries: []internal.ResultEntry{
			{
				Candidate: internal.Candidate{
					ListingID:    "6001",
					Title:        "手机壳 磁吸",
					UnitPrice:    internal.NewMoney(decimal.RequireFromString("71.4"), "CNY"),
					MinOrderQty:  2,
					SellerRating: 4.8,
					URL:          "https://www.1688.com/offer/6001.html",
				},
				Score: internal.MatchScore{Score: 0.82, TitleSimilarity: 0.82, DiscountRatio: 0.44, Accepted: true},
				Cost:  &cost,
			},
		},
		CreatedAt: now,
		UpdatedAt: now.Add(3 * time.Second),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	want := taskFixture("t1")
	require.NoError(t, db.SaveTask(ctx, want))

	got, err := db.LoadTask(ctx, "t1")
	require.NoError(t, err)

	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.RequesterID, got.RequesterID)
	require.Equal(t, want.Reference, got.Reference)
	require.Equal(t, want.State, got.State)
	require.Equal(t, want.Descriptor, got.Descriptor)
	require.Len(t, got.Entries, 1)
	require.True(t, got.Entries[0].Candidate.UnitPrice.Amount.Equal(want.Entries[0].Candidate.UnitPrice.Amount))
	require.Equal(t, want.Entries[0].Score, got.Entries[0].Score)
	require.True(t, got.Entries[0].Cost.MarginPct.Equal(want.Entries[0].Cost.MarginPct))
	require.True(t, want.CreatedAt.Equal(got.CreatedAt))
	require.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
}

func TestSaveTaskUpserts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	task := taskFixture("t2")
	require.NoError(t, db.SaveTask(ctx, task))

	task.State = internal.StateCompleted
	task.UpdatedAt = task.UpdatedAt.Add(time.Minute)
	require.NoError(t, db.SaveTask(ctx, task))

	got, err := db.LoadTask(ctx, "t2")
	require.NoError(t, err)
	require.Equal(t, internal.StateCompleted, got.State)
	require.True(t, task.UpdatedAt.Equal(got.UpdatedAt))
}

func TestLoadTaskNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.LoadTask(context.Background(), "missing")
	require.ErrorIs(t, err, internal.ErrTaskNotFound)
}

func TestHistoryKeepsInsertionOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	task := taskFixture("t3")
	require.NoError(t, db.SaveTask(ctx, task))

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	states := []internal.TaskState{
		internal.StateCreated, internal.StateExtracting, internal.StateSearching, internal.StateCompleted,
	}
	for i, state := range states {
		require.NoError(t, db.AppendHistory(ctx, task.ID, state, base.Add(time.Duration(i)*time.Second)))
	}

	history, err := db.History(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, history, len(states))
	for i, change := range history {
		require.Equal(t, states[i], change.State)
		require.True(t, base.Add(time.Duration(i)*time.Second).Equal(change.At))
	}
}

func TestListByStateAndUnfinished(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	created := taskFixture("t4")
	created.State = internal.StateCreated
	created.Reference = "https://www.ozon.ru/product/a-1/"
	require.NoError(t, db.SaveTask(ctx, created))

	searching := taskFixture("t5")
	searching.State = internal.StateSearching
	searching.Reference = "https://www.ozon.ru/product/b-2/"
	searching.CreatedAt = created.CreatedAt.Add(time.Second)
	require.NoError(t, db.SaveTask(ctx, searching))

	done := taskFixture("t6")
	done.State = internal.StateCompleted
	done.Reference = "https://www.ozon.ru/product/c-3/"
	require.NoError(t, db.SaveTask(ctx, done))

	pending, err := db.ListByState(ctx, internal.StateCreated, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "t4", pending[0].ID)

	unfinished, err := db.ListUnfinished(ctx)
	require.NoError(t, err)
	require.Len(t, unfinished, 2)
	require.Equal(t, "t4", unfinished[0].ID)
	require.Equal(t, "t5", unfinished[1].ID)
}
