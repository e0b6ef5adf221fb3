package repository

import (
	"context"
	"testing"

	"github.com/smallbiznis/pricebook/pkg/db/dbtest"
	"github.com/smallbiznis/pricebook/pkg/db/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type widget struct {
	ID    int64  `gorm:"primaryKey"`
	Code  string `gorm:"uniqueIndex"`
	Price int64
}

func setupStore(t *testing.T) (Repository[widget], *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t, &widget{})
	return ProvideStore[widget](db), db
}

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)

	require.NoError(t, store.BatchCreate(ctx, []*widget{
		{ID: 1, Code: "a", Price: 100},
		{ID: 2, Code: "b", Price: 250},
		{ID: 3, Code: "c", Price: 400},
	}))

	found, err := store.FindOne(ctx, &widget{Code: "b"})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, int64(250), found.Price)

	missing, err := store.FindOne(ctx, &widget{Code: "zz"})
	require.NoError(t, err)
	assert.Nil(t, missing)

	expensive, err := store.Find(ctx, nil,
		option.ApplyOperator("price", option.GreaterOrEqual, 250),
		option.WithSortBy("price desc"),
	)
	require.NoError(t, err)
	require.Len(t, expensive, 2)
	assert.Equal(t, "c", expensive[0].Code)

	require.NoError(t, store.Update(ctx, int64(1), map[string]any{"price": 150}))
	updated, err := store.FindOne(ctx, &widget{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(150), updated.Price)
}

func TestUpdateIfHonoursGuards(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)
	require.NoError(t, store.Create(ctx, &widget{ID: 5, Code: "draft", Price: 10}))

	changed, err := store.UpdateIf(ctx, int64(5), map[string]any{"price": 20},
		option.ApplyOperator("code", option.In, []string{"open", "paid"}),
	)
	require.NoError(t, err)
	assert.Zero(t, changed)

	changed, err = store.UpdateIf(ctx, int64(5), map[string]any{"price": 20},
		option.ApplyOperator("code", option.In, []string{"draft", "open"}),
	)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	found, err := store.FindOne(ctx, &widget{ID: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(20), found.Price)
}

func TestInvalidFilterColumnIsRejected(t *testing.T) {
	store, _ := setupStore(t)
	_, err := store.Find(context.Background(), nil, option.ApplyOperator("price; drop table", option.Equal, 1))
	assert.Error(t, err)
}

func TestWithTrxRollsBack(t *testing.T) {
	ctx := context.Background()
	store, db := setupStore(t)

	tx := db.Begin()
	require.NoError(t, store.WithTrx(tx).Create(ctx, &widget{ID: 9, Code: "tx", Price: 1}))
	require.NoError(t, tx.Rollback().Error)

	found, err := store.FindOne(ctx, &widget{ID: 9})
	require.NoError(t, err)
	assert.Nil(t, found)
}
