package repository

import (
	"context"
	"testing"

	"segment-assist/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepository(t *testing.T) AssistantRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.Assistant{}))
	return NewAssistantRepository(db)
}

func TestAssistantRepositoryCreateAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	assistant := &model.Assistant{
		Name:          "sam2-large",
		AssistantType: "sam2",
		Parameters:    model.Parameters{"ckpt_path": "/models/sam2/sam2-large/model.pt"},
	}
	require.NoError(t, repo.Create(ctx, assistant))
	assert.NotZero(t, assistant.ID)

	got, err := repo.GetByName(ctx, "sam2-large")
	require.NoError(t, err)
	assert.Equal(t, "sam2", got.AssistantType)
	assert.Equal(t, model.Parameters{"ckpt_path": "/models/sam2/sam2-large/model.pt"}, got.Parameters)

	_, err = repo.GetByNameAndType(ctx, "sam2-large", "zim")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err = repo.GetByNameAndType(ctx, "sam2-large", "sam2")
	require.NoError(t, err)
	assert.Equal(t, assistant.ID, got.ID)

	err = repo.Create(ctx, &model.Assistant{Name: "sam2-large", AssistantType: "zim"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestAssistantRepositoryGetMissing(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.GetByName(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssistantRepositoryListFiltersAndPaginates(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for _, a := range []model.Assistant{
		{Name: "sam2-a", AssistantType: "sam2"},
		{Name: "sam2-b", AssistantType: "sam2"},
		{Name: "zim-a", AssistantType: "zim"},
	} {
		require.NoError(t, repo.Create(ctx, &a))
	}

	all, total, err := repo.List(ctx, AssistantFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 3)
	assert.Equal(t, "sam2-a", all[0].Name)

	sam, total, err := repo.List(ctx, AssistantFilter{AssistantType: "sam2"}, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, sam, 1)
	assert.Equal(t, "sam2-b", sam[0].Name)

	named, _, err := repo.List(ctx, AssistantFilter{Name: "-a"}, 1, 10)
	require.NoError(t, err)
	assert.Len(t, named, 2)
}

func TestAssistantRepositoryDelete(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.Assistant{Name: "tmp", AssistantType: "zim"}))
	require.NoError(t, repo.Delete(ctx, "tmp"))
	assert.ErrorIs(t, repo.Delete(ctx, "tmp"), ErrNotFound)
}

func TestAssistantRepositoryEnsureDefaultsIsIdempotent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.EnsureDefaults(ctx, []string{"sam2", "zim"}))
	require.NoError(t, repo.EnsureDefaults(ctx, []string{"sam2", "zim"}))

	all, total, err := repo.List(ctx, AssistantFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, a := range all {
		assert.Equal(t, a.Name, a.AssistantType)
		assert.Empty(t, a.Parameters)
	}
}
