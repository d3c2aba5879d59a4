package mysql

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var registrySchema = []string{
	`CREATE TABLE registered_models (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name VARCHAR(255) NOT NULL UNIQUE,
		description VARCHAR(500) NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE model_versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name VARCHAR(255) NOT NULL,
		version INTEGER NOT NULL,
		stage VARCHAR(32) NOT NULL DEFAULT 'None',
		artifact_path VARCHAR(1024) NOT NULL,
		run_id VARCHAR(64) NOT NULL DEFAULT '',
		server VARCHAR(255) NOT NULL DEFAULT '',
		metrics TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (name, version)
	)`,
}

// newTestDatastore opens a file-backed SQLite database with the registry
// tables. One connection keeps transactions serialized.
func newTestDatastore(t *testing.T) *Datastore {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "registry.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	for _, stmt := range registrySchema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return &Datastore{db: db}
}

func createVersion(t *testing.T, repo *ModelVersionRepository, name, path string) *ModelVersion {
	v := &ModelVersion{Name: name, ArtifactPath: path, Stage: StageNone, Metrics: JSONMap{"RandomForest.r2": 0.9}}
	require.NoError(t, repo.Create(context.Background(), v))
	return v
}

func TestModelVersionRepository_VersionNumbering(t *testing.T) {
	repo := NewModelVersionRepository(newTestDatastore(t))
	ctx := context.Background()

	assert.Equal(t, 1, createVersion(t, repo, "loadcast", "a.json").Version)
	assert.Equal(t, 2, createVersion(t, repo, "loadcast", "b.json").Version)
	// Numbering is per model
	assert.Equal(t, 1, createVersion(t, repo, "other", "c.json").Version)
	assert.Equal(t, 3, createVersion(t, repo, "loadcast", "d.json").Version)

	models, err := repo.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "loadcast", models[0].Name)
	assert.Equal(t, "other", models[1].Name)

	latest, err := repo.Latest(ctx, "loadcast")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 3, latest.Version)
	assert.Equal(t, "d.json", latest.ArtifactPath)
	assert.Equal(t, 0.9, latest.Metrics["RandomForest.r2"])

	versions, err := repo.List(ctx, "loadcast")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{versions[0].Version, versions[1].Version, versions[2].Version})

	missing, err := repo.Get(ctx, "loadcast", 9)
	require.NoError(t, err)
	assert.Nil(t, missing)

	none, err := repo.Latest(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestModelVersionRepository_ConcurrentCreates(t *testing.T) {
	repo := NewModelVersionRepository(newTestDatastore(t))

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.Create(context.Background(), &ModelVersion{Name: "loadcast", ArtifactPath: "m.json"}))
		}()
	}
	wg.Wait()

	versions, err := repo.List(context.Background(), "loadcast")
	require.NoError(t, err)
	require.Len(t, versions, 6)
	for i, v := range versions {
		assert.Equal(t, 6-i, v.Version)
	}
}

func TestModelVersionRepository_SetStage(t *testing.T) {
	repo := NewModelVersionRepository(newTestDatastore(t))
	ctx := context.Background()
	for _, path := range []string{"a.json", "b.json", "c.json"} {
		createVersion(t, repo, "loadcast", path)
	}

	stageOf := func(version int) string {
		v, err := repo.Get(ctx, "loadcast", version)
		require.NoError(t, err)
		require.NotNil(t, v)
		return v.Stage
	}

	require.NoError(t, repo.SetStage(ctx, "loadcast", 1, StageProduction, true))
	require.NoError(t, repo.SetStage(ctx, "loadcast", 2, StageProduction, true))
	assert.Equal(t, StageArchived, stageOf(1))
	assert.Equal(t, StageProduction, stageOf(2))
	assert.Equal(t, StageNone, stageOf(3))

	prod, err := repo.LatestInStage(ctx, "loadcast", StageProduction)
	require.NoError(t, err)
	require.NotNil(t, prod)
	assert.Equal(t, 2, prod.Version)

	// Without archiving, versions share the stage
	require.NoError(t, repo.SetStage(ctx, "loadcast", 3, StageStaging, false))
	require.NoError(t, repo.SetStage(ctx, "loadcast", 1, StageStaging, false))
	assert.Equal(t, StageStaging, stageOf(1))
	assert.Equal(t, StageStaging, stageOf(3))
	assert.Equal(t, StageProduction, stageOf(2))

	// A missing version rolls back the archive step
	err = repo.SetStage(ctx, "loadcast", 9, StageProduction, true)
	assert.ErrorContains(t, err, "not found")
	assert.Equal(t, StageProduction, stageOf(2))

	none, err := repo.LatestInStage(ctx, "other", StageProduction)
	require.NoError(t, err)
	assert.Nil(t, none)
}
