package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"loadcast/pkg/ml"
	"loadcast/pkg/store/mysql/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory VersionStore
type memStore struct {
	mu       sync.Mutex
	models   map[string]*model.RegisteredModel
	versions map[string][]*model.ModelVersion
}

func newMemStore() *memStore {
	return &memStore{
		models:   make(map[string]*model.RegisteredModel),
		versions: make(map[string][]*model.ModelVersion),
	}
}

func (s *memStore) Create(_ context.Context, v *model.ModelVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[v.Name]; !ok {
		s.models[v.Name] = &model.RegisteredModel{ID: int64(len(s.models) + 1), Name: v.Name}
	}
	v.Version = len(s.versions[v.Name]) + 1
	stored := *v
	s.versions[v.Name] = append(s.versions[v.Name], &stored)
	return nil
}

func (s *memStore) Get(_ context.Context, name string, version int) (*model.ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.versions[name] {
		if v.Version == version {
			out := *v
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memStore) Latest(_ context.Context, name string) (*model.ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vs := s.versions[name]
	if len(vs) == 0 {
		return nil, nil
	}
	out := *vs[len(vs)-1]
	return &out, nil
}

func (s *memStore) LatestInStage(_ context.Context, name, stage string) (*model.ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vs := s.versions[name]
	for i := len(vs) - 1; i >= 0; i-- {
		if vs[i].Stage == stage {
			out := *vs[i]
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memStore) List(_ context.Context, name string) ([]*model.ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.ModelVersion, 0)
	for i := len(s.versions[name]) - 1; i >= 0; i-- {
		v := *s.versions[name][i]
		out = append(out, &v)
	}
	return out, nil
}

func (s *memStore) ListModels(_ context.Context) ([]*model.RegisteredModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.RegisteredModel, 0, len(s.models))
	for _, m := range s.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) SetStage(_ context.Context, name string, version int, stage string, archiveOthers bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for _, v := range s.versions[name] {
		switch {
		case v.Version == version:
			v.Stage = stage
			found = true
		case archiveOthers && v.Stage == stage:
			v.Stage = model.StageArchived
		}
	}
	if !found {
		return fmt.Errorf("model %s version %d not found", name, version)
	}
	return nil
}

func newTestRegistry() (*Registry, *memStore, map[string]*ml.Pipeline) {
	store := newMemStore()
	artifacts := make(map[string]*ml.Pipeline)
	r := New(store)
	r.load = func(path string) (*ml.Pipeline, error) {
		p, ok := artifacts[path]
		if !ok {
			return nil, fmt.Errorf("no artifact at %s", path)
		}
		return p, nil
	}
	return r, store, artifacts
}

func TestParseURI(t *testing.T) {
	name, ref, err := ParseURI("models:/minecraft-model/Production")
	require.NoError(t, err)
	assert.Equal(t, "minecraft-model", name)
	assert.Equal(t, "Production", ref)

	// Names may contain slashes; the reference is the last segment
	name, ref, err = ParseURI("models:/team/lobby/3")
	require.NoError(t, err)
	assert.Equal(t, "team/lobby", name)
	assert.Equal(t, "3", ref)

	for _, uri := range []string{"minecraft-model/Production", "models:/", "models:/name", "models:/name/", "models://Production"} {
		_, _, err := ParseURI(uri)
		assert.ErrorIs(t, err, ErrInvalidReference, uri)
	}

	assert.Equal(t, "models:/m/latest", URI("m", LatestRef))
}

func TestParseStage(t *testing.T) {
	stage, err := ParseStage("production")
	require.NoError(t, err)
	assert.Equal(t, model.StageProduction, stage)

	_, err = ParseStage("Canary")
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestPublish_ArchivesPreviousProduction(t *testing.T) {
	r, store, _ := newTestRegistry()
	ctx := context.Background()

	v1, uri, err := r.Publish(ctx, "m", "/models/a.json", Metadata{RunID: "run-1", Server: "s", Metrics: map[string]float64{"r2": 0.9}})
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, model.StageProduction, v1.Stage)
	assert.Equal(t, "models:/m/Production", uri)

	v2, _, err := r.Publish(ctx, "m", "/models/b.json", Metadata{RunID: "run-2"})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	old, _ := store.Get(ctx, "m", 1)
	assert.Equal(t, model.StageArchived, old.Stage)
	assert.Equal(t, "run-1", old.RunID)
	assert.Equal(t, 0.9, old.Metrics["r2"])

	versions, err := r.Versions(ctx, "m")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)

	models, err := r.Models(ctx)
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "m", models[0].Name)
}

func TestResolve(t *testing.T) {
	r, _, _ := newTestRegistry()
	ctx := context.Background()

	_, err := r.Register(ctx, "m", "/a.json", Metadata{})
	require.NoError(t, err)
	_, _, err = r.Publish(ctx, "m", "/b.json", Metadata{})
	require.NoError(t, err)
	_, err = r.Register(ctx, "m", "/c.json", Metadata{})
	require.NoError(t, err)

	cases := map[string]int{
		"models:/m/latest":     3,
		"models:/m/LATEST":     3,
		"models:/m/1":          1,
		"models:/m/Production": 2,
		"models:/m/production": 2,
		"models:/m/None":       3,
	}
	for uri, want := range cases {
		v, err := r.Resolve(ctx, uri)
		require.NoError(t, err, uri)
		assert.Equal(t, want, v.Version, uri)
	}

	_, err = r.Resolve(ctx, "models:/m/Staging")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Resolve(ctx, "models:/m/9")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Resolve(ctx, "models:/other/latest")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Resolve(ctx, "models:/m/0")
	assert.ErrorIs(t, err, ErrInvalidReference)
	_, err = r.Resolve(ctx, "models:/m/Canary")
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestTransition(t *testing.T) {
	r, store, _ := newTestRegistry()
	ctx := context.Background()

	_, err := r.Register(ctx, "m", "/a.json", Metadata{})
	require.NoError(t, err)
	_, err = r.Register(ctx, "m", "/b.json", Metadata{})
	require.NoError(t, err)

	v, err := r.Transition(ctx, "m", 1, "staging", false)
	require.NoError(t, err)
	assert.Equal(t, model.StageStaging, v.Stage)

	// Without archiving both versions may share a stage
	_, err = r.Transition(ctx, "m", 2, model.StageStaging, false)
	require.NoError(t, err)
	first, _ := store.Get(ctx, "m", 1)
	assert.Equal(t, model.StageStaging, first.Stage)

	_, err = r.Transition(ctx, "m", 7, model.StageStaging, false)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Transition(ctx, "m", 1, "Canary", false)
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestLoad(t *testing.T) {
	r, _, artifacts := newTestRegistry()
	ctx := context.Background()

	p := &ml.Pipeline{Name: ml.RandomForestName}
	artifacts["/models/rf.json"] = p
	_, _, err := r.Publish(ctx, "m", "/models/rf.json", Metadata{})
	require.NoError(t, err)

	loaded, v, err := r.Load(ctx, "models:/m/Production")
	require.NoError(t, err)
	assert.Same(t, p, loaded)
	assert.Equal(t, 1, v.Version)

	_, err = r.Register(ctx, "m", "/models/missing.json", Metadata{})
	require.NoError(t, err)
	_, _, err = r.Load(ctx, "models:/m/latest")
	assert.Error(t, err)
}

func TestRegister_RequiresName(t *testing.T) {
	r, _, _ := newTestRegistry()
	_, err := r.Register(context.Background(), "", "/a.json", Metadata{})
	assert.Error(t, err)
}
