// Package registry versions trained models and resolves model URIs of the
// form models:/<name>/<stage|latest|version>.
package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"loadcast/pkg/artifact"
	"loadcast/pkg/logger"
	"loadcast/pkg/ml"
	"loadcast/pkg/store/mysql/model"
)

// URIScheme prefixes every model URI.
const URIScheme = "models:/"

// LatestRef selects the highest version regardless of stage.
const LatestRef = "latest"

var (
	// ErrNotFound is returned when a URI or version matches nothing.
	ErrNotFound = fmt.Errorf("model version not found")
	// ErrInvalidReference is returned for malformed URIs and unknown stages.
	ErrInvalidReference = fmt.Errorf("invalid model reference")
)

// VersionStore persists registered models and their versions.
type VersionStore interface {
	Create(ctx context.Context, v *model.ModelVersion) error
	Get(ctx context.Context, name string, version int) (*model.ModelVersion, error)
	Latest(ctx context.Context, name string) (*model.ModelVersion, error)
	LatestInStage(ctx context.Context, name, stage string) (*model.ModelVersion, error)
	List(ctx context.Context, name string) ([]*model.ModelVersion, error)
	ListModels(ctx context.Context) ([]*model.RegisteredModel, error)
	SetStage(ctx context.Context, name string, version int, stage string, archiveOthers bool) error
}

// Registry is the model registry.
type Registry struct {
	store VersionStore
	load  func(path string) (*ml.Pipeline, error)
}

// New creates a registry over store.
func New(store VersionStore) *Registry {
	return &Registry{store: store, load: artifact.LoadModel}
}

// Metadata describes the run that produced a version.
type Metadata struct {
	RunID   string
	Server  string
	Metrics map[string]float64
}

// ParseStage validates a stage name, accepting any letter case.
func ParseStage(s string) (string, error) {
	for _, stage := range []string{model.StageNone, model.StageStaging, model.StageProduction, model.StageArchived} {
		if strings.EqualFold(s, stage) {
			return stage, nil
		}
	}
	return "", fmt.Errorf("%w: unknown stage %q", ErrInvalidReference, s)
}

// URI returns the URI that selects the given reference of a model.
func URI(name, ref string) string {
	return URIScheme + name + "/" + ref
}

// ParseURI splits a model URI into model name and reference.
func ParseURI(uri string) (name, ref string, err error) {
	rest, ok := strings.CutPrefix(uri, URIScheme)
	if !ok {
		return "", "", fmt.Errorf("%w: %q lacks the %s prefix", ErrInvalidReference, uri, URIScheme)
	}
	i := strings.LastIndex(rest, "/")
	if i <= 0 || i == len(rest)-1 {
		return "", "", fmt.Errorf("%w: %q, want %s<name>/<stage|latest|version>", ErrInvalidReference, uri, URIScheme)
	}
	return rest[:i], rest[i+1:], nil
}

// Register stores an artifact as the next version of name, in stage None.
func (r *Registry) Register(ctx context.Context, name, artifactPath string, meta Metadata) (*model.ModelVersion, error) {
	if name == "" {
		return nil, fmt.Errorf("model name is required")
	}
	v := &model.ModelVersion{
		Name:         name,
		Stage:        model.StageNone,
		ArtifactPath: artifactPath,
		RunID:        meta.RunID,
		Server:       meta.Server,
		Metrics:      model.FloatMapToJSONMap(meta.Metrics),
	}
	if err := r.store.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", name, err)
	}
	logger.InfoCtx(ctx, "registered %s version %d (%s)", name, v.Version, artifactPath)
	return v, nil
}

// Transition moves a version to stage. With archiveExisting, versions already
// in that stage are archived.
func (r *Registry) Transition(ctx context.Context, name string, version int, stage string, archiveExisting bool) (*model.ModelVersion, error) {
	stage, err := ParseStage(stage)
	if err != nil {
		return nil, err
	}
	v, err := r.store.Get(ctx, name, version)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%s version %d: %w", name, version, ErrNotFound)
	}
	if err := r.store.SetStage(ctx, name, version, stage, archiveExisting); err != nil {
		return nil, err
	}
	v.Stage = stage
	logger.InfoCtx(ctx, "%s version %d moved to %s", name, version, stage)
	return v, nil
}

// Publish registers an artifact and promotes it to Production, archiving the
// previous Production version. It returns the new version and the URI that
// serves it.
func (r *Registry) Publish(ctx context.Context, name, artifactPath string, meta Metadata) (*model.ModelVersion, string, error) {
	v, err := r.Register(ctx, name, artifactPath, meta)
	if err != nil {
		return nil, "", err
	}
	v, err = r.Transition(ctx, name, v.Version, model.StageProduction, true)
	if err != nil {
		return nil, "", err
	}
	return v, URI(name, model.StageProduction), nil
}

// Resolve returns the version a URI points at.
func (r *Registry) Resolve(ctx context.Context, uri string) (*model.ModelVersion, error) {
	name, ref, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	var v *model.ModelVersion
	if strings.EqualFold(ref, LatestRef) {
		v, err = r.store.Latest(ctx, name)
	} else if n, convErr := strconv.Atoi(ref); convErr == nil {
		if n <= 0 {
			return nil, fmt.Errorf("%w: %q, version must be positive", ErrInvalidReference, uri)
		}
		v, err = r.store.Get(ctx, name, n)
	} else {
		stage, stageErr := ParseStage(ref)
		if stageErr != nil {
			return nil, fmt.Errorf("%s: %w", uri, stageErr)
		}
		v, err = r.store.LatestInStage(ctx, name, stage)
	}
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%s: %w", uri, ErrNotFound)
	}
	return v, nil
}

// Load resolves a URI and reads the artifact it points at.
func (r *Registry) Load(ctx context.Context, uri string) (*ml.Pipeline, *model.ModelVersion, error) {
	v, err := r.Resolve(ctx, uri)
	if err != nil {
		return nil, nil, err
	}
	p, err := r.load(v.ArtifactPath)
	if err != nil {
		return nil, nil, err
	}
	return p, v, nil
}

// Versions lists the versions of a model, newest first.
func (r *Registry) Versions(ctx context.Context, name string) ([]*model.ModelVersion, error) {
	return r.store.List(ctx, name)
}

// Models lists the registered models.
func (r *Registry) Models(ctx context.Context) ([]*model.RegisteredModel, error) {
	return r.store.ListModels(ctx)
}
