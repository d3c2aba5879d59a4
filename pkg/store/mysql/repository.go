package mysql

import "loadcast/pkg/config"

// Repository aggregates all MySQL repositories
type Repository struct {
	ds *Datastore

	ModelVersion *ModelVersionRepository
	PipelineRun  *PipelineRunRepository
}

// NewRepository connects to MySQL and creates the registry and run repositories
func NewRepository(cfg config.MySQLConfig) (*Repository, error) {
	ds, err := NewDatastore(cfg)
	if err != nil {
		return nil, err
	}

	return &Repository{
		ds:           ds,
		ModelVersion: NewModelVersionRepository(ds),
		PipelineRun:  NewPipelineRunRepository(ds),
	}, nil
}

// GetDatastore returns the underlying datastore for transaction support
func (r *Repository) GetDatastore() *Datastore {
	return r.ds
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.ds.Close()
}
