package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/c360/schemaregistry/compat"
	"github.com/c360/schemaregistry/errors"
	"github.com/c360/schemaregistry/notify"
	"github.com/c360/schemaregistry/schema"
)

// VersionList is the ascending version history of an id plus the version
// latest points at.
type VersionList struct {
	Versions []string `json:"versions"`
	Latest   string   `json:"latest"`
}

// Get returns id at version v, or latest when v is empty.
func (r *Registry) Get(ctx context.Context, id, v string) (rec *schema.Record, err error) {
	start := time.Now()
	defer func() { r.metrics.RecordOperation(OpGet, outcome(err), time.Since(start)) }()

	return r.store.Get(ctx, id, v)
}

// ListIDs returns every schema id, sorted.
func (r *Registry) ListIDs(ctx context.Context) (ids []string, err error) {
	start := time.Now()
	defer func() { r.metrics.RecordOperation(OpListIDs, outcome(err), time.Since(start)) }()

	return r.store.ListIDs(ctx)
}

// ListVersions returns the versions of id. An unknown id yields an empty list
// and an empty Latest.
func (r *Registry) ListVersions(ctx context.Context, id string) (list VersionList, err error) {
	start := time.Now()
	defer func() { r.metrics.RecordOperation(OpListVersions, outcome(err), time.Since(start)) }()

	versions, err := r.store.ListVersions(ctx, id)
	if err != nil {
		return VersionList{}, err
	}
	list = VersionList{Versions: versions}
	if len(versions) == 0 {
		return list, nil
	}

	latest, err := r.store.Get(ctx, id, "")
	switch {
	case err == nil:
		list.Latest = latest.Schema.Version
	case errors.IsNotFound(err):
		list.Latest = versions[len(versions)-1]
	default:
		return VersionList{}, err
	}
	return list, nil
}

// Delete removes one version of id, or all of them when v is empty, and
// publishes a deleted update. It reports whether anything was removed.
func (r *Registry) Delete(ctx context.Context, id, v string) (deleted bool, err error) {
	start := time.Now()
	defer func() { r.metrics.RecordOperation(OpDelete, outcome(err), time.Since(start)) }()

	unlock, err := r.locks.lock(ctx, id)
	if err != nil {
		return false, errors.WrapStore(err, "registry", "Delete", "acquire schema lock")
	}
	defer unlock()

	deleted, err = r.store.Delete(ctx, id, v)
	if deleted {
		r.publish(notify.NewSchemaUpdate(id, v, notify.ActionDeleted, nil))
		r.count(ctx, CounterDeletes)
		r.logger.Info("schema deleted", "schema", id, "version", v)
	}
	return deleted, err
}

// CheckVersions runs the compatibility check from version from to version to.
func (r *Registry) CheckVersions(ctx context.Context, id, from, to string) (report compat.Report, err error) {
	start := time.Now()
	defer func() { r.metrics.RecordOperation(OpCheckVersions, outcome(err), time.Since(start)) }()

	oldRec, newRec, err := r.pair(ctx, "CheckVersions", id, from, to)
	if err != nil {
		return compat.Report{}, err
	}

	report = r.checker.Check(&oldRec.Schema, &newRec.Schema)
	r.metrics.RecordCompatCheck(report.HasBreakingChanges())
	r.count(ctx, CounterCompatCheck)
	return report, nil
}

// DiffVersions returns every change from version from to version to.
func (r *Registry) DiffVersions(ctx context.Context, id, from, to string) (diff compat.SchemaDiff, err error) {
	start := time.Now()
	defer func() { r.metrics.RecordOperation(OpDiffVersions, outcome(err), time.Since(start)) }()

	oldRec, newRec, err := r.pair(ctx, "DiffVersions", id, from, to)
	if err != nil {
		return compat.SchemaDiff{}, err
	}
	return compat.Diff(&oldRec.Schema, &newRec.Schema), nil
}

func (r *Registry) pair(ctx context.Context, method, id, from, to string) (*schema.Record, *schema.Record, error) {
	if from == "" || to == "" {
		return nil, nil, errors.WrapInvalid(
			errors.NewValidationError("", "both versions are required"), "registry", method, "versions")
	}
	oldRec, err := r.store.Get(ctx, id, from)
	if err != nil {
		return nil, nil, err
	}
	newRec, err := r.store.Get(ctx, id, to)
	if err != nil {
		return nil, nil, err
	}
	return oldRec, newRec, nil
}

// ValidateData validates a data instance against the latest version of id.
func (r *Registry) ValidateData(ctx context.Context, id string, data any) (result schema.DataResult, err error) {
	start := time.Now()
	defer func() { r.metrics.RecordOperation(OpValidateData, outcome(err), time.Since(start)) }()

	rec, err := r.store.Get(ctx, id, "")
	if err != nil {
		return schema.DataResult{}, err
	}

	result, err = r.validator.ValidateData(&rec.Schema, data)
	if err != nil {
		return schema.DataResult{}, fmt.Errorf("validate against %s: %w", rec.Schema.Ref(), err)
	}
	r.count(ctx, CounterCompatCheck)
	return result, nil
}
