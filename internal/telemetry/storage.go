package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/loomhq/loom/internal/storage"
	"github.com/loomhq/loom/internal/types"
)

const storageScopeName = "github.com/loomhq/loom/storage"

// InstrumentedStorage wraps storage.Storage with OTel tracing and metrics.
// Every method gets a span and is counted in loom.storage.* metrics.
// Use WrapStorage to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStorage struct {
	inner     storage.Storage
	tracer    trace.Tracer
	ops       metric.Int64Counter
	dur       metric.Float64Histogram
	errs      metric.Int64Counter
	itemGauge metric.Int64Gauge
}

// WrapStorage returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("loom.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("loom.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("loom.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	itemGauge, _ := m.Int64Gauge("loom.item.count",
		metric.WithDescription("Current number of work items by role (snapshot from CountByRole)"),
	)
	return &InstrumentedStorage{
		inner:     s,
		tracer:    Tracer(storageScopeName),
		ops:       ops,
		dur:       dur,
		errs:      errs,
		itemGauge: itemGauge,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStorage) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStorage) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

// ── Item CRUD ────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateItem(ctx context.Context, item *types.WorkItem) error {
	attrs := []attribute.KeyValue{
		attribute.String("loom.item.priority", string(item.Priority)),
		attribute.Int("loom.item.depth", item.Depth),
	}
	ctx, span, t := s.op(ctx, "CreateItem", attrs...)
	err := s.inner.CreateItem(ctx, item)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) CreateItems(ctx context.Context, items []*types.WorkItem) error {
	attrs := []attribute.KeyValue{attribute.Int("loom.item.count", len(items))}
	ctx, span, t := s.op(ctx, "CreateItems", attrs...)
	err := s.inner.CreateItems(ctx, items)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetItem(ctx context.Context, id string) (*types.WorkItem, error) {
	attrs := []attribute.KeyValue{attribute.String("loom.item.id", id)}
	ctx, span, t := s.op(ctx, "GetItem", attrs...)
	v, err := s.inner.GetItem(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) GetItemsByIDs(ctx context.Context, ids []string) ([]*types.WorkItem, error) {
	attrs := []attribute.KeyValue{attribute.Int("loom.item.count", len(ids))}
	ctx, span, t := s.op(ctx, "GetItemsByIDs", attrs...)
	v, err := s.inner.GetItemsByIDs(ctx, ids)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) UpdateItem(ctx context.Context, id string, version int, patch *types.ItemUpdate) (*types.WorkItem, error) {
	attrs := []attribute.KeyValue{
		attribute.String("loom.item.id", id),
		attribute.Int("loom.item.version", version),
	}
	ctx, span, t := s.op(ctx, "UpdateItem", attrs...)
	v, err := s.inner.UpdateItem(ctx, id, version, patch)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) DeleteItem(ctx context.Context, id string) error {
	attrs := []attribute.KeyValue{attribute.String("loom.item.id", id)}
	ctx, span, t := s.op(ctx, "DeleteItem", attrs...)
	err := s.inner.DeleteItem(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) DeleteItems(ctx context.Context, ids []string) (int, error) {
	attrs := []attribute.KeyValue{attribute.Int("loom.item.count", len(ids))}
	ctx, span, t := s.op(ctx, "DeleteItems", attrs...)
	n, err := s.inner.DeleteItems(ctx, ids)
	s.done(ctx, span, t, err, attrs...)
	return n, err
}

// ── Tree reads ───────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) ListChildren(ctx context.Context, parentID string) ([]*types.WorkItem, error) {
	attrs := []attribute.KeyValue{attribute.String("loom.item.id", parentID)}
	ctx, span, t := s.op(ctx, "ListChildren", attrs...)
	v, err := s.inner.ListChildren(ctx, parentID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) CountChildrenByRole(ctx context.Context, parentID string) (map[types.Role]int, error) {
	attrs := []attribute.KeyValue{attribute.String("loom.item.id", parentID)}
	ctx, span, t := s.op(ctx, "CountChildrenByRole", attrs...)
	v, err := s.inner.CountChildrenByRole(ctx, parentID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListRoots(ctx context.Context) ([]*types.WorkItem, error) {
	ctx, span, t := s.op(ctx, "ListRoots")
	v, err := s.inner.ListRoots(ctx)
	if err == nil {
		span.SetAttributes(attribute.Int("loom.result.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) ListDescendants(ctx context.Context, rootID string) ([]*types.WorkItem, error) {
	attrs := []attribute.KeyValue{attribute.String("loom.item.id", rootID)}
	ctx, span, t := s.op(ctx, "ListDescendants", attrs...)
	v, err := s.inner.ListDescendants(ctx, rootID)
	if err == nil {
		span.SetAttributes(attribute.Int("loom.result.count", len(v)))
	}
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) AncestorChains(ctx context.Context, ids []string) (map[string][]*types.WorkItem, error) {
	attrs := []attribute.KeyValue{attribute.Int("loom.item.count", len(ids))}
	ctx, span, t := s.op(ctx, "AncestorChains", attrs...)
	v, err := s.inner.AncestorChains(ctx, ids)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Filtered queries ─────────────────────────────────────────────────────────

func (s *InstrumentedStorage) ListItems(ctx context.Context, filter types.ItemFilter) ([]*types.WorkItem, error) {
	ctx, span, t := s.op(ctx, "ListItems")
	v, err := s.inner.ListItems(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("loom.result.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) CountByFilter(ctx context.Context, filter types.ItemFilter) (int, error) {
	ctx, span, t := s.op(ctx, "CountByFilter")
	n, err := s.inner.CountByFilter(ctx, filter)
	s.done(ctx, span, t, err)
	return n, err
}

func (s *InstrumentedStorage) SearchItems(ctx context.Context, query string, limit int) ([]*types.WorkItem, error) {
	attrs := []attribute.KeyValue{attribute.String("loom.query", query)}
	ctx, span, t := s.op(ctx, "SearchItems", attrs...)
	v, err := s.inner.SearchItems(ctx, query, limit)
	if err == nil {
		span.SetAttributes(attribute.Int("loom.result.count", len(v)))
	}
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) CountItems(ctx context.Context) (int, error) {
	ctx, span, t := s.op(ctx, "CountItems")
	n, err := s.inner.CountItems(ctx)
	s.done(ctx, span, t, err)
	return n, err
}

func (s *InstrumentedStorage) CountByRole(ctx context.Context) (map[types.Role]int, error) {
	ctx, span, t := s.op(ctx, "CountByRole")
	v, err := s.inner.CountByRole(ctx)
	s.done(ctx, span, t, err)
	if err == nil {
		// Record current item counts as gauge snapshots, broken down by role.
		for role, n := range v {
			s.itemGauge.Record(ctx, int64(n),
				metric.WithAttributes(attribute.String("role", string(role))))
		}
	}
	return v, err
}

// ── Dependencies ─────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateDependency(ctx context.Context, dep *types.Dependency) error {
	attrs := []attribute.KeyValue{
		attribute.String("loom.dep.from", dep.FromItemID),
		attribute.String("loom.dep.to", dep.ToItemID),
		attribute.String("loom.dep.type", string(dep.Type)),
	}
	ctx, span, t := s.op(ctx, "CreateDependency", attrs...)
	err := s.inner.CreateDependency(ctx, dep)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) CreateDependencies(ctx context.Context, deps []*types.Dependency) error {
	attrs := []attribute.KeyValue{attribute.Int("loom.dep.count", len(deps))}
	ctx, span, t := s.op(ctx, "CreateDependencies", attrs...)
	err := s.inner.CreateDependencies(ctx, deps)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetDependency(ctx context.Context, id string) (*types.Dependency, error) {
	attrs := []attribute.KeyValue{attribute.String("loom.dep.id", id)}
	ctx, span, t := s.op(ctx, "GetDependency", attrs...)
	v, err := s.inner.GetDependency(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) DeleteDependency(ctx context.Context, id string) error {
	attrs := []attribute.KeyValue{attribute.String("loom.dep.id", id)}
	ctx, span, t := s.op(ctx, "DeleteDependency", attrs...)
	err := s.inner.DeleteDependency(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) DeleteDependenciesByEndpoints(ctx context.Context, fromID, toID string, depType *types.DependencyType) (int, error) {
	attrs := []attribute.KeyValue{
		attribute.String("loom.dep.from", fromID),
		attribute.String("loom.dep.to", toID),
	}
	ctx, span, t := s.op(ctx, "DeleteDependenciesByEndpoints", attrs...)
	n, err := s.inner.DeleteDependenciesByEndpoints(ctx, fromID, toID, depType)
	s.done(ctx, span, t, err, attrs...)
	return n, err
}

func (s *InstrumentedStorage) DeleteDependenciesForItem(ctx context.Context, itemID string) (int, error) {
	attrs := []attribute.KeyValue{attribute.String("loom.item.id", itemID)}
	ctx, span, t := s.op(ctx, "DeleteDependenciesForItem", attrs...)
	n, err := s.inner.DeleteDependenciesForItem(ctx, itemID)
	s.done(ctx, span, t, err, attrs...)
	return n, err
}

func (s *InstrumentedStorage) ListDependenciesForItem(ctx context.Context, itemID string) ([]*types.Dependency, error) {
	attrs := []attribute.KeyValue{attribute.String("loom.item.id", itemID)}
	ctx, span, t := s.op(ctx, "ListDependenciesForItem", attrs...)
	v, err := s.inner.ListDependenciesForItem(ctx, itemID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListDependenciesFrom(ctx context.Context, fromID string) ([]*types.Dependency, error) {
	attrs := []attribute.KeyValue{attribute.String("loom.item.id", fromID)}
	ctx, span, t := s.op(ctx, "ListDependenciesFrom", attrs...)
	v, err := s.inner.ListDependenciesFrom(ctx, fromID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListDependenciesTo(ctx context.Context, toID string) ([]*types.Dependency, error) {
	attrs := []attribute.KeyValue{attribute.String("loom.item.id", toID)}
	ctx, span, t := s.op(ctx, "ListDependenciesTo", attrs...)
	v, err := s.inner.ListDependenciesTo(ctx, toID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListDependenciesForItems(ctx context.Context, itemIDs []string) ([]*types.Dependency, error) {
	attrs := []attribute.KeyValue{attribute.Int("loom.item.count", len(itemIDs))}
	ctx, span, t := s.op(ctx, "ListDependenciesForItems", attrs...)
	v, err := s.inner.ListDependenciesForItems(ctx, itemIDs)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListGatingEdges(ctx context.Context) ([]*types.Dependency, error) {
	ctx, span, t := s.op(ctx, "ListGatingEdges")
	v, err := s.inner.ListGatingEdges(ctx)
	if err == nil {
		span.SetAttributes(attribute.Int("loom.result.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

// ── Notes ────────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) UpsertNote(ctx context.Context, note *types.Note) (*types.Note, error) {
	attrs := []attribute.KeyValue{
		attribute.String("loom.item.id", note.ItemID),
		attribute.String("loom.note.key", note.Key),
	}
	ctx, span, t := s.op(ctx, "UpsertNote", attrs...)
	v, err := s.inner.UpsertNote(ctx, note)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) GetNote(ctx context.Context, id string) (*types.Note, error) {
	attrs := []attribute.KeyValue{attribute.String("loom.note.id", id)}
	ctx, span, t := s.op(ctx, "GetNote", attrs...)
	v, err := s.inner.GetNote(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) GetNoteByItemAndKey(ctx context.Context, itemID, key string) (*types.Note, error) {
	attrs := []attribute.KeyValue{
		attribute.String("loom.item.id", itemID),
		attribute.String("loom.note.key", key),
	}
	ctx, span, t := s.op(ctx, "GetNoteByItemAndKey", attrs...)
	v, err := s.inner.GetNoteByItemAndKey(ctx, itemID, key)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) DeleteNote(ctx context.Context, id string) error {
	attrs := []attribute.KeyValue{attribute.String("loom.note.id", id)}
	ctx, span, t := s.op(ctx, "DeleteNote", attrs...)
	err := s.inner.DeleteNote(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) DeleteNoteByItemAndKey(ctx context.Context, itemID, key string) error {
	attrs := []attribute.KeyValue{
		attribute.String("loom.item.id", itemID),
		attribute.String("loom.note.key", key),
	}
	ctx, span, t := s.op(ctx, "DeleteNoteByItemAndKey", attrs...)
	err := s.inner.DeleteNoteByItemAndKey(ctx, itemID, key)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) DeleteNotesForItem(ctx context.Context, itemID string) (int, error) {
	attrs := []attribute.KeyValue{attribute.String("loom.item.id", itemID)}
	ctx, span, t := s.op(ctx, "DeleteNotesForItem", attrs...)
	n, err := s.inner.DeleteNotesForItem(ctx, itemID)
	s.done(ctx, span, t, err, attrs...)
	return n, err
}

func (s *InstrumentedStorage) ListNotesForItem(ctx context.Context, itemID string, role *types.Role) ([]*types.Note, error) {
	attrs := []attribute.KeyValue{attribute.String("loom.item.id", itemID)}
	ctx, span, t := s.op(ctx, "ListNotesForItem", attrs...)
	v, err := s.inner.ListNotesForItem(ctx, itemID, role)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Role transition audit log ────────────────────────────────────────────────

func (s *InstrumentedStorage) AppendTransition(ctx context.Context, tr *types.RoleTransition) error {
	attrs := []attribute.KeyValue{
		attribute.String("loom.item.id", tr.ItemID),
		attribute.String("loom.role.from", string(tr.FromRole)),
		attribute.String("loom.role.to", string(tr.ToRole)),
	}
	ctx, span, t := s.op(ctx, "AppendTransition", attrs...)
	err := s.inner.AppendTransition(ctx, tr)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) ListTransitionsForItem(ctx context.Context, itemID string) ([]*types.RoleTransition, error) {
	attrs := []attribute.KeyValue{attribute.String("loom.item.id", itemID)}
	ctx, span, t := s.op(ctx, "ListTransitionsForItem", attrs...)
	v, err := s.inner.ListTransitionsForItem(ctx, itemID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Instance metadata ────────────────────────────────────────────────────────

func (s *InstrumentedStorage) SetMetadata(ctx context.Context, key, value string) error {
	attrs := []attribute.KeyValue{attribute.String("loom.metadata.key", key)}
	ctx, span, t := s.op(ctx, "SetMetadata", attrs...)
	err := s.inner.SetMetadata(ctx, key, value)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetMetadata(ctx context.Context, key string) (string, error) {
	attrs := []attribute.KeyValue{attribute.String("loom.metadata.key", key)}
	ctx, span, t := s.op(ctx, "GetMetadata", attrs...)
	v, err := s.inner.GetMetadata(ctx, key)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Transactions ─────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	ctx, span, t := s.op(ctx, "RunInTransaction")
	err := s.inner.RunInTransaction(ctx, fn)
	s.done(ctx, span, t, err)
	return err
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) Path() string {
	return s.inner.Path()
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
