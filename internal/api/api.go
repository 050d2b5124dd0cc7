// Package api implements the submission-API request kinds, every variant
// except Rpc: Dispatch has no Rpc case and answers a request named "Rpc"
// with ErrUnknownRequest. Procedures are invoked separately, through
// Runtime.SubmitProcedure and the runtime's procedure phase.
package api

import (
	"context"
	"fmt"

	"github.com/leengari/tickdb/internal/dbase"
	"github.com/leengari/tickdb/internal/dberrors"
	"github.com/leengari/tickdb/internal/layout"
	"github.com/leengari/tickdb/internal/query"
	"github.com/leengari/tickdb/internal/runtime"
	"github.com/leengari/tickdb/internal/table"
	"github.com/leengari/tickdb/internal/txn"
	"github.com/leengari/tickdb/internal/walog"
)

// FieldDef is one {name, type} pair of a CreateTable/AddField payload, type
// naming a registered types.Type by its registry name (e.g. "u64").
type FieldDef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// CreateTablePayload is CreateTable{name, fields}'s request body.
type CreateTablePayload struct {
	Name   string     `json:"name"`
	Fields []FieldDef `json:"fields"`
}

// CreateTableResult is CreateTable's {name, record_size} response.
type CreateTableResult struct {
	Name       string `json:"name"`
	RecordSize uint32 `json:"record_size"`
}

// DeleteTablePayload is DeleteTable{name}'s request body.
type DeleteTablePayload struct {
	Name string `json:"name"`
}

// AddFieldPayload is AddField{table, field}'s request body.
type AddFieldPayload struct {
	Table string   `json:"table"`
	Field FieldDef `json:"field"`
}

// AddFieldResult is AddField's {offset, record_size} response.
type AddFieldResult struct {
	Offset     uint32 `json:"offset"`
	RecordSize uint32 `json:"record_size"`
}

// RemoveFieldPayload is RemoveField{table, field}'s request body.
type RemoveFieldPayload struct {
	Table string `json:"table"`
	Field string `json:"field"`
}

// CreateRelationPayload is CreateRelation{from_table, from_field, to_table,
// to_field}'s request body.
type CreateRelationPayload struct {
	FromTable string `json:"from_table"`
	FromField string `json:"from_field"`
	ToTable   string `json:"to_table"`
	ToField   string `json:"to_field"`
}

// CreateRelationResult is CreateRelation's {id} response.
type CreateRelationResult struct {
	ID string `json:"id"`
}

// DeleteRelationPayload is DeleteRelation{id}'s request body.
type DeleteRelationPayload struct {
	ID string `json:"id"`
}

// CrudOp names one of Crud's five sub-operations.
type CrudOp string

const (
	CrudCreate CrudOp = "create"
	CrudRead   CrudOp = "read"
	CrudUpdate CrudOp = "update"
	CrudDelete CrudOp = "delete"
	CrudQuery  CrudOp = "query"
)

// CrudPayload is Crud{table, op}'s request body. Which of Values/Index/
// Query is read depends on Op: Create reads Values, Read/Update/Delete
// read Index (Update also reads Values), Query reads Query.
type CrudPayload struct {
	Table  string         `json:"table"`
	Op     CrudOp         `json:"op"`
	Values map[string]any `json:"values,omitempty"`
	Index  uint64         `json:"id,omitempty"`
	Query  *QueryParams   `json:"query,omitempty"`
}

// QueryParams is the {filters, limit, offset} shape shared by Crud's Query
// op and the standalone QueryRecords request. Filters pins field name to
// an exact JSON-shaped expected value.
type QueryParams struct {
	Filters map[string]any `json:"filters,omitempty"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// QueryRecordsPayload is QueryRecords{table, {filters, limit, offset}}'s
// request body.
type QueryRecordsPayload struct {
	Table string      `json:"table"`
	QueryParams
}

// QueryRecordsResult is QueryRecords' {records, count, total, limit,
// offset} response.
type QueryRecordsResult struct {
	Records []map[string]any `json:"records"`
	Count   int              `json:"count"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// ListTablesResult is ListTables' {tables, count} response.
type ListTablesResult struct {
	Tables []string `json:"tables"`
	Count  int      `json:"count"`
}

// Dispatcher runs submission-API requests against a database, durably
// logging every Crud mutation to wal before publishing it.
type Dispatcher struct {
	wal *walog.Log
}

// NewDispatcher builds a Dispatcher. wal may be nil, in which case Crud
// mutations commit to the live tables without appending anywhere.
func NewDispatcher(wal *walog.Log) *Dispatcher {
	return &Dispatcher{wal: wal}
}

// Dispatch runs one submission-API request against db, translating its
// Payload to and from typed record bytes at this one boundary so every
// other package stays strictly typed. It satisfies runtime.Handler.
func (d *Dispatcher) Dispatch(db *dbase.Database, req runtime.Request) runtime.Response {
	switch req.Name {
	case "CreateTable":
		return dispatchErr(createTable(db, req.Payload))
	case "DeleteTable":
		return dispatchErr(deleteTable(db, req.Payload))
	case "AddField":
		return dispatchErr(addField(db, req.Payload))
	case "RemoveField":
		return dispatchErr(removeField(db, req.Payload))
	case "CreateRelation":
		return dispatchErr(createRelation(db, req.Payload))
	case "DeleteRelation":
		return dispatchErr(deleteRelation(db, req.Payload))
	case "Crud":
		return dispatchErr(d.crud(db, req.Payload))
	case "QueryRecords":
		return dispatchErr(queryRecords(db, req.Payload))
	case "ListTables":
		return dispatchErr(listTables(db))
	default:
		return runtime.Response{Err: fmt.Errorf("%w: %q", dberrors.ErrUnknownRequest, req.Name)}
	}
}

func dispatchErr(result any, err error) runtime.Response {
	if err != nil {
		return runtime.Response{Err: err}
	}
	return runtime.Response{Result: result}
}

func payload[T any](v any) (T, error) {
	p, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: expected %T, got %T", dberrors.ErrBadRequest, zero, v)
	}
	return p, nil
}

func resolveFields(db *dbase.Database, defs []FieldDef) ([]layout.FieldSpec, error) {
	out := make([]layout.FieldSpec, 0, len(defs))
	for _, d := range defs {
		typ, ok := db.Registry().Get(d.Type)
		if !ok {
			return nil, fmt.Errorf("%w: %q", dberrors.ErrTypeNotFound, d.Type)
		}
		out = append(out, layout.FieldSpec{Name: d.Name, Type: typ})
	}
	return out, nil
}

func createTable(db *dbase.Database, raw any) (CreateTableResult, error) {
	p, err := payload[CreateTablePayload](raw)
	if err != nil {
		return CreateTableResult{}, err
	}
	fields, err := resolveFields(db, p.Fields)
	if err != nil {
		return CreateTableResult{}, err
	}
	t, err := db.CreateTable(p.Name, fields)
	if err != nil {
		return CreateTableResult{}, err
	}
	return CreateTableResult{Name: t.Name(), RecordSize: t.RecordSize()}, nil
}

func deleteTable(db *dbase.Database, raw any) (struct{}, error) {
	p, err := payload[DeleteTablePayload](raw)
	if err != nil {
		return struct{}{}, err
	}
	return struct{}{}, db.DeleteTable(p.Name)
}

func addField(db *dbase.Database, raw any) (AddFieldResult, error) {
	p, err := payload[AddFieldPayload](raw)
	if err != nil {
		return AddFieldResult{}, err
	}
	t, ok := db.Table(p.Table)
	if !ok {
		return AddFieldResult{}, fmt.Errorf("%w: %q", dberrors.ErrTableNotFound, p.Table)
	}
	typ, ok := db.Registry().Get(p.Field.Type)
	if !ok {
		return AddFieldResult{}, fmt.Errorf("%w: %q", dberrors.ErrTypeNotFound, p.Field.Type)
	}
	if err := t.AddField(p.Field.Name, typ); err != nil {
		return AddFieldResult{}, err
	}
	schema := t.Schema()
	f, _ := schema.ByName(p.Field.Name)
	return AddFieldResult{Offset: f.Offset, RecordSize: schema.Size}, nil
}

func removeField(db *dbase.Database, raw any) (struct{}, error) {
	p, err := payload[RemoveFieldPayload](raw)
	if err != nil {
		return struct{}{}, err
	}
	t, ok := db.Table(p.Table)
	if !ok {
		return struct{}{}, fmt.Errorf("%w: %q", dberrors.ErrTableNotFound, p.Table)
	}
	return struct{}{}, t.RemoveField(p.Field)
}

func createRelation(db *dbase.Database, raw any) (CreateRelationResult, error) {
	p, err := payload[CreateRelationPayload](raw)
	if err != nil {
		return CreateRelationResult{}, err
	}
	id, err := db.CreateRelation(p.FromTable, p.FromField, p.ToTable, p.ToField)
	if err != nil {
		return CreateRelationResult{}, err
	}
	return CreateRelationResult{ID: id}, nil
}

func deleteRelation(db *dbase.Database, raw any) (struct{}, error) {
	p, err := payload[DeleteRelationPayload](raw)
	if err != nil {
		return struct{}{}, err
	}
	return struct{}{}, db.DeleteRelation(p.ID)
}

func listTables(db *dbase.Database) (ListTablesResult, error) {
	tables := db.Tables()
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	return ListTablesResult{Tables: names, Count: len(names)}, nil
}

func toFilters(schema layout.Record, raw map[string]any) ([]query.Filter, error) {
	out := make([]query.Filter, 0, len(raw))
	for name, v := range raw {
		f, ok := schema.ByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", dberrors.ErrFieldNotFound, name)
		}
		coerced, err := coerce(f.Type, v)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", name, err)
		}
		buf := make([]byte, f.Type.Size)
		if _, err := f.Type.Ser(buf, coerced); err != nil {
			return nil, fmt.Errorf("filter %q: %w", name, err)
		}
		out = append(out, query.Filter{Field: name, Expected: buf})
	}
	return out, nil
}

func queryRecords(db *dbase.Database, raw any) (QueryRecordsResult, error) {
	p, err := payload[QueryRecordsPayload](raw)
	if err != nil {
		return QueryRecordsResult{}, err
	}
	t, ok := db.Table(p.Table)
	if !ok {
		return QueryRecordsResult{}, fmt.Errorf("%w: %q", dberrors.ErrTableNotFound, p.Table)
	}
	schema := t.Schema()
	filters, err := toFilters(schema, p.Filters)
	if err != nil {
		return QueryRecordsResult{}, err
	}

	all, err := t.ParallelQuery(context.Background(), filters, 0, -1)
	if err != nil {
		return QueryRecordsResult{}, err
	}
	total := len(all)

	limit := p.Limit
	if limit <= 0 {
		limit = total
	}
	offset := p.Offset
	windowed := windowIndices(all, offset, limit)

	records := make([]map[string]any, 0, len(windowed))
	for _, idx := range windowed {
		rec, err := t.ReadRecord(idx)
		if err != nil {
			return QueryRecordsResult{}, err
		}
		values, err := recordToValues(schema, rec)
		if err != nil {
			return QueryRecordsResult{}, err
		}
		records = append(records, values)
	}
	return QueryRecordsResult{Records: records, Count: len(records), Total: total, Limit: p.Limit, Offset: p.Offset}, nil
}

func windowIndices(all []uint64, offset, limit int) []uint64 {
	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit >= 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

func (d *Dispatcher) crud(db *dbase.Database, raw any) (any, error) {
	p, err := payload[CrudPayload](raw)
	if err != nil {
		return nil, err
	}
	t, ok := db.Table(p.Table)
	if !ok {
		return nil, fmt.Errorf("%w: %q", dberrors.ErrTableNotFound, p.Table)
	}
	schema := t.Schema()

	switch p.Op {
	case CrudCreate:
		rec, err := valuesToRecord(schema, p.Values)
		if err != nil {
			return nil, err
		}
		tx := txn.Begin(db, d.wal)
		defer tx.Close()
		staging, err := tx.Staging(p.Table)
		if err != nil {
			return nil, err
		}
		index, err := staging.Create(rec)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return map[string]any{"id": index}, nil

	case CrudRead:
		rec, err := t.ReadRecord(p.Index)
		if err != nil {
			return nil, err
		}
		return recordToValues(schema, rec)

	case CrudUpdate:
		overrides, err := fieldOverrides(schema, p.Values)
		if err != nil {
			return nil, err
		}
		base, err := t.ReadRecord(p.Index)
		if err != nil {
			return nil, err
		}
		merged, err := applyOverrides(schema, base, overrides)
		if err != nil {
			return nil, err
		}

		tx := txn.Begin(db, d.wal)
		defer tx.Close()
		staging, err := tx.Staging(p.Table)
		if err != nil {
			return nil, err
		}
		if err := staging.Update(p.Index, merged); err != nil {
			return nil, err
		}
		return struct{}{}, tx.Commit()

	case CrudDelete:
		flagField, err := softDeleteFlag(schema)
		if err != nil {
			return nil, err
		}
		base, err := t.ReadRecord(p.Index)
		if err != nil {
			return nil, err
		}
		f, _ := schema.ByName(flagField)
		flagged := append([]byte(nil), base...)
		flagged[f.Offset] = 1

		tx := txn.Begin(db, d.wal)
		defer tx.Close()
		staging, err := tx.Staging(p.Table)
		if err != nil {
			return nil, err
		}
		if err := staging.Update(p.Index, flagged); err != nil {
			return nil, err
		}
		return struct{}{}, tx.Commit()

	case CrudQuery:
		if p.Query == nil {
			p.Query = &QueryParams{Limit: -1}
		}
		filters, err := toFilters(schema, p.Query.Filters)
		if err != nil {
			return nil, err
		}
		matched, err := t.Query(filters, p.Query.Offset, p.Query.Limit)
		if err != nil {
			return nil, err
		}
		records := make([]map[string]any, 0, len(matched))
		for _, idx := range matched {
			rec, err := t.ReadRecord(idx)
			if err != nil {
				return nil, err
			}
			values, err := recordToValues(schema, rec)
			if err != nil {
				return nil, err
			}
			records = append(records, values)
		}
		return records, nil

	default:
		return nil, fmt.Errorf("%w: unknown crud op %q", dberrors.ErrBadRequest, p.Op)
	}
}

// applyOverrides copies base and overwrites the byte range of each
// overridden field, leaving every other field untouched.
func applyOverrides(schema layout.Record, base []byte, overrides []table.FieldOverride) ([]byte, error) {
	merged := append([]byte(nil), base...)
	for _, ov := range overrides {
		f, ok := schema.ByName(ov.Field)
		if !ok {
			return nil, fmt.Errorf("%w: %q", dberrors.ErrFieldNotFound, ov.Field)
		}
		copy(merged[f.Offset:f.Offset+f.Type.Size], ov.Bytes)
	}
	return merged, nil
}

// softDeleteFlag resolves the convention this store uses for Crud's
// Delete op, which names no flag field of its own (unlike the table-level
// DeleteRecord, which takes one explicitly): a bool field named
// "deleted". Tables that want soft deletion through the Crud surface
// declare one; tables without it cannot be Crud-deleted.
func softDeleteFlag(schema layout.Record) (string, error) {
	const name = "deleted"
	f, ok := schema.ByName(name)
	if !ok {
		return "", fmt.Errorf("%w: table has no %q flag field for crud delete", dberrors.ErrFieldNotFound, name)
	}
	if f.Type.Size != 1 {
		return "", fmt.Errorf("%w: %q", dberrors.ErrNotBooleanField, name)
	}
	return name, nil
}
