// Package database provides the repository base shared by every entity package:
// typed error kinds and generic PostgREST helpers over the gateway client.
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/R3E-Network/social_layer/supabase/client"
)

// maxInListSize keeps batched in.(...) filters well under URL length limits.
const maxInListSize = 100

// Repository wraps the gateway client for table-scoped access.
type Repository struct {
	client *client.Client
}

// NewRepository creates a repository base.
func NewRepository(c *client.Client) *Repository {
	return &Repository{client: c}
}

// Client returns the underlying gateway client.
func (r *Repository) Client() *client.Client {
	return r.client
}

// From starts a query on table.
func (r *Repository) From(table string) *client.QueryBuilder {
	return r.client.From(table)
}

func (r *Repository) ready() error {
	if r == nil || r.client == nil {
		return fmt.Errorf("%w: repository not initialized", ErrInvalidInput)
	}
	return nil
}

// =============================================================================
// Generic Helpers
// =============================================================================

// Fetch runs a SELECT and decodes every row.
func Fetch[T any](ctx context.Context, q *client.QueryBuilder) ([]T, error) {
	op := "list " + q.Table()
	resp, err := q.Execute(ctx)
	if err := classify(resp, err, op); err != nil {
		return nil, err
	}

	var rows []T
	if err := resp.JSON(&rows); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrDatabaseError, q.Table(), err)
	}
	return rows, nil
}

// FetchOne runs a SELECT limited to one row. A missing row yields a NotFoundError.
func FetchOne[T any](ctx context.Context, q *client.QueryBuilder, key string) (*T, error) {
	rows, err := Fetch[T](ctx, q.Limit(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, NewNotFoundError(q.Table(), key)
	}
	return &rows[0], nil
}

// Count returns the number of rows matching q without downloading them.
func Count(ctx context.Context, q *client.QueryBuilder) (int, error) {
	n, err := q.ExecuteCount(ctx)
	if err != nil {
		return 0, classify(nil, err, "count "+q.Table())
	}
	return n, nil
}

// Update patches every row matching q and returns how many rows changed.
func Update(ctx context.Context, q *client.QueryBuilder, data any) (int, error) {
	resp, err := q.ExecuteUpdate(ctx, data)
	if err := classify(resp, err, "update "+q.Table()); err != nil {
		return 0, err
	}
	return affected(resp, q.Table())
}

// Delete removes every row matching q and returns how many rows were deleted.
func Delete(ctx context.Context, q *client.QueryBuilder) (int, error) {
	resp, err := q.ExecuteDelete(ctx)
	if err := classify(resp, err, "delete "+q.Table()); err != nil {
		return 0, err
	}
	return affected(resp, q.Table())
}

// UpdateExisting patches every row matching q. No matching row is ErrNotFound.
func UpdateExisting(ctx context.Context, q *client.QueryBuilder, data any, key string) error {
	resp, err := q.ExecuteUpdate(ctx, data)
	if err := classify(resp, err, "update "+q.Table()); err != nil {
		return err
	}
	return requireRows(resp, q.Table(), key)
}

// DeleteExisting removes every row matching q. No matching row is ErrNotFound.
func DeleteExisting(ctx context.Context, q *client.QueryBuilder, key string) error {
	resp, err := q.ExecuteDelete(ctx)
	if err := classify(resp, err, "delete "+q.Table()); err != nil {
		return err
	}
	return requireRows(resp, q.Table(), key)
}

// GenericCreate inserts data and hands the returned representation to onResult.
func GenericCreate[T any](r *Repository, ctx context.Context, table string, data any, onResult func([]T)) error {
	if err := r.ready(); err != nil {
		return err
	}
	resp, err := r.client.From(table).ExecuteInsert(ctx, data)
	if err := classify(resp, err, "create "+table); err != nil {
		return err
	}
	if onResult == nil {
		return nil
	}

	var rows []T
	if err := resp.JSON(&rows); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrDatabaseError, table, err)
	}
	onResult(rows)
	return nil
}

// GenericUpdate patches the rows where field equals value. No matching row is ErrNotFound.
func GenericUpdate(r *Repository, ctx context.Context, table, field string, value, data any) error {
	if err := r.ready(); err != nil {
		return err
	}
	resp, err := r.client.From(table).Eq(field, value).ExecuteUpdate(ctx, data)
	if err := classify(resp, err, "update "+table); err != nil {
		return err
	}
	return requireRows(resp, table, value)
}

// GenericDelete deletes the rows where field equals value. No matching row is ErrNotFound.
func GenericDelete(r *Repository, ctx context.Context, table, field string, value any) error {
	if err := r.ready(); err != nil {
		return err
	}
	resp, err := r.client.From(table).Eq(field, value).ExecuteDelete(ctx)
	if err := classify(resp, err, "delete "+table); err != nil {
		return err
	}
	return requireRows(resp, table, value)
}

// GenericGetByField fetches the first row where field equals value.
func GenericGetByField[T any](r *Repository, ctx context.Context, table, field string, value any) (*T, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	return FetchOne[T](ctx, r.client.From(table).Select("*").Eq(field, value), client.FormatValue(value))
}

// GenericListByField lists every row where field equals value.
func GenericListByField[T any](r *Repository, ctx context.Context, table, field string, value any) ([]T, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	return Fetch[T](ctx, r.client.From(table).Select("*").Eq(field, value))
}

// GenericListIn lists rows whose column is in values, batching the in.(...) filter.
func GenericListIn[T any](r *Repository, ctx context.Context, table, column string, values []string) ([]T, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var out []T
	for _, batch := range Batches(values) {
		rows, err := Fetch[T](ctx, r.client.From(table).Select("*").InStrings(column, batch))
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// Batches deduplicates values and splits them into in.(...) sized chunks.
func Batches(values []string) [][]string {
	values = Unique(values)
	var out [][]string
	for start := 0; start < len(values); start += maxInListSize {
		out = append(out, values[start:min(start+maxInListSize, len(values))])
	}
	return out
}

// Unique drops empty and repeated strings, keeping first-seen order.
func Unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func affected(resp *client.Response, table string) (int, error) {
	if len(resp.Body) == 0 {
		return 0, nil
	}
	var rows []json.RawMessage
	if err := resp.JSON(&rows); err != nil {
		return 0, fmt.Errorf("%w: decode %s: %v", ErrDatabaseError, table, err)
	}
	return len(rows), nil
}

func requireRows(resp *client.Response, table string, key any) error {
	if len(resp.Body) == 0 {
		return nil
	}
	n, err := affected(resp, table)
	if err != nil {
		return err
	}
	if n == 0 {
		return NewNotFoundError(table, client.FormatValue(key))
	}
	return nil
}
