package postgres

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	bunstore "github.com/kartikbazzad/bunstore"
	"github.com/kartikbazzad/bunstore/internal/batch"
	"github.com/kartikbazzad/bunstore/internal/filter"
	"github.com/kartikbazzad/bunstore/internal/nspath"
)

// statement is one rendered query plus the reader that consumes its
// slot in the pipeline's result stream and scatters decoded rows into
// the batch result slice.
type statement struct {
	sql  string
	args []any
	read func(br pgx.BatchResults, results []any) error
}

const (
	getSQL = `SELECT key, value, created_at, updated_at FROM store WHERE prefix = $1::ltree AND key = ANY($2)`

	upsertSQL = `INSERT INTO store (prefix, key, value)
SELECT p::ltree, k, v::jsonb FROM unnest($1::text[], $2::text[], $3::text[]) AS t(p, k, v)
ON CONFLICT (prefix, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

	deleteSQL = `DELETE FROM store WHERE prefix = $1::ltree AND key = ANY($2)`
)

// buildStatements renders the whole plan before anything is sent, in
// pipeline order: gets, puts, searches, namespace listings.
func buildStatements(plan *batch.Plan) ([]statement, error) {
	var stmts []statement
	for _, g := range batch.GroupGets(plan.Gets) {
		stmts = append(stmts, getStatement(g))
	}
	putStmts, err := putStatements(batch.Coalesce(plan.Puts))
	if err != nil {
		return nil, err
	}
	stmts = append(stmts, putStmts...)
	for _, q := range plan.Searches {
		st, err := searchStatement(q)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, st)
	}
	for _, l := range plan.Lists {
		stmts = append(stmts, listStatement(l))
	}
	return stmts, nil
}

func getStatement(g batch.GetGroup) statement {
	path := nspath.Encode(g.Namespace)
	return statement{
		sql:  getSQL,
		args: []any{path, g.Keys},
		read: func(br pgx.BatchResults, results []any) error {
			rows, err := br.Query()
			if err != nil {
				return fmt.Errorf("get %s: %w", path, err)
			}
			defer rows.Close()

			items := make(map[string]*bunstore.Item, len(g.Keys))
			for rows.Next() {
				var (
					key                  string
					raw                  []byte
					createdAt, updatedAt time.Time
				)
				if err := rows.Scan(&key, &raw, &createdAt, &updatedAt); err != nil {
					return fmt.Errorf("get %s: scan: %w", path, err)
				}
				value, err := decodeValue(path, key, raw)
				if err != nil {
					return err
				}
				items[key] = &bunstore.Item{
					Namespace: g.Namespace,
					Key:       key,
					Value:     value,
					CreatedAt: createdAt,
					UpdatedAt: updatedAt,
				}
			}
			if err := rows.Err(); err != nil {
				return fmt.Errorf("get %s: %w", path, err)
			}

			for key, positions := range g.Positions {
				item, ok := items[key]
				if !ok {
					continue
				}
				for _, pos := range positions {
					results[pos] = item
				}
			}
			return nil
		},
	}
}

// putStatements renders the batch's write set: all upserts as one
// multi-row statement, tombstones as one delete per namespace.
func putStatements(group batch.PutGroup) ([]statement, error) {
	var stmts []statement

	if len(group.Upserts) > 0 {
		paths := make([]string, len(group.Upserts))
		keys := make([]string, len(group.Upserts))
		values := make([]string, len(group.Upserts))
		for i, op := range group.Upserts {
			raw, err := json.Marshal(op.Value)
			if err != nil {
				return nil, fmt.Errorf("put %s/%s: encode value: %w", nspath.Encode(op.Namespace), op.Key, err)
			}
			paths[i] = nspath.Encode(op.Namespace)
			keys[i] = op.Key
			values[i] = string(raw)
		}
		stmts = append(stmts, execStatement(upsertSQL, []any{paths, keys, values}))
	}

	var delPaths []string
	delKeys := make(map[string][]string)
	for _, op := range group.Deletes {
		path := nspath.Encode(op.Namespace)
		if _, ok := delKeys[path]; !ok {
			delPaths = append(delPaths, path)
		}
		delKeys[path] = append(delKeys[path], op.Key)
	}
	for _, path := range delPaths {
		stmts = append(stmts, execStatement(deleteSQL, []any{path, delKeys[path]}))
	}

	return stmts, nil
}

func execStatement(sql string, args []any) statement {
	return statement{
		sql:  sql,
		args: args,
		read: func(br pgx.BatchResults, _ []any) error {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("write: %w", err)
			}
			return nil
		},
	}
}

func searchStatement(q batch.Indexed[bunstore.SearchOp]) (statement, error) {
	op := q.Op
	var sb strings.Builder
	sb.WriteString(`SELECT prefix, key, value, created_at, updated_at FROM store WHERE prefix <@ $1::ltree`)
	args := []any{nspath.Encode(op.NamespacePrefix)}

	for _, field := range sortedFields(op.Filter) {
		expected := op.Filter[field]
		raw, err := json.Marshal(expected)
		if err != nil {
			return statement{}, fmt.Errorf("search filter %q: encode: %w", field, err)
		}
		args = append(args, field)
		fieldArg := len(args)
		args = append(args, string(raw))
		valueArg := len(args)
		if filter.IsList(expected) {
			fmt.Fprintf(&sb, " AND value->$%d @> $%d::jsonb", fieldArg, valueArg)
		} else {
			fmt.Fprintf(&sb, " AND value->$%d = $%d::jsonb", fieldArg, valueArg)
		}
	}

	args = append(args, op.Limit)
	limitArg := len(args)
	args = append(args, op.Offset)
	fmt.Fprintf(&sb, " ORDER BY prefix, key LIMIT $%d OFFSET $%d", limitArg, len(args))

	pos := q.Pos
	return statement{
		sql:  sb.String(),
		args: args,
		read: func(br pgx.BatchResults, results []any) error {
			rows, err := br.Query()
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer rows.Close()

			items := make([]*bunstore.Item, 0)
			for rows.Next() {
				var (
					prefix, raw          []byte
					key                  string
					createdAt, updatedAt time.Time
				)
				if err := rows.Scan(&prefix, &key, &raw, &createdAt, &updatedAt); err != nil {
					return fmt.Errorf("search: scan: %w", err)
				}
				ns, err := decodePath(prefix)
				if err != nil {
					return err
				}
				value, err := decodeValue(nspath.Encode(ns), key, raw)
				if err != nil {
					return err
				}
				items = append(items, &bunstore.Item{
					Namespace: ns,
					Key:       key,
					Value:     value,
					CreatedAt: createdAt,
					UpdatedAt: updatedAt,
				})
			}
			if err := rows.Err(); err != nil {
				return fmt.Errorf("search: %w", err)
			}
			results[pos] = items
			return nil
		},
	}, nil
}

func listStatement(l batch.Indexed[bunstore.ListNamespacesOp]) statement {
	op := l.Op
	var sb strings.Builder
	var args []any

	if op.MaxDepth > 0 {
		args = append(args, op.MaxDepth)
		sb.WriteString(`SELECT DISTINCT subltree(prefix, 0, LEAST(nlevel(prefix), $1::int)) AS truncated_prefix FROM store`)
	} else {
		sb.WriteString(`SELECT DISTINCT prefix AS truncated_prefix FROM store`)
	}

	var where []string
	for _, cond := range op.MatchConditions {
		var lquery string
		switch cond.MatchType {
		case bunstore.MatchPrefix:
			lquery = nspath.PrefixQuery(cond.Path)
		case bunstore.MatchSuffix:
			lquery = nspath.SuffixQuery(cond.Path)
		}
		args = append(args, lquery)
		where = append(where, fmt.Sprintf("prefix ~ $%d::lquery", len(args)))
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}

	args = append(args, op.Limit)
	limitArg := len(args)
	args = append(args, op.Offset)
	fmt.Fprintf(&sb, " ORDER BY truncated_prefix LIMIT $%d OFFSET $%d", limitArg, len(args))

	pos := l.Pos
	return statement{
		sql:  sb.String(),
		args: args,
		read: func(br pgx.BatchResults, results []any) error {
			rows, err := br.Query()
			if err != nil {
				return fmt.Errorf("list namespaces: %w", err)
			}
			defer rows.Close()

			namespaces := make([]bunstore.Namespace, 0)
			for rows.Next() {
				var prefix []byte
				if err := rows.Scan(&prefix); err != nil {
					return fmt.Errorf("list namespaces: scan: %w", err)
				}
				ns, err := decodePath(prefix)
				if err != nil {
					return err
				}
				namespaces = append(namespaces, ns)
			}
			if err := rows.Err(); err != nil {
				return fmt.Errorf("list namespaces: %w", err)
			}
			results[pos] = namespaces
			return nil
		},
	}
}

// decodePath converts a raw ltree column value, with or without the
// binary-format marker byte, into a namespace.
func decodePath(raw []byte) (bunstore.Namespace, error) {
	segs, err := nspath.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: namespace path: %v", bunstore.ErrDecode, err)
	}
	return bunstore.Namespace(segs), nil
}

func decodeValue(path, key string, raw []byte) (map[string]any, error) {
	var value map[string]any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("%w: item %s/%s value: %v", bunstore.ErrDecode, path, key, err)
	}
	return value, nil
}

func sortedFields(f map[string]any) []string {
	if len(f) == 0 {
		return nil
	}
	fields := make([]string, 0, len(f))
	for k := range f {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
