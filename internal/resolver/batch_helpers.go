package resolver

import (
	"context"

	"relgraph/internal/dbexec"
	"relgraph/internal/introspection"
	"relgraph/internal/observability"
	"relgraph/internal/planner"
)

const (
	relationOneToMany  = "one_to_many"
	relationManyToOne  = "many_to_one"
	relationManyToMany = "many_to_many"
	relationLookup     = "lookup"
)

func chunkValues(values []interface{}, max int) [][]interface{} {
	if len(values) == 0 {
		return nil
	}
	if max <= 0 || len(values) <= max {
		return [][]interface{}{values}
	}
	chunks := make([][]interface{}, 0, (len(values)+max-1)/max)
	for start := 0; start < len(values); start += max {
		end := start + max
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

func uniqueValues(values []interface{}) []interface{} {
	seen := make(map[string]struct{}, len(values))
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		k := TupleKey(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

func listBatchQueriesSaved(parentCount, chunkCount int) int64 {
	// Compare per-parent queries to chunked queries (1 per chunk).
	if parentCount <= 0 || chunkCount <= 0 {
		return 0
	}
	if saved := parentCount - chunkCount; saved > 0 {
		return int64(saved)
	}
	return 0
}

func relationLabel(c introspection.Cardinality) string {
	switch c {
	case introspection.OneToMany:
		return relationOneToMany
	case introspection.ManyToMany:
		return relationManyToMany
	case introspection.ManyToOne, introspection.OneToOneOwner, introspection.OneToOneInverse:
		return relationManyToOne
	}
	return relationLookup
}

// withoutParentAlias drops the junction parent column from a batched row.
func withoutParentAlias(row dbexec.Row) dbexec.Row {
	if _, ok := row[planner.BatchParentAlias]; !ok {
		return row
	}
	out := make(dbexec.Row, len(row)-1)
	for k, v := range row {
		if k != planner.BatchParentAlias {
			out[k] = v
		}
	}
	return out
}

func graphQLMetricsFromContext(ctx context.Context) *observability.GraphQLMetrics {
	return observability.GraphQLMetricsFromContext(ctx)
}
