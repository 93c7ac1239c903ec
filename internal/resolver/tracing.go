package resolver

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// dispatchSpan covers one batch dispatch: every chunked statement issued for
// a single batch key.
type dispatchSpan struct {
	span trace.Span
}

func startDispatchSpan(ctx context.Context, entity, relation string, keys, statements int) (context.Context, dispatchSpan) {
	ctx, span := otel.Tracer("relgraph/resolver").Start(ctx, "batch.dispatch",
		trace.WithAttributes(
			attribute.String("relgraph.entity", entity),
			attribute.String("relgraph.batch.relation", relation),
			attribute.Int("relgraph.batch.keys", keys),
			attribute.Int("relgraph.batch.statements", statements),
		),
	)
	return ctx, dispatchSpan{span: span}
}

// end records the outcome and closes the span.
func (d dispatchSpan) end(rows int, err error) {
	if err != nil {
		d.span.SetAttributes(attribute.String("relgraph.batch.outcome", "error"))
		d.span.RecordError(err)
		d.span.SetStatus(codes.Error, err.Error())
	} else {
		d.span.SetAttributes(
			attribute.String("relgraph.batch.outcome", "success"),
			attribute.Int("relgraph.batch.rows", rows),
		)
	}
	d.span.End()
}
