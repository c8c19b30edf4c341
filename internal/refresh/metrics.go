package refresh

import (
	"context"

	"genescore/domain/score"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("genescore.refresh")

var (
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "genescore_recompute_duration_seconds",
		Help:    "Duration of score recomputations by mode",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
	}, []string{"mode"})

	runTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genescore_recompute_total",
		Help: "Score recomputations by mode and result",
	}, []string{"mode", "result"})

	coalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "genescore_refresh_coalesced_total",
		Help: "Triggers merged into an already pending request",
	})

	promotedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "genescore_refresh_promoted_total",
		Help: "Targeted requests run as full recomputes",
	})

	excludedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genescore_excluded_records_total",
		Help: "Evidence records skipped for referencing an unknown or inactive source",
	}, []string{"source"})

	snapshotGeneration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "genescore_snapshot_generation",
		Help: "Generation of the published snapshot",
	})

	snapshotGenes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "genescore_snapshot_genes",
		Help: "Genes with an aggregate in the published snapshot",
	})
)

func startRunSpan(ctx context.Context, req *request) (context.Context, trace.Span) {
	return tracer.Start(ctx, "refresh.Recompute",
		trace.WithAttributes(
			attribute.Bool("refresh.full", req.full),
			attribute.Int("refresh.sources", len(req.sources)),
			attribute.Int("refresh.genes", len(req.genes)),
			attribute.StringSlice("refresh.reasons", req.reasons),
		),
	)
}

func endRunSpan(span trace.Span, snap *score.Snapshot, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if snap != nil {
		span.SetAttributes(
			attribute.String("refresh.mode", string(snap.Mode)),
			attribute.Int64("refresh.generation", int64(snap.Generation)),
			attribute.Int("refresh.genes", snap.GeneCount()),
		)
	}
	span.End()
}

func recordRun(mode score.Mode, seconds float64, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	runTotal.WithLabelValues(string(mode), result).Inc()
	if err == nil {
		runDuration.WithLabelValues(string(mode)).Observe(seconds)
	}
}

func recordPublished(snap *score.Snapshot) {
	snapshotGeneration.Set(float64(snap.Generation))
	snapshotGenes.Set(float64(snap.GeneCount()))
}
