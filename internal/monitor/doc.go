// Package monitor aggregates evaluated results and queue depths into
// summaries.
//
// The Aggregator owns all state behind one mutex; the Service feeds it from
// the results queue and by polling queue depths. Renderers read Snapshot
// only, so any number of them can observe a running Service.
//
// Count, min and max cover every recorded result. Mean, standard deviation
// and the quantiles are computed over the most recent MaxSamples results of
// each model.
package monitor
