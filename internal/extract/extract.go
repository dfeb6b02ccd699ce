// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract orchestrates the cadastral extraction run: it partitions
// the code space into intervals, fetches each interval cache-first, fans
// out per-record sub-module lookups, and drives snapshotting. Execution is
// sequential on purpose; the source system tolerates little concurrent
// load, so rate limiting doubles as the concurrency model.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tributech/cadastro-extractor/internal/cache"
	"github.com/tributech/cadastro-extractor/internal/normalize"
	"github.com/tributech/cadastro-extractor/internal/snapshot"
	"github.com/tributech/cadastro-extractor/internal/stats"
	"github.com/tributech/cadastro-extractor/pkg/types"
)

// Client is the SOAP surface the runner consumes.
type Client interface {
	BuscarCadastroGeral(ctx context.Context, codigoCadastro string, tipoConsulta, situacao int) ([]map[string]any, error)
	BuscarProprietarios(ctx context.Context, codigo string) ([]map[string]any, error)
	BuscarEnderecos(ctx context.Context, codigo string) ([]map[string]any, error)
	BuscarTestadas(ctx context.Context, codigo string) ([]map[string]any, error)
	BuscarSubreceitas(ctx context.Context, codigo string) ([]map[string]any, error)
	BuscarZoneamentos(ctx context.Context, codigo string) ([]map[string]any, error)
	BuscarAnexos(ctx context.Context, codigo string) ([]map[string]any, error)
	BuscarHistorico(ctx context.Context, codigo string) ([]map[string]any, error)
	BuscarBlocoItens(ctx context.Context, codigo string) ([]map[string]any, error)
	BuscarITBI(ctx context.Context, codigo string) ([]map[string]any, error)
	Requests() int
}

// moduleFetches maps each sub-module dataset to its lookup, in fetch order.
var moduleFetches = []struct {
	name  string
	fetch func(Client, context.Context, string) ([]map[string]any, error)
}{
	{types.ModuleEnderecos, func(c Client, ctx context.Context, code string) ([]map[string]any, error) {
		return c.BuscarEnderecos(ctx, code)
	}},
	{types.ModuleProprietarios, func(c Client, ctx context.Context, code string) ([]map[string]any, error) {
		return c.BuscarProprietarios(ctx, code)
	}},
	{types.ModuleTestadas, func(c Client, ctx context.Context, code string) ([]map[string]any, error) {
		return c.BuscarTestadas(ctx, code)
	}},
	{types.ModuleSubreceitas, func(c Client, ctx context.Context, code string) ([]map[string]any, error) {
		return c.BuscarSubreceitas(ctx, code)
	}},
	{types.ModuleZoneamento, func(c Client, ctx context.Context, code string) ([]map[string]any, error) {
		return c.BuscarZoneamentos(ctx, code)
	}},
	{types.ModuleAnexos, func(c Client, ctx context.Context, code string) ([]map[string]any, error) {
		return c.BuscarAnexos(ctx, code)
	}},
	{types.ModuleHistorico, func(c Client, ctx context.Context, code string) ([]map[string]any, error) {
		return c.BuscarHistorico(ctx, code)
	}},
	{types.ModuleBCI, func(c Client, ctx context.Context, code string) ([]map[string]any, error) {
		return c.BuscarBlocoItens(ctx, code)
	}},
	{types.ModuleITBI, func(c Client, ctx context.Context, code string) ([]map[string]any, error) {
		return c.BuscarITBI(ctx, code)
	}},
}

// Interval is one inclusive code range.
type Interval struct {
	Start int
	End   int
}

// Key renders the interval as the "start-end" filter and cache key.
func (iv Interval) Key() string {
	return fmt.Sprintf("%d-%d", iv.Start, iv.End)
}

// Intervals partitions [first, last] into consecutive ranges of at most
// size codes, with size clamped to max (the API's per-call limit).
func Intervals(first, last, size, max int) []Interval {
	if max <= 0 {
		max = 100
	}
	if size <= 0 || size > max {
		size = max
	}
	if last < first {
		return nil
	}

	var intervals []Interval
	for start := first; start <= last; start += size {
		end := start + size - 1
		if end > last {
			end = last
		}
		intervals = append(intervals, Interval{Start: start, End: end})
	}
	return intervals
}

// Progress is one progress event. Without module fan-out it is emitted
// after each interval; with fan-out the record is the unit of work and an
// event follows every fanned-out record.
type Progress struct {
	Interval       string
	IntervalsDone  int
	IntervalsTotal int
	Records        int
	Elapsed        time.Duration
}

// ProgressFunc receives progress events. Nil disables reporting.
type ProgressFunc func(Progress)

// Result is the structured outcome of one run. SnapshotPath is empty when
// the final (or partial, on abort) save itself failed.
type Result struct {
	Success      bool
	Records      []types.Record
	Datasets     types.Datasets
	TotalRecords int
	RequestCount int
	Duration     time.Duration
	SnapshotPath string
	Err          error
}

// Runner executes extraction runs.
type Runner struct {
	client    Client
	cache     *cache.Cache
	snapshots *snapshot.Store
	cfg       types.ExtractionConfig
	log       *slog.Logger
	progress  ProgressFunc
}

// NewRunner wires an extraction runner. progress may be nil.
func NewRunner(client Client, c *cache.Cache, snapshots *snapshot.Store, cfg types.ExtractionConfig, log *slog.Logger, progress ProgressFunc) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		client:    client,
		cache:     c,
		snapshots: snapshots,
		cfg:       cfg,
		log:       log,
		progress:  progress,
	}
}

// Run executes the full extraction. A failed interval is logged and
// skipped; cancellation is observed between intervals and produces a
// partial snapshot rather than dropping accumulated work.
func (r *Runner) Run(ctx context.Context) Result {
	started := time.Now()
	intervals := Intervals(r.cfg.FirstCode, r.cfg.LastCode, r.cfg.IntervalSize, r.cfg.MaxIntervalSize)

	r.log.Info("iniciando extracao",
		"primeiro_codigo", r.cfg.FirstCode,
		"ultimo_codigo", r.cfg.LastCode,
		"intervalos", len(intervals),
		"modulos", r.cfg.FetchModules)

	var records []types.Record
	datasets := types.NewDatasets()
	processed := 0
	lastCheckpoint := 0

	for i, iv := range intervals {
		if err := ctx.Err(); err != nil {
			return r.abort(records, datasets, started, err)
		}

		recs, err := r.fetchInterval(ctx, iv)
		if err != nil {
			if ctx.Err() != nil {
				return r.abort(records, datasets, started, ctx.Err())
			}
			r.log.Error("intervalo falhou, pulando", "intervalo", iv.Key(), "erro", err)
			continue
		}
		records = append(records, recs...)
		lastInterval := i == len(intervals)-1

		if r.cfg.FetchModules {
			// With fan-out the record is the unit of work: rate limiting,
			// checkpointing, and progress all follow the record, not the
			// interval.
			for j, rec := range recs {
				if err := ctx.Err(); err != nil {
					return r.abort(records, datasets, started, err)
				}
				r.fetchModules(ctx, rec.CodigoCadastro, datasets)
				processed++
				lastCheckpoint = r.checkpoint(records, processed, lastCheckpoint)
				r.report(iv, i+1, len(intervals), processed, started)
				if lastInterval && j == len(recs)-1 {
					continue
				}
				if err := r.pause(ctx); err != nil {
					return r.abort(records, datasets, started, err)
				}
			}
			continue
		}

		processed = len(records)
		lastCheckpoint = r.checkpoint(records, processed, lastCheckpoint)
		r.report(iv, i+1, len(intervals), processed, started)
		if !lastInterval {
			if err := r.pause(ctx); err != nil {
				return r.abort(records, datasets, started, err)
			}
		}
	}

	summary := stats.Analyze(records)
	path, err := r.snapshots.WriteFinal(records, datasets, summary.MetaFields())
	if err != nil {
		r.log.Error("salvamento final falhou", "erro", err)
		return Result{
			Records:      records,
			Datasets:     datasets,
			TotalRecords: len(records),
			RequestCount: r.client.Requests(),
			Duration:     time.Since(started),
			Err:          err,
		}
	}

	r.log.Info("extracao concluida",
		"cadastros", len(records),
		"requisicoes", r.client.Requests(),
		"arquivo", path,
		"duracao", time.Since(started).Round(time.Millisecond))

	return Result{
		Success:      true,
		Records:      records,
		Datasets:     datasets,
		TotalRecords: len(records),
		RequestCount: r.client.Requests(),
		Duration:     time.Since(started),
		SnapshotPath: path,
	}
}

// pause applies the configured request delay, cut short on cancellation.
func (r *Runner) pause(ctx context.Context) error {
	if r.cfg.RequestDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.cfg.RequestDelay):
		return nil
	}
}

// checkpoint writes an auto snapshot once SaveInterval records have been
// processed since the last one. A failed write is logged and does not
// advance the mark, so the next record retries.
func (r *Runner) checkpoint(records []types.Record, processed, last int) int {
	if r.cfg.SaveInterval <= 0 || processed-last < r.cfg.SaveInterval {
		return last
	}
	path, err := r.snapshots.WritePartial(records, snapshot.TagAuto)
	if err != nil {
		r.log.Warn("checkpoint falhou", "erro", err)
		return last
	}
	r.log.Info("checkpoint salvo", "arquivo", path, "cadastros", len(records))
	return processed
}

func (r *Runner) report(iv Interval, done, total, processed int, started time.Time) {
	if r.progress == nil {
		return
	}
	r.progress(Progress{
		Interval:       iv.Key(),
		IntervalsDone:  done,
		IntervalsTotal: total,
		Records:        processed,
		Elapsed:        time.Since(started),
	})
}

// fetchInterval returns the interval's normalized records, consulting the
// cache before the network. A fetched interval is cached even when empty,
// so reruns distinguish "queried, zero records" from "never queried".
func (r *Runner) fetchInterval(ctx context.Context, iv Interval) ([]types.Record, error) {
	key := iv.Key()

	raws, ok := r.cache.Get(key)
	if !ok {
		var err error
		raws, err = r.client.BuscarCadastroGeral(ctx, key, 1, 1)
		if err != nil {
			return nil, err
		}
		if err := r.cache.Put(key, raws); err != nil {
			r.log.Warn("gravacao no cache falhou", "intervalo", key, "erro", err)
		}
	} else {
		r.log.Debug("cache hit", "intervalo", key, "cadastros", len(raws))
	}

	records := make([]types.Record, 0, len(raws))
	for _, raw := range raws {
		records = append(records, normalize.Cadastro(raw))
	}
	return records, nil
}

// fetchModules runs the sub-module fan-out for one record. Each module is
// isolated: a failed lookup is logged and the remaining modules still run.
// Every sub-record is tagged with its parent code for relational linking.
func (r *Runner) fetchModules(ctx context.Context, codigo string, datasets types.Datasets) {
	if codigo == "" {
		return
	}

	for _, m := range moduleFetches {
		rows, err := m.fetch(r.client, ctx, codigo)
		if err != nil {
			r.log.Warn("modulo falhou",
				"modulo", m.name, "cadastro", codigo, "erro", err)
			continue
		}
		for _, row := range rows {
			row["codigo_cadastro"] = codigo
			datasets[m.name] = append(datasets[m.name], row)
		}
	}
}

// abort persists what was accumulated before returning the failure result.
func (r *Runner) abort(records []types.Record, datasets types.Datasets, started time.Time, cause error) Result {
	tag := snapshot.TagError
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		tag = snapshot.TagInterrupted
	}

	path, err := r.snapshots.WritePartial(records, tag)
	if err != nil {
		r.log.Error("salvamento parcial falhou", "erro", err)
		path = ""
	} else {
		r.log.Warn("extracao abortada, progresso salvo", "arquivo", path, "cadastros", len(records))
	}

	return Result{
		Records:      records,
		Datasets:     datasets,
		TotalRecords: len(records),
		RequestCount: r.client.Requests(),
		Duration:     time.Since(started),
		SnapshotPath: path,
		Err:          cause,
	}
}
