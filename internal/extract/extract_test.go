// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributech/cadastro-extractor/internal/cache"
	"github.com/tributech/cadastro-extractor/internal/snapshot"
	"github.com/tributech/cadastro-extractor/pkg/types"
)

// fakeClient serves canned interval and module responses.
type fakeClient struct {
	general    map[string][]map[string]any
	generalErr map[string]error
	modules    map[string]map[string][]map[string]any // codigo -> module -> rows
	moduleErr  error
	requests   int
}

func (f *fakeClient) BuscarCadastroGeral(_ context.Context, filter string, _, _ int) ([]map[string]any, error) {
	f.requests++
	if err := f.generalErr[filter]; err != nil {
		return nil, err
	}
	return f.general[filter], nil
}

func (f *fakeClient) module(name, codigo string) ([]map[string]any, error) {
	f.requests++
	if f.moduleErr != nil {
		return nil, f.moduleErr
	}
	return f.modules[codigo][name], nil
}

func (f *fakeClient) BuscarProprietarios(_ context.Context, c string) ([]map[string]any, error) {
	return f.module(types.ModuleProprietarios, c)
}

func (f *fakeClient) BuscarEnderecos(_ context.Context, c string) ([]map[string]any, error) {
	return f.module(types.ModuleEnderecos, c)
}

func (f *fakeClient) BuscarTestadas(_ context.Context, c string) ([]map[string]any, error) {
	return f.module(types.ModuleTestadas, c)
}

func (f *fakeClient) BuscarSubreceitas(_ context.Context, c string) ([]map[string]any, error) {
	return f.module(types.ModuleSubreceitas, c)
}

func (f *fakeClient) BuscarZoneamentos(_ context.Context, c string) ([]map[string]any, error) {
	return f.module(types.ModuleZoneamento, c)
}

func (f *fakeClient) BuscarAnexos(_ context.Context, c string) ([]map[string]any, error) {
	return f.module(types.ModuleAnexos, c)
}

func (f *fakeClient) BuscarHistorico(_ context.Context, c string) ([]map[string]any, error) {
	return f.module(types.ModuleHistorico, c)
}

func (f *fakeClient) BuscarBlocoItens(_ context.Context, c string) ([]map[string]any, error) {
	return f.module(types.ModuleBCI, c)
}

func (f *fakeClient) BuscarITBI(_ context.Context, c string) ([]map[string]any, error) {
	return f.module(types.ModuleITBI, c)
}

func (f *fakeClient) Requests() int { return f.requests }

func raw(codigo string) map[string]any {
	return map[string]any{"codigo_cadastro": codigo, "situacao": "1"}
}

func testRunner(t *testing.T, client Client, cfg types.ExtractionConfig, progress ProgressFunc) (*Runner, *cache.Cache, *snapshot.Store) {
	t.Helper()
	dir := t.TempDir()

	c, err := cache.New(dir + "/cache")
	require.NoError(t, err)
	snaps, err := snapshot.New(dir + "/data")
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRunner(client, c, snaps, cfg, log, progress), c, snaps
}

func TestIntervals(t *testing.T) {
	tests := []struct {
		name                   string
		first, last, size, max int
		want                   []Interval
	}{
		{"exact fit", 1, 200, 100, 100, []Interval{{1, 100}, {101, 200}}},
		{"ragged tail", 1, 250, 100, 100, []Interval{{1, 100}, {101, 200}, {201, 250}}},
		{"size clamped to max", 1, 300, 500, 100, []Interval{{1, 100}, {101, 200}, {201, 300}}},
		{"zero size defaults to max", 1, 50, 0, 100, []Interval{{1, 50}}},
		{"single code", 7, 7, 100, 100, []Interval{{7, 7}}},
		{"inverted range", 10, 1, 100, 100, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Intervals(tt.first, tt.last, tt.size, tt.max))
		})
	}
}

func TestIntervalKey(t *testing.T) {
	assert.Equal(t, "1-100", Interval{1, 100}.Key())
}

func TestRun_EndToEnd(t *testing.T) {
	client := &fakeClient{general: map[string][]map[string]any{
		"1-100":   {raw("1"), raw("2"), raw("5")},
		"101-200": {},
	}}

	var events []Progress
	runner, c, _ := testRunner(t, client, types.ExtractionConfig{
		FirstCode: 1, LastCode: 200, IntervalSize: 100,
	}, func(p Progress) { events = append(events, p) })

	result := runner.Run(context.Background())

	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.TotalRecords)
	assert.Equal(t, 2, result.RequestCount)
	assert.Equal(t, "1", result.Records[0].CodigoCadastro)

	// Both intervals cached, including the empty one.
	assert.Equal(t, 2, c.Len())

	// Snapshot round-trips with the record count in its metadata.
	require.NotEmpty(t, result.SnapshotPath)
	env, err := snapshot.Load(result.SnapshotPath)
	require.NoError(t, err)
	assert.Equal(t, 3, env.Meta.TotalCadastros)
	assert.Equal(t, snapshot.TagFinal, env.Meta.Tag)

	require.Len(t, events, 2)
	assert.Equal(t, "1-100", events[0].Interval)
	assert.Equal(t, 3, events[1].Records)
	assert.Equal(t, 2, events[1].IntervalsTotal)
}

func TestRun_CacheHitSkipsNetwork(t *testing.T) {
	client := &fakeClient{generalErr: map[string]error{
		"1-100": errors.New("endpoint indisponivel"),
	}}

	runner, c, _ := testRunner(t, client, types.ExtractionConfig{
		FirstCode: 1, LastCode: 100, IntervalSize: 100,
	}, nil)
	require.NoError(t, c.Put("1-100", []map[string]any{raw("42")}))

	result := runner.Run(context.Background())

	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.TotalRecords)
	assert.Zero(t, client.requests)
}

func TestRun_FailedIntervalSkipped(t *testing.T) {
	client := &fakeClient{
		general:    map[string][]map[string]any{"101-200": {raw("150")}},
		generalErr: map[string]error{"1-100": errors.New("timeout")},
	}

	runner, c, _ := testRunner(t, client, types.ExtractionConfig{
		FirstCode: 1, LastCode: 200, IntervalSize: 100,
	}, nil)

	result := runner.Run(context.Background())

	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.TotalRecords)

	// The failed interval must not be cached; a rerun retries it.
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("1-100")
	assert.False(t, ok)
}

func TestRun_ModuleFanout(t *testing.T) {
	client := &fakeClient{
		general: map[string][]map[string]any{"1-100": {raw("7")}},
		modules: map[string]map[string][]map[string]any{
			"7": {
				types.ModuleProprietarios: {{"nome": "Ana Souza"}},
				types.ModuleEnderecos:     {{"logradouro": "Rua A"}, {"logradouro": "Rua B"}},
			},
		},
	}

	runner, _, _ := testRunner(t, client, types.ExtractionConfig{
		FirstCode: 1, LastCode: 100, IntervalSize: 100, FetchModules: true,
	}, nil)

	result := runner.Run(context.Background())

	require.NoError(t, result.Err)
	require.Len(t, result.Datasets[types.ModuleProprietarios], 1)
	assert.Equal(t, "7", result.Datasets[types.ModuleProprietarios][0]["codigo_cadastro"])
	assert.Len(t, result.Datasets[types.ModuleEnderecos], 2)

	// Every module has a key even when it returned nothing.
	assert.Len(t, result.Datasets, len(types.ModuleNames))

	// 1 general call + 9 module calls.
	assert.Equal(t, 10, result.RequestCount)
}

func TestRun_ModuleFailureIsolated(t *testing.T) {
	client := &fakeClient{
		general:   map[string][]map[string]any{"1-100": {raw("7")}},
		moduleErr: errors.New("fault"),
	}

	runner, _, _ := testRunner(t, client, types.ExtractionConfig{
		FirstCode: 1, LastCode: 100, IntervalSize: 100, FetchModules: true,
	}, nil)

	result := runner.Run(context.Background())

	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.TotalRecords)
	for _, name := range types.ModuleNames {
		assert.Empty(t, result.Datasets[name])
	}
}

func TestRun_FanoutDelaysBetweenRecords(t *testing.T) {
	client := &fakeClient{general: map[string][]map[string]any{
		"1-100": {raw("1"), raw("2"), raw("3")},
	}}

	delay := 25 * time.Millisecond
	runner, _, _ := testRunner(t, client, types.ExtractionConfig{
		FirstCode: 1, LastCode: 100, IntervalSize: 100,
		FetchModules: true, RequestDelay: delay,
	}, nil)

	started := time.Now()
	result := runner.Run(context.Background())
	elapsed := time.Since(started)

	require.NoError(t, result.Err)
	assert.Equal(t, 3, result.TotalRecords)

	// Two inter-record delays; no delay after the last record.
	assert.GreaterOrEqual(t, elapsed, 2*delay)
}

func TestRun_FanoutProgressPerRecord(t *testing.T) {
	client := &fakeClient{general: map[string][]map[string]any{
		"1-100": {raw("1"), raw("2"), raw("3")},
	}}

	var events []Progress
	runner, _, _ := testRunner(t, client, types.ExtractionConfig{
		FirstCode: 1, LastCode: 100, IntervalSize: 100, FetchModules: true,
	}, func(p Progress) { events = append(events, p) })

	result := runner.Run(context.Background())

	require.NoError(t, result.Err)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, "1-100", ev.Interval)
		assert.Equal(t, i+1, ev.Records)
	}
}

func TestRun_FanoutCheckpointsPerRecord(t *testing.T) {
	client := &fakeClient{general: map[string][]map[string]any{
		"1-100": {raw("1"), raw("2"), raw("3")},
	}}

	runner, _, snaps := testRunner(t, client, types.ExtractionConfig{
		FirstCode: 1, LastCode: 100, IntervalSize: 100,
		FetchModules: true, SaveInterval: 1,
	}, nil)

	result := runner.Run(context.Background())

	require.NoError(t, result.Err)
	assert.True(t, result.Success)

	// One checkpoint per processed record, not one per interval.
	partials, err := snaps.List("progresso")
	require.NoError(t, err)
	require.Len(t, partials, 3)
	for _, p := range partials {
		env, err := snapshot.Load(p)
		require.NoError(t, err)
		assert.Equal(t, snapshot.TagAuto, env.Meta.Tag)
	}
}

func TestRun_CancelledWritesPartialSnapshot(t *testing.T) {
	client := &fakeClient{general: map[string][]map[string]any{
		"1-100": {raw("1")},
	}}

	runner, _, snaps := testRunner(t, client, types.ExtractionConfig{
		FirstCode: 1, LastCode: 100, IntervalSize: 100,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := runner.Run(ctx)

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, context.Canceled)

	require.NotEmpty(t, result.SnapshotPath)
	env, err := snapshot.Load(result.SnapshotPath)
	require.NoError(t, err)
	assert.Equal(t, snapshot.TagInterrupted, env.Meta.Tag)

	partials, err := snaps.List("progresso")
	require.NoError(t, err)
	assert.Len(t, partials, 1)
}

func TestRun_AutoCheckpoint(t *testing.T) {
	client := &fakeClient{general: map[string][]map[string]any{
		"1-100":   {raw("1"), raw("2")},
		"101-200": {raw("101")},
	}}

	runner, _, snaps := testRunner(t, client, types.ExtractionConfig{
		FirstCode: 1, LastCode: 200, IntervalSize: 100, SaveInterval: 2,
	}, nil)

	result := runner.Run(context.Background())

	require.NoError(t, result.Err)
	assert.True(t, result.Success)

	partials, err := snaps.List("progresso")
	require.NoError(t, err)
	require.Len(t, partials, 1)

	env, err := snapshot.Load(partials[0])
	require.NoError(t, err)
	assert.Equal(t, snapshot.TagAuto, env.Meta.Tag)
	assert.Equal(t, 2, env.Meta.TotalCadastros)
}
