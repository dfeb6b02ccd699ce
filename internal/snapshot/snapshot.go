// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package snapshot persists extraction results as timestamped JSON files:
// a metadata+records envelope for the cadastre list, plus one flat file per
// sub-module dataset. Snapshots are immutable; every run writes new files.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tributech/cadastro-extractor/pkg/types"
)

const jsonDir = "json"

// Snapshot tags describing how a file came to be written.
const (
	TagFinal       = "completo"
	TagAuto        = "auto"
	TagInterrupted = "interrompido"
	TagError       = "erro"
)

// Envelope is the on-disk shape of a cadastre snapshot.
type Envelope struct {
	Meta      Meta           `json:"meta"`
	Cadastros []types.Record `json:"cadastros"`
}

// Meta describes one snapshot. Extra carries the summary statistics the
// orchestrator attaches to final snapshots.
type Meta struct {
	GeradoEm       string         `json:"gerado_em"`
	Tag            string         `json:"tag"`
	TotalCadastros int            `json:"total_cadastros"`
	Extra          map[string]any `json:"estatisticas,omitempty"`
}

// Store writes and reads snapshot files under baseDir/json.
type Store struct {
	dir string

	// now is swappable in tests so file names are deterministic.
	now func() time.Time
}

// New creates the snapshot directory if needed.
func New(baseDir string) (*Store, error) {
	dir := filepath.Join(baseDir, jsonDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory %s: %w", dir, err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the directory snapshot files are written to.
func (s *Store) Dir() string { return s.dir }

// WriteFinal writes the complete-run envelope and one file per module
// dataset. It returns the envelope path.
func (s *Store) WriteFinal(records []types.Record, datasets types.Datasets, extra map[string]any) (string, error) {
	path, err := s.writeEnvelope("cadastros_completo", TagFinal, records, extra)
	if err != nil {
		return "", err
	}
	for name, rows := range datasets {
		if err := s.writeDataset(name, rows); err != nil {
			return "", err
		}
	}
	return path, nil
}

// WritePartial writes a progress checkpoint tagged with the reason (auto,
// interrompido, erro). Module datasets are not checkpointed; they are
// rebuilt from cache on resume.
func (s *Store) WritePartial(records []types.Record, tag string) (string, error) {
	return s.writeEnvelope("cadastros_progresso", tag, records, nil)
}

func (s *Store) writeEnvelope(prefix, tag string, records []types.Record, extra map[string]any) (string, error) {
	if records == nil {
		records = []types.Record{}
	}
	ts := s.now().Format("20060102_150405")
	env := Envelope{
		Meta: Meta{
			GeradoEm:       ts,
			Tag:            tag,
			TotalCadastros: len(records),
			Extra:          extra,
		},
		Cadastros: records,
	}

	// Timestamps have second resolution, so two writes inside the same
	// second get a sequence suffix instead of overwriting each other.
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", prefix, ts))
	for seq := 2; ; seq++ {
		if _, err := os.Stat(path); err != nil {
			break
		}
		path = filepath.Join(s.dir, fmt.Sprintf("%s_%s_%d.json", prefix, ts, seq))
	}
	if err := writeJSON(path, env); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Store) writeDataset(name string, rows []map[string]any) error {
	if rows == nil {
		rows = []map[string]any{}
	}
	return writeJSON(filepath.Join(s.dir, name+".json"), rows)
}

// writeJSON writes v via a temp file renamed into place so a crash never
// leaves a half-written snapshot behind.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		if writeErr != nil {
			return fmt.Errorf("writing %s: %w", filepath.Base(path), writeErr)
		}
		return fmt.Errorf("closing %s: %w", filepath.Base(path), closeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Load reads a snapshot envelope back from disk.
func Load(path string) (*Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	return &env, nil
}

// List returns snapshot file paths of the given kind ("completo",
// "progresso", or "todos"), newest first.
func (s *Store) List(kind string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot directory: %w", err)
	}

	var prefix string
	switch kind {
	case "completo":
		prefix = "cadastros_completo_"
	case "progresso":
		prefix = "cadastros_progresso_"
	default:
		prefix = "cadastros_"
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, name))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	return paths, nil
}

// Latest returns the newest complete snapshot, or an error when none exist.
func (s *Store) Latest() (string, error) {
	paths, err := s.List("completo")
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("no complete snapshot found in %s", s.dir)
	}
	return paths[0], nil
}
