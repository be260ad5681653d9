package riskmap

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/rockfall.report/internal/fsutil"
	"github.com/banshee-data/rockfall.report/internal/monitoring"
	"github.com/banshee-data/rockfall.report/internal/security"
	"github.com/banshee-data/rockfall.report/internal/timeutil"
)

// ErrNoDataset is returned by view operations before any table has loaded.
var ErrNoDataset = errors.New("no dataset loaded")

// ErrPathNotAllowed is returned by LoadPath for paths outside the data directories.
var ErrPathNotAllowed = errors.New("path not allowed")

// Dataset is one successfully loaded table plus its detected schema.
type Dataset struct {
	ID       string
	Source   string
	Table    *Table
	Georef   Georeference
	LoadedAt time.Time
}

// LoadRecorder observes successful loads. Failures are logged, never fatal.
type LoadRecorder interface {
	RecordLoad(ds *Dataset) error
}

// ViewParams are the interactive controls of the dashboard.
type ViewParams struct {
	Threshold float64
	TopN      int
	Index     int
}

// View is everything the renderers need for one request.
type View struct {
	Dataset   *Dataset
	Surface   *Surface
	Mask      *mat.Dense
	Top       *TopRows
	Threshold float64

	Selected      Row
	SelectedIndex int
	HasSelection  bool
}

// Pipeline holds the current dataset and recomputes downstream stages on
// demand: the surface is memoized by (content, georeference); mask and top-N
// are cheap and computed per request.
type Pipeline struct {
	mu       sync.RWMutex
	current  *Dataset
	cache    *SurfaceCache
	fs       fsutil.FileSystem
	recorder LoadRecorder
	clock    timeutil.Clock
	dataDirs []string
}

// NewPipeline returns a pipeline reading paths through fsys. recorder may be
// nil. Paths are confined to the working directory until SetDataDirs.
func NewPipeline(fsys fsutil.FileSystem, recorder LoadRecorder) *Pipeline {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &Pipeline{
		cache:    NewSurfaceCache(),
		fs:       fsys,
		recorder: recorder,
		clock:    timeutil.RealClock{},
		dataDirs: []string{"."},
	}
}

// LoadReader parses an uploaded CSV. On error the current dataset is kept.
func (p *Pipeline) LoadReader(source string, r io.Reader) (*Dataset, error) {
	t, err := ParseCSV(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded CSV: %w", err)
	}
	return p.install(source, t), nil
}

// LoadPath parses the CSV at path, which must lie inside one of the data
// directories. On error the current dataset is kept.
func (p *Pipeline) LoadPath(path string) (*Dataset, error) {
	p.mu.RLock()
	dirs := p.dataDirs
	p.mu.RUnlock()
	if err := security.ValidatePathWithinAllowedDirs(path, dirs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPathNotAllowed, err)
	}
	t, err := LoadCSVFile(p.fs, path)
	if err != nil {
		return nil, err
	}
	return p.install(path, t), nil
}

func (p *Pipeline) install(source string, t *Table) *Dataset {
	ds := &Dataset{
		ID:       uuid.NewString(),
		Source:   source,
		Table:    t,
		Georef:   DetectGeoreference(t.Columns, t.Len()),
		LoadedAt: p.clock.Now(),
	}

	p.mu.Lock()
	p.current = ds
	p.mu.Unlock()

	monitoring.Logf("loaded %s: rows=%d mode=%s fingerprint=%.12s", source, t.Len(), ds.Georef.Mode, t.Fingerprint)
	if p.recorder != nil {
		if err := p.recorder.RecordLoad(ds); err != nil {
			monitoring.Logf("failed to record load %s: %v", ds.ID, err)
		}
	}
	return ds
}

// SetDataDirs replaces the directories LoadPath may read from.
func (p *Pipeline) SetDataDirs(dirs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dataDirs = dirs
}

// SetClock replaces the clock used for load timestamps.
func (p *Pipeline) SetClock(c timeutil.Clock) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = c
}

// Current returns the loaded dataset or ErrNoDataset.
func (p *Pipeline) Current() (*Dataset, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return nil, ErrNoDataset
	}
	return p.current, nil
}

// Surface returns the memoized surface of the current dataset.
func (p *Pipeline) Surface() (*Dataset, *Surface, error) {
	ds, err := p.Current()
	if err != nil {
		return nil, nil, err
	}
	s, err := p.cache.GetOrBuild(ds.Table.Fingerprint, ds.Georef, func() (*Surface, error) {
		start := p.clock.Now()
		s, err := BuildSurface(ds.Table, ds.Georef, fallbackSource(ds.Table.Fingerprint))
		if err == nil {
			r, c := s.Dims()
			monitoring.Debugf("built %dx%d %s surface in %v", r, c, s.Mode, p.clock.Since(start))
		}
		return s, err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build surface: %w", err)
	}
	return ds, s, nil
}

// Top returns the n most probable rows of the current dataset.
func (p *Pipeline) Top(n int) (*TopRows, error) {
	ds, err := p.Current()
	if err != nil {
		return nil, err
	}
	return TopN(ds.Table, n), nil
}

// View runs every stage for one set of control values.
func (p *Pipeline) View(params ViewParams) (*View, error) {
	ds, s, err := p.Surface()
	if err != nil {
		return nil, err
	}
	threshold := ClampThreshold(params.Threshold)
	v := &View{
		Dataset:   ds,
		Surface:   s,
		Mask:      ThresholdMask(s.Z, threshold),
		Top:       TopN(ds.Table, params.TopN),
		Threshold: threshold,
	}
	v.Selected, v.SelectedIndex, v.HasSelection = v.Top.Select(params.Index)
	return v, nil
}

// CacheStats exposes the surface cache counters.
func (p *Pipeline) CacheStats() CacheStats {
	return p.cache.Stats()
}

// fallbackSource seeds placeholder noise from the table content so a
// rebuilt surface for the same table looks the same.
func fallbackSource(fingerprint string) rand.Source {
	raw, err := hex.DecodeString(fingerprint)
	if err != nil || len(raw) < 16 {
		return rand.NewPCG(0, 0)
	}
	return rand.NewPCG(binary.LittleEndian.Uint64(raw[:8]), binary.LittleEndian.Uint64(raw[8:16]))
}
