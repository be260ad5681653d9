package riskmap

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/rockfall.report/internal/fsutil"
	"github.com/banshee-data/rockfall.report/internal/monitoring"
	"github.com/banshee-data/rockfall.report/internal/timeutil"
)

type recordingRecorder struct {
	mu   sync.Mutex
	seen []*Dataset
	err  error
}

func (r *recordingRecorder) RecordLoad(ds *Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, ds)
	return r.err
}

func quietLogs(t *testing.T) {
	t.Helper()
	prev := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(prev) })
}

func TestPipeline_NoDataset(t *testing.T) {
	p := NewPipeline(fsutil.NewMemoryFileSystem(), nil)

	_, err := p.Current()
	assert.ErrorIs(t, err, ErrNoDataset)
	_, err = p.View(ViewParams{Threshold: 0.6, TopN: 20, Index: 1})
	assert.ErrorIs(t, err, ErrNoDataset)
	_, err = p.Top(5)
	assert.ErrorIs(t, err, ErrNoDataset)
}

func TestPipeline_LoadAndView(t *testing.T) {
	quietLogs(t)
	rec := &recordingRecorder{}
	p := NewPipeline(fsutil.NewMemoryFileSystem(), rec)

	ds, err := p.LoadReader("upload.csv", strings.NewReader("lat,lon,probability\n46,7,0.2\n46,8,0.9\n47,7,0.7\n47,8,0.4\n"))
	require.NoError(t, err)
	assert.Equal(t, Geographic, ds.Georef.Mode)
	assert.NotEmpty(t, ds.ID)
	require.Len(t, rec.seen, 1)

	v, err := p.View(ViewParams{Threshold: 0.6, TopN: 2, Index: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, v.Top.Len())
	assert.True(t, v.HasSelection)
	assert.Equal(t, 0.9, v.Selected.Probability)

	r, c := v.Mask.Dims()
	assert.Equal(t, GridResolution, r)
	assert.Equal(t, GridResolution, c)
	assert.Equal(t, 1.0, v.Mask.At(0, GridResolution-1), "sample at 0.9 is above the cutoff")
	assert.Equal(t, 0.0, v.Mask.At(0, 0))
}

func TestPipeline_ViewClampsControls(t *testing.T) {
	quietLogs(t)
	p := NewPipeline(nil, nil)
	_, err := p.LoadReader("u", strings.NewReader("probability\n0.1\n0.5\n0.9\n0.3\n"))
	require.NoError(t, err)

	v, err := p.View(ViewParams{Threshold: 4, TopN: 0, Index: 50})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Threshold)
	assert.Equal(t, 1, v.Top.Len())
	assert.Equal(t, 1, v.SelectedIndex)
}

func TestPipeline_FailedLoadKeepsPrevious(t *testing.T) {
	quietLogs(t)
	p := NewPipeline(fsutil.NewMemoryFileSystem(), nil)

	first, err := p.LoadReader("good.csv", strings.NewReader("probability\n0.5\n"))
	require.NoError(t, err)

	_, err = p.LoadReader("bad.csv", strings.NewReader("lat,lon\n1,2\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingProbability))

	_, err = p.LoadPath("/missing.csv")
	require.Error(t, err)

	cur, err := p.Current()
	require.NoError(t, err)
	assert.Same(t, first, cur)
}

func TestPipeline_LoadPath(t *testing.T) {
	quietLogs(t)
	fs := fsutil.NewMemoryFileSystem()
	fs.WriteFile("maps/probability_map.csv", []byte("probability\n0.1\n0.2\n0.3\n0.4\n"))
	p := NewPipeline(fs, nil)

	ds, err := p.LoadPath("maps/probability_map.csv")
	require.NoError(t, err)
	assert.Equal(t, "maps/probability_map.csv", ds.Source)
	assert.Equal(t, GridIndex, ds.Georef.Mode)
}

func TestPipeline_LoadPathOutsideDataDirs(t *testing.T) {
	quietLogs(t)
	dataDir := t.TempDir()
	outside := filepath.Join(t.TempDir(), "secret.csv")
	require.NoError(t, os.WriteFile(outside, []byte("probability\n0.9\n"), 0644))
	inside := filepath.Join(dataDir, "map.csv")
	require.NoError(t, os.WriteFile(inside, []byte("probability\n0.5\n"), 0644))

	p := NewPipeline(fsutil.OSFileSystem{}, nil)
	p.SetDataDirs([]string{dataDir})

	first, err := p.LoadPath(inside)
	require.NoError(t, err)

	for _, path := range []string{outside, filepath.Join(dataDir, "..", filepath.Base(filepath.Dir(outside)), "secret.csv"), "/etc/passwd"} {
		_, err := p.LoadPath(path)
		assert.ErrorIs(t, err, ErrPathNotAllowed, path)
	}

	cur, err := p.Current()
	require.NoError(t, err)
	assert.Same(t, first, cur)

	t.Run("default is the working directory", func(t *testing.T) {
		_, err := NewPipeline(fsutil.OSFileSystem{}, nil).LoadPath(outside)
		assert.ErrorIs(t, err, ErrPathNotAllowed)
	})
}

func TestPipeline_SurfaceIsMemoized(t *testing.T) {
	quietLogs(t)
	p := NewPipeline(nil, nil)
	const csv = "probability\n0.9\n0.8\n0.7\n"

	_, err := p.LoadReader("a", strings.NewReader(csv))
	require.NoError(t, err)
	_, s1, err := p.Surface()
	require.NoError(t, err)

	// Reloading identical bytes reuses the surface, noise included.
	_, err = p.LoadReader("b", strings.NewReader(csv))
	require.NoError(t, err)
	_, s2, err := p.Surface()
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Equal(t, CacheStats{Entries: 1, Hits: 1, Misses: 1}, p.CacheStats())
	assert.True(t, s1.Degraded)
}

func TestPipeline_FallbackNoiseIsContentSeeded(t *testing.T) {
	quietLogs(t)
	const csv = "probability\n0.9\n0.8\n"

	a := NewPipeline(nil, nil)
	b := NewPipeline(nil, nil)
	_, _ = a.LoadReader("a", strings.NewReader(csv))
	_, _ = b.LoadReader("b", strings.NewReader(csv))
	_, sa, err := a.Surface()
	require.NoError(t, err)
	_, sb, err := b.Surface()
	require.NoError(t, err)

	assert.True(t, mat.Equal(sa.Z, sb.Z))
}

func TestPipeline_RecorderErrorIsNotFatal(t *testing.T) {
	var logged []string
	prev := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) { logged = append(logged, format) })
	t.Cleanup(func() { monitoring.SetLogger(prev) })

	p := NewPipeline(nil, &recordingRecorder{err: errors.New("disk full")})
	_, err := p.LoadReader("u", strings.NewReader("probability\n0.5\n"))
	require.NoError(t, err)
	assert.Contains(t, strings.Join(logged, "\n"), "failed to record load")
}

func TestPipeline_LoadedAtUsesClock(t *testing.T) {
	quietLogs(t)
	p := NewPipeline(fsutil.NewMemoryFileSystem(), nil)
	loaded := time.Date(2024, 3, 9, 8, 30, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(loaded)
	p.SetClock(clock)

	ds, err := p.LoadReader("a.csv", strings.NewReader("probability\n0.1\n"))
	require.NoError(t, err)
	assert.True(t, ds.LoadedAt.Equal(loaded))

	clock.Advance(time.Minute)
	ds, err = p.LoadReader("b.csv", strings.NewReader("probability\n0.2\n"))
	require.NoError(t, err)
	assert.True(t, ds.LoadedAt.Equal(loaded.Add(time.Minute)))
}
