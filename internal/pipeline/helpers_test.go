package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-maxprecip/internal/config"
	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
	"github.com/couchcryptid/storm-data-maxprecip/internal/gridding"
	"github.com/couchcryptid/storm-data-maxprecip/internal/observability"
	"github.com/couchcryptid/storm-data-maxprecip/internal/series"
)

const testSite = "fiuta"

var testDate = time.Date(2023, 8, 21, 0, 0, 0, 0, time.UTC)

// --- mocks ---

// fakeReader serves scans by path.
type fakeReader struct {
	scans map[string]*domain.Scan
	errs  map[string]error
	reads int
}

func newFakeReader() *fakeReader {
	return &fakeReader{scans: make(map[string]*domain.Scan), errs: make(map[string]error)}
}

func (r *fakeReader) Read(_ context.Context, path string) (*domain.Scan, error) {
	r.reads++
	if err, ok := r.errs[path]; ok {
		return nil, err
	}
	s, ok := r.scans[path]
	if !ok {
		return nil, fmt.Errorf("open %s: no such file", path)
	}
	cp := *s
	cp.Sweep.Fields = maps.Clone(s.Sweep.Fields)
	return &cp, nil
}

// add registers a scan of site at t and returns its path.
func (r *fakeReader) add(site string, t time.Time) string {
	path := fmt.Sprintf("/data/%s/%s_%s.h5", site, t.Format("200601021504"), site)
	r.scans[path] = testScan(site, t)
	return path
}

func testScan(site string, t time.Time) *domain.Scan {
	source := "WMO:02870,RAD:FI47,PLC:Utajärvi,NOD:" + site
	return &domain.Scan{
		SiteID:     site,
		BeginTime:  t,
		Source:     source,
		Provenance: domain.ParseSource(source),
		Latitude:   64.7749,
		Longitude:  26.3189,
		Altitude:   118,
		Sweep: domain.Sweep{
			Elevation:  0.3,
			RangeStart: 250,
			RangeStep:  500,
			Azimuths:   []float64{0, 90, 180, 270},
			Fields:     map[string]*sparse.DenseArray{domain.DBZH: sparse.ZerosDense(4, 8)},
		},
	}
}

// fakeEngine grids a scan with values from rate; the polar data is ignored.
type fakeEngine struct {
	mu    sync.Mutex
	rate  func(t time.Time, iy, ix int) float64
	calls int
	err   error
}

func (e *fakeEngine) Grid(scan *domain.Scan, field string, _ gridding.GateFilter, params gridding.Params) (*gridding.Grid, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	if _, ok := scan.Sweep.Fields[field]; !ok {
		return nil, fmt.Errorf("no field %s", field)
	}
	x, y := params.XCenters(), params.YCenters()
	data := sparse.ZerosDense(len(y), len(x))
	for iy := range y {
		for ix := range x {
			data.Set(e.rate(scan.BeginTime, iy, ix), iy, ix)
		}
	}
	return &gridding.Grid{X: x, Y: y, Time: scan.BeginTime, Data: data}, nil
}

func (e *fakeEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// fakeDatasetStore serves a fixed dataset; only OpenDataset is used.
type fakeDatasetStore struct {
	ds  *series.Dataset
	err error
}

func (s *fakeDatasetStore) Exists(string) (bool, error) { return false, nil }

func (s *fakeDatasetStore) WriteRate(string, *domain.RateRaster, domain.Encoding) error {
	return errors.New("read-only store")
}

func (s *fakeDatasetStore) OpenDataset(_ context.Context, _ []string) (*series.Dataset, error) {
	return s.ds, s.err
}

type fakePublisher struct {
	events []domain.ProductEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, e domain.ProductEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

type fakeUploader struct {
	keys  []string
	paths []string
}

func (u *fakeUploader) Upload(_ context.Context, key, path string) error {
	u.keys = append(u.keys, key)
	u.paths = append(u.paths, path)
	return nil
}

// memFrame is an in-memory frame of ny×nx values.
type memFrame struct {
	name   string
	t      time.Time
	nx     int
	values []float64
}

func (f *memFrame) Name() string    { return f.name }
func (f *memFrame) Time() time.Time { return f.t }

func (f *memFrame) ReadWindow(y0, y1, x0, x1 int) ([]float64, error) {
	out := make([]float64, 0, (y1-y0)*(x1-x0))
	for y := y0; y < y1; y++ {
		out = append(out, f.values[y*f.nx+x0:y*f.nx+x1]...)
	}
	return out, nil
}

// --- helpers ---

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	w, err := domain.ParseWindow("1H")
	require.NoError(t, err)
	return &config.Config{
		CacheDir:          filepath.Join(t.TempDir(), "cache"),
		ResultsDir:        t.TempDir(),
		Grid:              domain.GridConfig{Size: 4, Resolution: 250, EPSG: 3067, Proj4: domain.TM35FIN},
		Window:            w,
		DBZField:          domain.DBZH,
		ScansPerHour:      12,
		ZRA:               223,
		ZRB:               1.53,
		OpenWorkers:       2,
		MaxOpenFiles:      64,
		KafkaProductTopic: "precip-max-products",
		Version:           "test",
	}
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

// fiveMinute returns n timestamps five minutes apart starting at start.
func fiveMinute(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * 5 * time.Minute)
	}
	return out
}

// memSeries builds a ny×nx series over times with values from rate.
func memSeries(t *testing.T, times []time.Time, ny, nx, chunk int, rate func(t time.Time, iy, ix int) float64) *series.Series {
	t.Helper()
	frames := make([]series.Frame, len(times))
	for i, ts := range times {
		f := &memFrame{name: fmt.Sprintf("frame-%d", i), t: ts, nx: nx, values: make([]float64, ny*nx)}
		for iy := 0; iy < ny; iy++ {
			for ix := 0; ix < nx; ix++ {
				f.values[iy*nx+ix] = rate(ts, iy, ix)
			}
		}
		frames[i] = f
	}
	s, err := series.New(frames, coords(nx), coords(ny), map[string]string{"NOD": testSite}, chunk)
	require.NoError(t, err)
	return s
}

func coords(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 125 + 250*float64(i)
	}
	return out
}

// spike is rate inside the 2×2 block at rows and columns 1-2 from start for n
// steps of five minutes, zero elsewhere.
func spike(start time.Time, n int, rate float64) func(time.Time, int, int) float64 {
	end := start.Add(time.Duration(n) * 5 * time.Minute)
	return func(t time.Time, iy, ix int) float64 {
		if iy < 1 || iy > 2 || ix < 1 || ix > 2 || t.Before(start) || !t.Before(end) {
			return 0
		}
		return rate
	}
}
