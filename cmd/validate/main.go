// Command validate checks the integrity of a rate cache directory: every file
// name parses, headers match the grid named in the file name, the stored time
// matches the name and the packing is the fixed cache encoding. It then
// summarises each cached series.
//
// Usage:
//
//	go run ./cmd/validate -cache-dir /tmp/maksicache
//	go run ./cmd/validate -cache-dir /tmp/maksicache -size 2048 -resolution 250 -stats
package main

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/storm-data-maxprecip/internal/adapter/netcdf"
	"github.com/couchcryptid/storm-data-maxprecip/internal/config"
	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// entry is one cache file that parsed and could be inspected.
type entry struct {
	path string
	key  domain.CacheKey
	info *netcdf.Info
}

// group is a series of entries sharing site and configuration.
type group struct {
	label   string
	entries []entry
}

type options struct {
	cacheDir   string
	size       int
	resolution int
	stats      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.cacheDir, "cache-dir", config.DefaultCacheDir, "rate cache directory")
	flag.IntVar(&opts.size, "size", 0, "expected grid size (0 accepts any)")
	flag.IntVar(&opts.resolution, "resolution", 0, "expected grid resolution in metres (0 accepts any)")
	flag.BoolVar(&opts.stats, "stats", false, "read every raster and report rate statistics")
	flag.Parse()

	os.Exit(run(opts))
}

func run(opts options) int {
	fmt.Println("=== Rate Cache Validation ===")
	fmt.Println()

	paths, err := filepath.Glob(filepath.Join(opts.cacheDir, "*"+domain.CacheExt))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: list cache: %v\n", err)
		return 1
	}
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "FATAL: no %s files in %s\n", domain.CacheExt, opts.cacheDir)
		return 1
	}
	slices.Sort(paths)

	store := netcdf.NewStore(8, 64)
	defer store.Close()

	names := &phase{name: "Cache file names"}
	headers := &phase{name: "Header dimensions"}
	times := &phase{name: "Timestamps match names"}
	encoding := &phase{name: "Encoding attributes"}

	var entries []entry
	for _, path := range paths {
		base := filepath.Base(path)
		key, err := domain.ParseCacheName(base)
		if err != nil {
			names.errorf("%s: %v", base, err)
			continue
		}
		info, err := store.Inspect(path)
		if err != nil {
			headers.errorf("%v", err)
			continue
		}
		checkHeader(headers, base, key, info, opts)
		if got := info.Time.Truncate(time.Minute); !got.Equal(key.Time) {
			times.errorf("%s: stored time %s, name says %s", base, info.Time.Format(time.RFC3339), key.Time.Format(time.RFC3339))
		}
		if info.Encoding != domain.DefaultEncoding() {
			encoding.errorf("%s: fill %d scale %g", base, info.Encoding.FillValue, info.Encoding.ScaleFactor)
		}
		entries = append(entries, entry{path: path, key: key, info: info})
	}

	phases := []*phase{names, headers, times, encoding}
	groups := groupEntries(entries)

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Files: %d found, %d valid, %d series\n", len(paths), len(entries), len(groups))
	for _, g := range groups {
		summarise(g)
		if opts.stats {
			if err := rateStats(store, g); err != nil {
				fmt.Printf("    stats: %v\n", err)
				allPassed = false
			}
		}
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func checkHeader(p *phase, name string, key domain.CacheKey, info *netcdf.Info, opts options) {
	if len(info.X) != key.Size || len(info.Y) != key.Size {
		p.errorf("%s: grid %dx%d, name says %dpx", name, len(info.Y), len(info.X), key.Size)
		return
	}
	if opts.size != 0 && key.Size != opts.size {
		p.errorf("%s: size %d, want %d", name, key.Size, opts.size)
	}
	if opts.resolution != 0 && key.Resolution != opts.resolution {
		p.errorf("%s: resolution %d, want %d", name, key.Resolution, opts.resolution)
	}
	if len(info.X) > 1 {
		if dx := info.X[1] - info.X[0]; math.Abs(dx-float64(key.Resolution)) > 1e-6 {
			p.errorf("%s: x spacing %g m, name says %d m", name, dx, key.Resolution)
		}
	}
	if len(info.Y) > 1 {
		if dy := info.Y[1] - info.Y[0]; math.Abs(dy-float64(key.Resolution)) > 1e-6 {
			p.errorf("%s: y spacing %g m, name says %d m", name, dy, key.Resolution)
		}
	}
}

func groupEntries(entries []entry) []group {
	byLabel := make(map[string]*group)
	for _, e := range entries {
		k := e.key
		label := fmt.Sprintf("%s %dpx %dm%s", k.SiteID, k.Size, k.Resolution, k.Correction)
		g, ok := byLabel[label]
		if !ok {
			g = &group{label: label}
			byLabel[label] = g
		}
		g.entries = append(g.entries, e)
	}
	out := make([]group, 0, len(byLabel))
	for _, g := range byLabel {
		slices.SortFunc(g.entries, func(a, b entry) int { return a.key.Time.Compare(b.key.Time) })
		out = append(out, *g)
	}
	slices.SortFunc(out, func(a, b group) int { return cmp.Compare(a.label, b.label) })
	return out
}

// summarise prints the time coverage and gap statistics of a series.
func summarise(g group) {
	first, last := g.entries[0].key.Time, g.entries[len(g.entries)-1].key.Time
	days := make(map[string]int)
	var gaps []float64
	for i, e := range g.entries {
		days[e.key.Time.Format(domain.DateLayout)]++
		if i > 0 {
			gaps = append(gaps, e.key.Time.Sub(g.entries[i-1].key.Time).Minutes())
		}
	}
	fmt.Printf("  %s: %d files, %d days, %s to %s\n", g.label, len(g.entries), len(days),
		first.Format("2006-01-02 15:04"), last.Format("2006-01-02 15:04"))
	if len(gaps) == 0 {
		return
	}
	times := make([]time.Time, len(g.entries))
	for i, e := range g.entries {
		times[i] = e.key.Time
	}
	step, err := domain.NativeStep(times)
	if err != nil {
		fmt.Printf("    step: %v\n", err)
		return
	}
	long := 0
	for _, gap := range gaps {
		if gap > step.Minutes() {
			long++
		}
	}
	fmt.Printf("    step %s, mean gap %.1f min, longest gap %.0f min, %d gaps longer than the step\n",
		step, stat.Mean(gaps, nil), floats.Max(gaps), long)
	var short []string
	for day, n := range days {
		if want := int((24 * time.Hour) / step); n < want {
			short = append(short, fmt.Sprintf("%s (%d/%d)", day, n, want))
		}
	}
	if len(short) > 0 {
		slices.Sort(short)
		fmt.Printf("    incomplete days: %s\n", strings.Join(short, ", "))
	}
}

// rateStats reads every raster of a series and prints the distribution of
// per-scan maximum rates.
func rateStats(store *netcdf.Store, g group) error {
	paths := make([]string, len(g.entries))
	for i, e := range g.entries {
		paths[i] = e.path
	}
	ds, err := store.OpenDataset(context.Background(), paths)
	if err != nil {
		return err
	}
	ny, nx := len(ds.Y), len(ds.X)
	maxima := make([]float64, 0, len(ds.Frames))
	missing := 0
	for _, f := range ds.Frames {
		vals, err := f.ReadWindow(0, ny, 0, nx)
		if err != nil {
			return err
		}
		m := math.NaN()
		for _, v := range vals {
			if math.IsNaN(v) {
				missing++
				continue
			}
			if math.IsNaN(m) || v > m {
				m = v
			}
		}
		if !math.IsNaN(m) {
			maxima = append(maxima, m)
		}
	}
	if len(maxima) == 0 {
		fmt.Printf("    rates: every cell missing\n")
		return nil
	}
	sorted := slices.Clone(maxima)
	slices.Sort(sorted)
	fmt.Printf("    per-scan max rate: mean %.2f, median %.2f, max %.2f mm/h; %d missing cells\n",
		stat.Mean(maxima, nil), stat.Quantile(0.5, stat.Empirical, sorted, nil), floats.Max(maxima), missing)
	return nil
}
