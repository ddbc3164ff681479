// Package publish writes the precomputed views as static JSON files for a
// static dashboard build.
package publish

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"tariffsim/internal/dataset"
	"tariffsim/internal/model"
	"tariffsim/internal/views"
)

type metaFile struct {
	GeneratedAt string `json:"generated_at"`
	Version     string `json:"version"`
	Rows        int    `json:"rows"`
	Countries   int    `json:"countries"`
	Sectors     int    `json:"sectors"`
	Unmatched   int    `json:"unmatched"`
}

type optionsFile struct {
	Countries   views.Options     `json:"countries"`
	Sectors     views.Options     `json:"sectors"`
	SectorFiles map[string]string `json:"sector_files"`
}

type tableFile struct {
	Version string      `json:"version"`
	Rows    []views.Row `json:"rows"`
}

type historyFile struct {
	Points []model.HistoryPoint `json:"points"`
	All    []model.HistoryPoint `json:"all"`
}

// Summary reports what Build wrote.
type Summary struct {
	OutDir string
	Files  int
}

// Build writes every view in ETR mode under outDir. Existing files are
// overwritten.
func Build(ds *dataset.Dataset, outDir string, logger zerolog.Logger) (Summary, error) {
	w := &writer{outDir: outDir}

	sectors := views.SectorOptions(ds.Table)
	countries := views.CountryOptions(ds.Table)
	sectorFiles, err := sectorSlugs(sectors.Keys())
	if err != nil {
		return Summary{}, err
	}

	w.write("meta.json", metaFile{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Version:     ds.Version(),
		Rows:        ds.Table.Len(),
		Countries:   len(ds.Table.Countries()),
		Sectors:     len(ds.Table.Sectors()),
		Unmatched:   len(ds.Report.Unmatched),
	})
	w.write("options.json", optionsFile{Countries: countries, Sectors: sectors, SectorFiles: sectorFiles})

	rows := make([]views.Row, 0, ds.Table.Len())
	ds.Table.Each(func(record model.TradeRecord) {
		rows = append(rows, views.Present(views.NewEntry(record, views.ETRMode)))
	})
	w.write("table.json", tableFile{Version: ds.Version(), Rows: rows})

	for _, sector := range sectors.Keys() {
		slug := sectorFiles[sector]
		w.write(filepath.Join("map", slug+".json"), views.MapOverlay(ds.Table, ds.Geo, sector))
		w.write(filepath.Join("ranked", slug+".json"), views.BuildRanked(ds.Table, sector, views.ETRMode, views.UnitUSD, 0))
		if sector != model.AllSectors {
			w.write(filepath.Join("detail", "sector", slug+".json"),
				views.BuildDetail(ds.Table, ds.History, model.AllCountries, sector, views.ETRMode))
		}
	}
	for _, country := range countries.Keys() {
		w.write(filepath.Join("detail", "country", strings.ToLower(country)+".json"),
			views.BuildDetail(ds.Table, ds.History, country, model.AllSectors, views.ETRMode))
	}

	w.write("history.json", historyFile{
		Points: views.UniqueHistory(ds.History),
		All:    views.History(ds.History, model.AllCountries),
	})

	if w.err != nil {
		return Summary{}, w.err
	}
	logger.Info().Str("out", outDir).Int("files", w.files).Str("version", ds.Version()).Msg("publish complete")
	return Summary{OutDir: outDir, Files: w.files}, nil
}

// writer stops at the first error.
type writer struct {
	outDir string
	files  int
	err    error
}

func (w *writer) write(name string, value any) {
	if w.err != nil {
		return
	}
	path := filepath.Join(w.outDir, name)
	if err := writeJSON(path, value); err != nil {
		w.err = fmt.Errorf("write %s: %w", name, err)
		return
	}
	w.files++
}

func writeJSON(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	return encodeJSON(file, value)
}

// encodeJSON writes value to wc and closes it, reporting the first error.
func encodeJSON(wc io.WriteCloser, value any) error {
	encoder := json.NewEncoder(wc)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		_ = wc.Close()
		return err
	}
	return wc.Close()
}

// Slug lowercases value and collapses every run of non-alphanumeric
// characters to a single dash.
func Slug(value string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

func sectorSlugs(sectors []string) (map[string]string, error) {
	slugs := make(map[string]string, len(sectors))
	owners := make(map[string]string, len(sectors))
	for _, sector := range sectors {
		slug := Slug(sector)
		if slug == "" {
			return nil, fmt.Errorf("sector %q has no usable file name", sector)
		}
		if owner, ok := owners[slug]; ok {
			return nil, fmt.Errorf("sectors %q and %q map to the same file name %q", owner, sector, slug)
		}
		owners[slug] = sector
		slugs[sector] = slug
	}
	return slugs, nil
}
