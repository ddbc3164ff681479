package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tariffsim/internal/etr"
	"tariffsim/internal/model"
)

func ReadGeoJSON(r io.Reader) (model.FeatureCollection, error) {
	var fc model.FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return model.FeatureCollection{}, fmt.Errorf("decode geojson: %w", err)
	}
	if fc.Type != "" && fc.Type != "FeatureCollection" {
		return model.FeatureCollection{}, fmt.Errorf("geojson: unexpected type %q", fc.Type)
	}
	return fc, nil
}

// GeoCountries extracts the country reference from feature properties, in
// feature order. Features without an iso3 property are skipped.
func GeoCountries(fc model.FeatureCollection) []model.GeoCountry {
	countries := make([]model.GeoCountry, 0, len(fc.Features))
	for _, feature := range fc.Features {
		iso3 := stringProperty(feature.Properties, "iso3")
		if iso3 == "" {
			continue
		}
		countries = append(countries, model.GeoCountry{
			ISO3: strings.ToUpper(iso3),
			ISO2: strings.ToUpper(stringProperty(feature.Properties, "iso2")),
			Name: stringProperty(feature.Properties, "name"),
		})
	}
	return countries
}

func stringProperty(props map[string]any, key string) string {
	for k, v := range props {
		if !strings.EqualFold(k, key) {
			continue
		}
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// LoadTariffFiles reads tariff actions in order. The files may be YAML or
// JSON.
func LoadTariffFiles(paths ...string) ([]etr.TariffFile, error) {
	files := make([]etr.TariffFile, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read tariff file: %w", err)
		}
		var file etr.TariffFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse tariff file %s: %w", path, err)
		}
		if file.Name == "" {
			file.Name = path
		}
		files = append(files, file)
	}
	return files, nil
}

func LoadSectorGroups(path string) (etr.SectorGroups, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sector groups: %w", err)
	}
	groups := etr.SectorGroups{}
	if err := yaml.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("parse sector groups: %w", err)
	}
	return groups, nil
}
