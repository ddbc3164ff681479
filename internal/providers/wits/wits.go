package wits

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tariffsim/internal/model"
	"tariffsim/internal/providers"
)

const (
	defaultBaseURL           = "https://wits.worldbank.org/API/V1/"
	defaultTradePathTemplate = "SDMX/V21/datasource/tradestats-trade/reporter/{reporter}/year/{year}/partner/{partner}/product/{product}/indicator/{indicator}"
	defaultReportersPath     = "wits/datasource/tradestats-trade/country/ALL"
	defaultDataAvailPath     = "wits/datasource/tradestats-trade/dataavailability/country/{reporter}/indicator/{indicator}"
	defaultAPIKeyParam       = "token"
	defaultFormatParam       = "format"
	defaultFormatValue       = "JSON"
	defaultRateLimitPerSec   = 5
	defaultRateLimitBurst    = 5
	defaultTimeoutSeconds    = 20
	defaultUserAgent         = "tariffsim/0.1"
	defaultIndicator         = "XPRT-TRD-VL"
	defaultProductCode       = "Total"
	defaultYearAllValue      = "all"
	defaultValueMultiplier   = 1000
)

var ErrNoRecords = errors.New("wits: no records found")

type Config struct {
	BaseURL           string
	TradePathTemplate string
	ReportersPath     string
	DataAvailPath     string
	APIKey            string
	APIKeyParam       string
	FormatParam       string
	FormatValue       string
	RateLimitPerSec   int
	RateLimitBurst    int
	Timeout           time.Duration
	UserAgent         string
	Indicator         string
	ProductCode       string
	YearAllValue      string
	ValueMultiplier   float64
}

type Provider struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	mu      sync.Mutex
	yearMap map[string]int
}

func New() (*Provider, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

func NewWithConfig(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("wits base url is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/"
	if strings.TrimSpace(cfg.TradePathTemplate) == "" {
		cfg.TradePathTemplate = defaultTradePathTemplate
	}
	if strings.TrimSpace(cfg.ReportersPath) == "" {
		cfg.ReportersPath = defaultReportersPath
	}
	if strings.TrimSpace(cfg.DataAvailPath) == "" {
		cfg.DataAvailPath = defaultDataAvailPath
	}
	if cfg.APIKeyParam == "" {
		cfg.APIKeyParam = defaultAPIKeyParam
	}
	if cfg.FormatParam == "" {
		cfg.FormatParam = defaultFormatParam
	}
	if cfg.FormatValue == "" {
		cfg.FormatValue = defaultFormatValue
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = defaultRateLimitPerSec
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = defaultRateLimitBurst
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Indicator == "" {
		cfg.Indicator = defaultIndicator
	}
	if cfg.ProductCode == "" {
		cfg.ProductCode = defaultProductCode
	}
	if cfg.YearAllValue == "" {
		cfg.YearAllValue = defaultYearAllValue
	}
	if cfg.ValueMultiplier == 0 {
		cfg.ValueMultiplier = defaultValueMultiplier
	}
	return &Provider{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
		yearMap: make(map[string]int),
	}, nil
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		BaseURL:           getenv("WITS_BASE_URL", defaultBaseURL),
		TradePathTemplate: getenv("WITS_TRADE_PATH", defaultTradePathTemplate),
		ReportersPath:     getenv("WITS_REPORTERS_PATH", defaultReportersPath),
		DataAvailPath:     getenv("WITS_DATAAVAIL_PATH", defaultDataAvailPath),
		APIKey:            strings.TrimSpace(os.Getenv("WITS_API_KEY")),
		APIKeyParam:       getenv("WITS_API_KEY_PARAM", defaultAPIKeyParam),
		FormatParam:       getenv("WITS_FORMAT_PARAM", defaultFormatParam),
		FormatValue:       getenv("WITS_FORMAT_VALUE", defaultFormatValue),
		UserAgent:         getenv("WITS_USER_AGENT", defaultUserAgent),
		Indicator:         getenv("WITS_INDICATOR_EXPORT", defaultIndicator),
		ProductCode:       getenv("WITS_PRODUCT_CODE", defaultProductCode),
		YearAllValue:      getenv("WITS_YEAR_ALL", defaultYearAllValue),
		ValueMultiplier:   getenvFloat("WITS_VALUE_MULTIPLIER", defaultValueMultiplier),
	}

	cfg.RateLimitPerSec = getenvInt("WITS_RATE_LIMIT_PER_SEC", defaultRateLimitPerSec)
	cfg.RateLimitBurst = getenvInt("WITS_RATE_LIMIT_BURST", defaultRateLimitBurst)
	cfg.Timeout = time.Duration(getenvInt("WITS_TIMEOUT_SECONDS", defaultTimeoutSeconds)) * time.Second

	return cfg, nil
}

func (p *Provider) Name() string {
	return "wits"
}

// ListReporters returns the individual reporting countries; country groups
// are skipped.
func (p *Provider) ListReporters(ctx context.Context) ([]model.GeoCountry, error) {
	body, err := p.doRequest(ctx, p.config.ReportersPath, nil, "application/xml")
	if err != nil {
		return nil, err
	}
	reporters, err := parseReportersXML(body)
	if err != nil {
		return nil, err
	}

	if len(reporters) == 0 {
		return nil, errors.New("wits: no reporters parsed")
	}
	return reporters, nil
}

// FetchSeries returns annual exports from reporter to partner, sorted by
// year. A zero fromYear or toYear leaves that end of the range open.
func (p *Provider) FetchSeries(ctx context.Context, reporterISO3, partnerISO3 string, fromYear, toYear int) ([]model.HistoryPoint, error) {
	reporterISO3 = strings.ToUpper(strings.TrimSpace(reporterISO3))
	partnerISO3 = strings.ToUpper(strings.TrimSpace(partnerISO3))
	if partnerISO3 == "" {
		partnerISO3 = model.DefaultPartner
	}

	path, params := p.tradePath(reporterISO3, partnerISO3, p.yearValue(fromYear, toYear))
	var payload sdmxResponse
	if err := p.doJSON(ctx, path, params, &payload); err != nil {
		return nil, err
	}

	points, err := parseSDMXPoints(payload, reporterISO3, partnerISO3, p.config.ValueMultiplier)
	if err != nil {
		return nil, err
	}

	filtered := points[:0]
	for _, point := range points {
		if fromYear > 0 && point.Year < fromYear {
			continue
		}
		if toYear > 0 && point.Year > toYear {
			continue
		}
		point.Provider = p.Name()
		filtered = append(filtered, point)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Year < filtered[j].Year
	})
	return filtered, nil
}

func (p *Provider) yearValue(fromYear, toYear int) string {
	if fromYear > 0 && fromYear == toYear {
		return strconv.Itoa(fromYear)
	}
	return p.config.YearAllValue
}

func (p *Provider) tradePath(reporterISO3, partnerISO3, yearValue string) (string, url.Values) {
	path := p.config.TradePathTemplate
	params := url.Values{}

	replacements := []struct {
		placeholder string
		param       string
		value       string
	}{
		{"{reporter}", "reporter", reporterISO3},
		{"{partner}", "partner", partnerISO3},
		{"{indicator}", "indicator", p.config.Indicator},
		{"{product}", "product", p.config.ProductCode},
		{"{year}", "year", yearValue},
	}
	for _, r := range replacements {
		if strings.Contains(path, r.placeholder) {
			path = strings.ReplaceAll(path, r.placeholder, url.PathEscape(r.value))
		} else if r.value != "" {
			params.Set(r.param, r.value)
		}
	}

	return path, params
}

func (p *Provider) doJSON(ctx context.Context, path string, params url.Values, dest any) error {
	body, err := p.doRequest(ctx, path, params, "application/json")
	if err != nil {
		return err
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func (p *Provider) doRequest(ctx context.Context, path string, params url.Values, accept string) ([]byte, error) {
	endpoint := p.buildURL(path, params)

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if p.config.UserAgent != "" {
		req.Header.Set("User-Agent", p.config.UserAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound && strings.Contains(string(body), "NoRecordsFound") {
		return nil, ErrNoRecords
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("wits: request failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}

	return body, nil
}

func (p *Provider) buildURL(path string, params url.Values) string {
	base := strings.TrimRight(p.config.BaseURL, "/")
	endpoint := base + "/" + strings.TrimLeft(path, "/")

	query := url.Values{}
	for key, values := range params {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	if p.config.APIKey != "" && p.config.APIKeyParam != "" {
		query.Set(p.config.APIKeyParam, p.config.APIKey)
	}
	if p.config.FormatParam != "" && p.config.FormatValue != "" {
		query.Set(p.config.FormatParam, p.config.FormatValue)
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

type dataAvailabilityResponse struct {
	Reporters []dataAvailabilityReporter `xml:"dataavailability>reporter"`
}

type dataAvailabilityReporter struct {
	Year string `xml:"year"`
}

// LatestYear is the most recent year WITS holds data for reporter under the
// configured indicator. Results are cached per provider.
func (p *Provider) LatestYear(ctx context.Context, reporterISO3 string) (int, error) {
	reporterISO3 = strings.ToUpper(strings.TrimSpace(reporterISO3))
	cacheKey := reporterISO3 + "|" + strings.ToUpper(p.config.Indicator)
	p.mu.Lock()
	if year, ok := p.yearMap[cacheKey]; ok {
		p.mu.Unlock()
		return year, nil
	}
	p.mu.Unlock()

	body, err := p.doRequest(ctx, p.dataAvailabilityPath(reporterISO3), nil, "application/xml")
	if err != nil {
		return 0, err
	}

	var response dataAvailabilityResponse
	if err := xml.Unmarshal(body, &response); err != nil {
		return 0, err
	}

	maxYear := 0
	for _, entry := range response.Reporters {
		year, ok := parseYear(entry.Year)
		if ok && year > maxYear {
			maxYear = year
		}
	}
	if maxYear == 0 {
		return 0, errors.New("wits: no data availability years")
	}

	p.mu.Lock()
	p.yearMap[cacheKey] = maxYear
	p.mu.Unlock()

	return maxYear, nil
}

func (p *Provider) dataAvailabilityPath(reporterISO3 string) string {
	path := p.config.DataAvailPath
	path = strings.ReplaceAll(path, "{reporter}", url.PathEscape(reporterISO3))
	path = strings.ReplaceAll(path, "{indicator}", url.PathEscape(p.config.Indicator))
	return path
}

type witsCountryList struct {
	Countries []witsCountry `xml:"countries>country"`
}

type witsCountry struct {
	ISO3       string `xml:"iso3Code"`
	ISO2       string `xml:"iso2Code"`
	Name       string `xml:"name"`
	IsReporter string `xml:"isreporter,attr"`
	IsGroup    string `xml:"isgroup,attr"`
}

func parseReportersXML(payload []byte) ([]model.GeoCountry, error) {
	var response witsCountryList
	if err := xml.Unmarshal(payload, &response); err != nil {
		return nil, err
	}

	reporters := make([]model.GeoCountry, 0, len(response.Countries))
	for _, country := range response.Countries {
		if strings.TrimSpace(country.ISO3) == "" {
			continue
		}
		if strings.TrimSpace(country.IsReporter) != "1" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(country.IsGroup), "yes") {
			continue
		}
		reporters = append(reporters, model.GeoCountry{
			ISO3: strings.ToUpper(strings.TrimSpace(country.ISO3)),
			ISO2: strings.ToUpper(strings.TrimSpace(country.ISO2)),
			Name: strings.TrimSpace(country.Name),
		})
	}

	return reporters, nil
}

type sdmxResponse struct {
	DataSets  []sdmxDataSet `json:"dataSets"`
	Structure sdmxStructure `json:"structure"`
}

type sdmxDataSet struct {
	Series map[string]sdmxSeries `json:"series"`
}

type sdmxSeries struct {
	Observations map[string][]any `json:"observations"`
}

type sdmxStructure struct {
	Dimensions sdmxDimensions `json:"dimensions"`
}

type sdmxDimensions struct {
	Series      []sdmxDimension `json:"series"`
	Observation []sdmxDimension `json:"observation"`
}

type sdmxDimension struct {
	ID     string      `json:"id"`
	Values []sdmxValue `json:"values"`
}

type sdmxValue struct {
	ID string `json:"id"`
}

// parseSDMXPoints flattens an SDMX-JSON response into annual points. Series
// whose REPORTER or PARTNER dimension is present override the requested
// codes.
func parseSDMXPoints(payload sdmxResponse, reporterISO3, partnerISO3 string, multiplier float64) ([]model.HistoryPoint, error) {
	if len(payload.DataSets) == 0 {
		return nil, errors.New("wits: missing dataset")
	}
	if len(payload.Structure.Dimensions.Observation) == 0 {
		return nil, errors.New("wits: missing observation dimension")
	}

	seriesDims := payload.Structure.Dimensions.Series
	timeDim := payload.Structure.Dimensions.Observation[0]

	dataSet := payload.DataSets[0]
	if len(dataSet.Series) == 0 {
		return nil, ErrNoRecords
	}

	points := make([]model.HistoryPoint, 0)
	for seriesKey, series := range dataSet.Series {
		indices, ok := parseSeriesKey(seriesKey, len(seriesDims))
		if !ok {
			continue
		}

		dimensionValues := map[string]string{}
		for i, dim := range seriesDims {
			if indices[i] < 0 || indices[i] >= len(dim.Values) {
				continue
			}
			dimensionValues[dim.ID] = dim.Values[indices[i]].ID
		}

		reporter := reporterISO3
		if value := dimensionValues["REPORTER"]; value != "" {
			reporter = value
		}
		partner := partnerISO3
		if value := dimensionValues["PARTNER"]; value != "" {
			partner = value
		}

		for obsKey, obsValue := range series.Observations {
			index, err := strconv.Atoi(obsKey)
			if err != nil || index < 0 || index >= len(timeDim.Values) {
				continue
			}
			year, ok := parseYear(timeDim.Values[index].ID)
			if !ok {
				continue
			}
			value, ok := parseSDMXValue(obsValue)
			if !ok {
				continue
			}

			points = append(points, model.HistoryPoint{
				ISO3:     strings.ToUpper(reporter),
				Partner:  strings.ToUpper(partner),
				Year:     year,
				ValueUSD: value * multiplier,
			})
		}
	}

	if len(points) == 0 {
		return nil, errors.New("wits: no observations parsed")
	}
	return points, nil
}

func parseSeriesKey(key string, expected int) ([]int, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != expected {
		return nil, false
	}
	indices := make([]int, len(parts))
	for i, part := range parts {
		index, err := strconv.Atoi(part)
		if err != nil {
			return nil, false
		}
		indices[i] = index
	}
	return indices, true
}

func parseSDMXValue(values []any) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	switch typed := values[0].(type) {
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	case float64:
		return typed, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func parseYear(value string) (int, bool) {
	value = strings.TrimSpace(value)
	if len(value) != 4 {
		return 0, false
	}
	year, err := strconv.Atoi(value)
	if err != nil || year <= 0 {
		return 0, false
	}
	return year, true
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

var _ providers.HistoryProvider = (*Provider)(nil)
