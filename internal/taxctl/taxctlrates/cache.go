// Copyright 2026 Peter Edge
//
// All rights reserved.

package taxctlrates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/bufdev/taxctl/internal/pkg/frankfurter"
	"github.com/bufdev/taxctl/internal/pkg/nbp"
	"github.com/bufdev/taxctl/internal/standard/xos"
	"github.com/bufdev/taxctl/internal/standard/xtime"
	"github.com/shopspring/decimal"
)

const (
	// SourceNBP downloads NBP table A archives.
	SourceNBP = "nbp"
	// SourceFrankfurter builds archives from ECB rates served by frankfurter.dev.
	SourceFrankfurter = "frankfurter"
)

// AllSources are the known source names.
var AllSources = []string{SourceNBP, SourceFrankfurter}

// Source fetches yearly archives in the NBP table A format.
type Source interface {
	// Name is the source name used in cache file names.
	Name() string
	// FetchYear returns the archive for the calendar year.
	FetchYear(ctx context.Context, year int) ([]byte, error)
}

// NewNBPSource returns a Source backed by the NBP archive.
func NewNBPSource(client nbp.Client) Source {
	return &nbpSource{client: client}
}

// NewFrankfurterSource returns a Source that queries frankfurter.dev for each
// currency against the base currency and serializes the result as an archive.
func NewFrankfurterSource(client frankfurter.Client, baseCurrency string, currencies []string) Source {
	return &frankfurterSource{
		client:       client,
		baseCurrency: baseCurrency,
		currencies:   slices.Clone(currencies),
	}
}

// NewSource returns the Source with the given name.
func NewSource(name string, baseCurrency string, currencies []string) (Source, error) {
	switch name {
	case SourceNBP:
		return NewNBPSource(nbp.NewClient()), nil
	case SourceFrankfurter:
		return NewFrankfurterSource(frankfurter.NewClient(), baseCurrency, currencies), nil
	default:
		return nil, fmt.Errorf("unknown rate source %q, expected one of %v", name, AllSources)
	}
}

// Cache stores yearly archives on disk as <dir>/<source>_rates_<year>.csv.
type Cache struct {
	logger  *slog.Logger
	dirPath string
	source  Source
}

// NewCache returns a new Cache.
func NewCache(logger *slog.Logger, dirPath string, source Source) *Cache {
	return &Cache{
		logger:  logger,
		dirPath: dirPath,
		source:  source,
	}
}

// FilePath returns the cache file path for the year.
func (c *Cache) FilePath(year int) string {
	return filepath.Join(c.dirPath, fmt.Sprintf("%s_rates_%d.csv", c.source.Name(), year))
}

// Archive returns the archive for the year, fetching and storing it on a miss.
func (c *Cache) Archive(ctx context.Context, year int) ([]byte, error) {
	filePath := c.FilePath(year)
	data, err := os.ReadFile(filePath)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return c.Refresh(ctx, year)
}

// Refresh fetches the archive for the year and overwrites the cache file.
func (c *Cache) Refresh(ctx context.Context, year int) ([]byte, error) {
	filePath := c.FilePath(year)
	c.logger.InfoContext(ctx, "downloading exchange rates", "source", c.source.Name(), "year", year)
	data, err := c.source.FetchYear(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("fetching %s rates for %d: %w", c.source.Name(), year, err)
	}
	if err := xos.WriteFileAtomic(filePath, data, 0o644); err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "cached exchange rates", "path", filePath)
	return data, nil
}

// Observations parses the cached archive for the year.
func (c *Cache) Observations(ctx context.Context, year int, currencies []string) (Observations, error) {
	data, err := c.Archive(ctx, year)
	if err != nil {
		return nil, err
	}
	observations, err := ParseArchive(bytes.NewReader(data), currencies)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", c.FilePath(year), err)
	}
	return observations, nil
}

// LoadTable builds a Table from the cached archives of fromYear through toYear.
func LoadTable(ctx context.Context, cache *Cache, fromYear int, toYear int, currencies []string) (*Table, error) {
	if fromYear > toYear {
		return nil, fmt.Errorf("invalid year range %d to %d", fromYear, toYear)
	}
	observations := make(Observations)
	for year := fromYear; year <= toYear; year++ {
		yearObservations, err := cache.Observations(ctx, year, currencies)
		if err != nil {
			return nil, err
		}
		observations.Merge(yearObservations)
	}
	return NewTable(observations)
}

// LazyProvider loads yearly archives from a Cache on first use.
//
// A lookup for a date loads the archive of that year and of the previous
// year, so the first days of January forward-fill from the last rate of
// December. Loaded years are kept for the life of the provider.
type LazyProvider struct {
	ctx        context.Context
	cache      *Cache
	currencies []string

	lock         sync.Mutex
	loadedYears  map[int]struct{}
	observations Observations
	table        *Table
}

// NewLazyProvider returns a new LazyProvider. The context is used for every
// download the provider performs.
func NewLazyProvider(ctx context.Context, cache *Cache, currencies []string) *LazyProvider {
	return &LazyProvider{
		ctx:          ctx,
		cache:        cache,
		currencies:   slices.Clone(currencies),
		loadedYears:  make(map[int]struct{}),
		observations: make(Observations),
	}
}

// Rate implements Provider.
func (p *LazyProvider) Rate(currency string, date xtime.Date) (decimal.Decimal, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if err := p.load(date.Year-1, date.Year); err != nil {
		return decimal.Decimal{}, err
	}
	return p.table.Rate(currency, date)
}

// *** PRIVATE ***

func (p *LazyProvider) load(years ...int) error {
	changed := false
	for _, year := range years {
		if _, ok := p.loadedYears[year]; ok {
			continue
		}
		observations, err := p.cache.Observations(p.ctx, year, p.currencies)
		if err != nil {
			return err
		}
		p.observations.Merge(observations)
		p.loadedYears[year] = struct{}{}
		changed = true
	}
	if !changed && p.table != nil {
		return nil
	}
	table, err := NewTable(p.observations)
	if err != nil {
		return err
	}
	p.table = table
	return nil
}

type nbpSource struct {
	client nbp.Client
}

func (s *nbpSource) Name() string {
	return SourceNBP
}

func (s *nbpSource) FetchYear(ctx context.Context, year int) ([]byte, error) {
	return s.client.GetArchive(ctx, year)
}

type frankfurterSource struct {
	client       frankfurter.Client
	baseCurrency string
	currencies   []string
}

func (s *frankfurterSource) Name() string {
	return SourceFrankfurter
}

func (s *frankfurterSource) FetchYear(ctx context.Context, year int) ([]byte, error) {
	observations := make(Observations)
	startDate := xtime.Date{Year: year, Month: time.January, Day: 1}
	endDate := xtime.Date{Year: year, Month: time.December, Day: 31}
	for _, currency := range s.currencies {
		if currency == s.baseCurrency {
			continue
		}
		dailyRates, err := s.client.GetRates(ctx, currency, s.baseCurrency, startDate, endDate)
		if err != nil {
			return nil, fmt.Errorf("fetching %s/%s: %w", currency, s.baseCurrency, err)
		}
		for _, dailyRate := range dailyRates {
			observations.Merge(Observations{dailyRate.Date: {currency: dailyRate.Rate}})
		}
	}
	if len(observations) == 0 {
		return nil, fmt.Errorf("no rates published for %d", year)
	}
	return FormatArchive(observations)
}
