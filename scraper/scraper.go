// Package scraper defines the contract every site scraper implements and a
// registry that maps target tables to scrapers.
package scraper

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"infortic-scraper/fetcher"
	"infortic-scraper/models"
)

// PageRange selects which listing pages a run covers.
type PageRange struct {
	Start int
	Max   int
}

// Pages returns the page numbers in the range. A zero range means page 1.
func (p PageRange) Pages() []int {
	start := p.Start
	if start <= 0 {
		start = 1
	}
	n := p.Max
	if n <= 0 {
		n = 1
	}
	pages := make([]int, n)
	for i := range pages {
		pages[i] = start + i
	}
	return pages
}

// Scraper extracts records for one table from one site.
type Scraper interface {
	// Name identifies the scraper in logs.
	Name() string
	// Table is the target table for every record Scrape returns.
	Table() string
	// Scrape fetches the pages in r through session and extracts records.
	// An error means the batch must not be stored.
	Scrape(ctx context.Context, session fetcher.Session, r PageRange) (models.Batch, error)
}

// Registry maps table names to scrapers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	scrapers map[string]Scraper
}

// NewRegistry creates a registry holding the given scrapers.
func NewRegistry(scrapers ...Scraper) *Registry {
	r := &Registry{scrapers: make(map[string]Scraper)}
	for _, s := range scrapers {
		r.Register(s)
	}
	return r
}

// Register adds s, replacing any scraper already bound to its table.
func (r *Registry) Register(s Scraper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrapers[s.Table()] = s
}

// Lookup returns the scraper for table.
func (r *Registry) Lookup(table string) (Scraper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scrapers[table]
	if !ok {
		return nil, fmt.Errorf("no scraper registered for table %q", table)
	}
	return s, nil
}

// Tables returns the registered table names, sorted.
func (r *Registry) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tables := make([]string, 0, len(r.scrapers))
	for t := range r.scrapers {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}
