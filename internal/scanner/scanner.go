package scanner

import (
	"context"
	"fmt"
	"sort"
)

// Category describes a news section and the listing pages that advertise its articles.
type Category struct {
	Name        string
	ListingURLs []string
	Strategy    string
	Filter      Filter
}

// Candidate is a discovered article link that has not been fetched yet.
type Candidate struct {
	URL      string
	Title    string
	Category string
}

// Request carries all parameters required to execute a discovery pass.
type Request struct {
	Category Category
	// Limit caps the number of candidates returned; zero means no cap.
	Limit int
}

// Scanner captures a single discovery strategy implementation (HTML listing, RSS, etc.).
type Scanner interface {
	Name() string
	Discover(ctx context.Context, req Request) ([]Candidate, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}

// Names lists registered strategies in a stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
