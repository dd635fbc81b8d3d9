package server

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"mini-dap/dds"
)

var (
	ErrUnknownDataset   = errors.New("unknown dataset")
	ErrDuplicateDataset = errors.New("dataset already published")
)

// Catalog holds the datasets a server publishes. Stored datasets are
// templates: every request works on its own duplicate, so projection and
// read flags never leak between requests.
type Catalog struct {
	mu       sync.RWMutex
	datasets map[string]*dds.DDS
}

func NewCatalog() *Catalog {
	return &Catalog{datasets: make(map[string]*dds.DDS)}
}

// Add publishes d under its name.
func (c *Catalog) Add(d *dds.DDS) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.datasets[d.Name()]; ok {
		return errors.Wrapf(ErrDuplicateDataset, "%q", d.Name())
	}
	c.datasets[d.Name()] = d
	return nil
}

// Lookup returns a private copy of the named dataset.
func (c *Catalog) Lookup(name string) (*dds.DDS, error) {
	c.mu.RLock()
	d, ok := c.datasets[name]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownDataset, "%q", name)
	}
	return d.Duplicate(), nil
}

// Names lists the published datasets in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.datasets))
	for n := range c.datasets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
