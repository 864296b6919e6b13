// Package species holds the immutable mapping from species names to indices
// and from gene-tree taxa to the species they were sampled from.
package species

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tomopfuku/starcoal/spset"
)

// Sentinel configuration errors.
var (
	ErrNoSpecies        = errors.New("species: registry needs at least one species")
	ErrDuplicateSpecies = errors.New("species: duplicate species name")
	ErrNoTaxa           = errors.New("species: species has no taxa")
	ErrDuplicateTaxon   = errors.New("species: taxon assigned to more than one species")
	ErrUnknownTaxon     = errors.New("species: taxon not assigned to any species")
	ErrUnknownSpecies   = errors.New("species: unknown species")
)

// Species is one entry of the registry as read from configuration.
type Species struct {
	Name string   `mapstructure:"name" yaml:"name"`
	Taxa []string `mapstructure:"taxa" yaml:"taxa"`
}

// Registry maps species names to 0-based indices. It is never mutated after
// construction and may be shared freely.
type Registry struct {
	names   []string
	taxa    [][]string
	index   map[string]int
	ofTaxon map[string]int
}

// NewRegistry will build a registry, assigning indices in the given order.
func NewRegistry(spp []Species) (*Registry, error) {
	if len(spp) == 0 {
		return nil, ErrNoSpecies
	}
	r := &Registry{
		names:   make([]string, len(spp)),
		taxa:    make([][]string, len(spp)),
		index:   make(map[string]int, len(spp)),
		ofTaxon: make(map[string]int),
	}
	for i, sp := range spp {
		if _, ok := r.index[sp.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateSpecies, sp.Name)
		}
		if len(sp.Taxa) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrNoTaxa, sp.Name)
		}
		r.index[sp.Name] = i
		r.names[i] = sp.Name
		r.taxa[i] = append([]string(nil), sp.Taxa...)
		for _, tx := range sp.Taxa {
			if prev, ok := r.ofTaxon[tx]; ok {
				return nil, fmt.Errorf("%w: %q in %q and %q", ErrDuplicateTaxon, tx, r.names[prev], sp.Name)
			}
			r.ofTaxon[tx] = i
		}
	}
	return r, nil
}

// Len is the number of species S.
func (r *Registry) Len() int { return len(r.names) }

// Name returns the name of species i.
func (r *Registry) Name(i int) string { return r.names[i] }

// Names returns species names in index order.
func (r *Registry) Names() []string { return append([]string(nil), r.names...) }

// Taxa returns the taxa sampled from species i, sorted.
func (r *Registry) Taxa(i int) []string {
	out := append([]string(nil), r.taxa[i]...)
	sort.Strings(out)
	return out
}

// Index returns the index of the named species.
func (r *Registry) Index(name string) (int, error) {
	i, ok := r.index[name]
	if !ok {
		return -1, fmt.Errorf("%w: %q", ErrUnknownSpecies, name)
	}
	return i, nil
}

// SpeciesOf returns the species index a taxon belongs to.
func (r *Registry) SpeciesOf(taxon string) (int, error) {
	i, ok := r.ofTaxon[taxon]
	if !ok {
		return -1, fmt.Errorf("%w: %q", ErrUnknownTaxon, taxon)
	}
	return i, nil
}

// EmptySet returns an empty species set sized for this registry.
func (r *Registry) EmptySet() spset.Set { return spset.New(len(r.names)) }

// Singleton returns {i} sized for this registry.
func (r *Registry) Singleton(i int) spset.Set { return spset.Singleton(len(r.names), i) }

// All returns the set of every species.
func (r *Registry) All() spset.Set {
	s := r.EmptySet()
	for i := range r.names {
		s.Add(i)
	}
	return s
}
