package species_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomopfuku/starcoal/species"
)

func TestNewRegistry_Indices(t *testing.T) {
	t.Parallel()

	reg, err := species.NewRegistry([]species.Species{
		{Name: "A", Taxa: []string{"a2", "a1"}},
		{Name: "B", Taxa: []string{"b"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"A", "B"}, reg.Names())
	assert.Equal(t, []string{"a1", "a2"}, reg.Taxa(0))

	i, err := reg.Index("B")
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	sp, err := reg.SpeciesOf("a2")
	require.NoError(t, err)
	assert.Equal(t, 0, sp)

	_, err = reg.SpeciesOf("zz")
	require.ErrorIs(t, err, species.ErrUnknownTaxon)

	_, err = reg.Index("Q")
	require.ErrorIs(t, err, species.ErrUnknownSpecies)

	assert.Equal(t, 2, reg.All().Count())
	assert.True(t, reg.Singleton(1).Has(1))
}

func TestNewRegistry_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		spp  []species.Species
		want error
	}{
		{name: "empty", spp: nil, want: species.ErrNoSpecies},
		{
			name: "duplicate_species",
			spp:  []species.Species{{Name: "A", Taxa: []string{"a"}}, {Name: "A", Taxa: []string{"b"}}},
			want: species.ErrDuplicateSpecies,
		},
		{
			name: "no_taxa",
			spp:  []species.Species{{Name: "A"}},
			want: species.ErrNoTaxa,
		},
		{
			name: "shared_taxon",
			spp:  []species.Species{{Name: "A", Taxa: []string{"x"}}, {Name: "B", Taxa: []string{"x"}}},
			want: species.ErrDuplicateTaxon,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := species.NewRegistry(tt.spp)
			require.ErrorIs(t, err, tt.want)
		})
	}
}
