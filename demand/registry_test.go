package demand_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/ptlsim/demand"
)

func TestDefaultRegistry(t *testing.T) {
	r := demand.DefaultRegistry()
	assert.Equal(t, "Daily", r.Names()[0])
	assert.Contains(t, r.Names(), "PassDemand")

	toys, err := r.Expand("DemandToy")
	require.NoError(t, err)
	require.Len(t, toys, 5)
	assert.Equal(t, "Toy_1000", toys[0].Name)
	assert.Equal(t, "Toy_5000", toys[4].Name)

	pass, err := r.Expand("PassDemand")
	require.NoError(t, err)
	assert.Len(t, pass, 5*11)
	assert.Equal(t, "PassDemand_AvPassFactor_0.3_1000", pass[3].Name)

	for _, name := range r.Names() {
		profiles, err := r.Expand(name)
		require.NoError(t, err, name)
		for _, p := range profiles {
			assert.NoError(t, p.Validate(), p.Name)
		}
	}

	_, err = r.Expand("nope")
	assert.Error(t, err)
}

func TestRegistryDuplicate(t *testing.T) {
	r := demand.NewRegistry()
	def := demand.Definition{
		Name:   "x",
		New:    func(demand.Params) (*demand.Profile, error) { return demand.NewToy(1) },
		Params: func() []demand.Params { return []demand.Params{{}} },
	}
	require.NoError(t, r.Register(def))
	assert.Error(t, r.Register(def))
	assert.Error(t, r.Register(demand.Definition{Name: "y"}))
	_, ok := r.Get("x")
	assert.True(t, ok)
}
