package vtype_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/ptlsim/demand"
	"github.com/tsinghua-fib-lab/ptlsim/entity"
	"github.com/tsinghua-fib-lab/ptlsim/vtype"
)

func toy(t *testing.T) *demand.Profile {
	p, err := demand.NewToy(3000)
	require.NoError(t, err)
	return p
}

func TestBuildPartition(t *testing.T) {
	p := toy(t)
	for _, av := range []float64{0, 0.3, 0.5, 1} {
		for thr := 1; thr <= 6; thr++ {
			for _, kinds := range [][]entity.VehicleKind{
				{entity.KindAV}, {entity.KindAV, entity.KindHD}, nil,
			} {
				part, err := vtype.Build(p, av, vtype.Rule{Threshold: thr, Kinds: kinds})
				require.NoError(t, err)
				assert.InDelta(t, 1.0, part.EligibleShare+part.NonEligibleShare, 1e-9)

				seen := map[string]bool{}
				for _, d := range []*vtype.Distribution{part.Eligible, part.NonEligible} {
					if d == nil {
						continue
					}
					assert.InDelta(t, 1.0, d.Mass(), 1e-9)
					for _, e := range d.Entries {
						assert.False(t, seen[e.Type.ID()], "partitions overlap on %s", e.Type)
						seen[e.Type.ID()] = true
					}
				}
				if part.Eligible == nil {
					assert.Zero(t, part.EligibleShare)
				}
				if part.NonEligible == nil {
					assert.Zero(t, part.NonEligibleShare)
				}
			}
		}
	}
}

func TestBuildEligibility(t *testing.T) {
	p := toy(t)
	part, err := vtype.Build(p, 0.5, vtype.Rule{Threshold: 3, Kinds: []entity.VehicleKind{entity.KindAV}})
	require.NoError(t, err)
	require.NotNil(t, part.Eligible)
	for _, e := range part.Eligible.Entries {
		assert.Equal(t, entity.KindAV, e.Type.Kind)
		assert.GreaterOrEqual(t, e.Type.Passengers, 3)
		assert.Equal(t, entity.ClassPrivate, e.Class)
	}
	// 0.5 * (0.06 + 0.02 + 0.01)
	assert.InDelta(t, 0.045, part.EligibleShare, 1e-9)
	assert.Len(t, part.NonEligible.Entries, 7)

	// 阈值超过最大人数时没有车辆具备资格
	part, err = vtype.Build(p, 0.5, vtype.Rule{Threshold: 6, Kinds: []entity.VehicleKind{entity.KindAV}})
	require.NoError(t, err)
	assert.Nil(t, part.Eligible)

	// 全部具备资格
	part, err = vtype.Build(p, 1, vtype.Rule{Threshold: 1, Kinds: []entity.VehicleKind{entity.KindAV}})
	require.NoError(t, err)
	assert.Nil(t, part.NonEligible)
	assert.Len(t, part.Eligible.Entries, 5)

	_, err = vtype.Build(p, -0.1, vtype.Rule{})
	assert.Error(t, err)
}

func TestMixed(t *testing.T) {
	p := toy(t)
	rule := vtype.Rule{Threshold: 2, Kinds: []entity.VehicleKind{entity.KindAV}}
	veh, e2e, err := vtype.Mixed(p, 0.5, rule, true)
	require.NoError(t, err)
	assert.Equal(t, vtype.DistVehicle, veh.ID)
	assert.Equal(t, vtype.DistEndToEnd, e2e.ID)
	assert.InDelta(t, 1.0, veh.Mass(), 1e-9)
	assert.Len(t, veh.Entries, 10)
	for _, e := range veh.Entries {
		assert.NotEqual(t, entity.ClassPrivate, e.Class, e.Type.ID())
	}
	private := 0
	for _, e := range e2e.Entries {
		assert.True(t, e.Type.EndToEnd)
		if e.Class == entity.ClassPrivate {
			private++
			assert.Equal(t, entity.KindAV, e.Type.Kind)
		}
	}
	assert.Equal(t, 4, private)

	veh, _, err = vtype.Mixed(p, 0.5, rule, false)
	require.NoError(t, err)
	assert.Equal(t, entity.ClassPrivate, veh.Entries[len(veh.Entries)-1].Class)
	assert.Equal(t, entity.ClassPassenger, veh.Entries[0].Class)
}

func TestBus(t *testing.T) {
	d := vtype.Bus(toy(t))
	assert.Len(t, d.Entries, 20)
	assert.Equal(t, "Bus_25", d.Entries[0].Type.ID())
	assert.InDelta(t, 1.0, d.Mass(), 1e-9)
}
