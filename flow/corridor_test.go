package flow_test

import (
	"bytes"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/ptlsim/demand"
	"github.com/tsinghua-fib-lab/ptlsim/entity"
	"github.com/tsinghua-fib-lab/ptlsim/flow"
	"github.com/tsinghua-fib-lab/ptlsim/utils/config"
	"github.com/tsinghua-fib-lab/ptlsim/vtype"
)

func corridorTopology() config.Topology {
	return config.Topology{
		Lanes:           3,
		Origin:          "J0",
		Destinations:    []string{"J1"},
		EntryEdge:       "E0",
		RestrictedIndex: []int{0},
	}
}

var avOnly = []entity.VehicleKind{entity.KindAV}

func TestSynthesizeCorridor(t *testing.T) {
	p, err := demand.NewToy(3000)
	require.NoError(t, err)
	part, err := vtype.Build(p, 0.5, vtype.Rule{Threshold: 3, Kinds: avOnly})
	require.NoError(t, err)
	flows, err := flow.SynthesizeCorridor(p, corridorTopology(), part, false)
	require.NoError(t, err)
	total := 3000. / 3600

	f := findFlow(t, flows, "flow_PTLDist_6_J0_J1_0")
	assert.InDelta(t, total*0.045, f.Rate, 1e-12)
	f = findFlow(t, flows, "flow_busDist_6_J0_J1_0")
	assert.InDelta(t, total*0.01, f.Rate, 1e-12)
	assert.Equal(t, flow.Probability, f.Model)
	for _, lane := range []string{"1", "2"} {
		f = findFlow(t, flows, "flow_NOPTLDist_6_J0_J1_"+lane)
		assert.InDelta(t, total*0.955/2, f.Rate, 1e-12)
	}
	assert.Len(t, flows, 4)
}

func TestSynthesizeCorridorArrivalSplit(t *testing.T) {
	p, err := demand.NewToy(3000)
	require.NoError(t, err)
	part, err := vtype.Build(p, 0.5, vtype.Rule{Threshold: 3, Kinds: avOnly})
	require.NoError(t, err)
	flows, err := flow.SynthesizeCorridor(p, corridorTopology(), part, true)
	require.NoError(t, err)
	total := 3000. / 3600

	f := findFlow(t, flows, "flow_PTLDist_6_J0_J1_random")
	assert.Equal(t, flow.LaneRandom, f.DepartLane())
	assert.InDelta(t, total*0.045, f.Rate, 1e-12)
	f = findFlow(t, flows, "flow_busDist_6_J0_J1")
	assert.InDelta(t, total*0.01/3, f.Rate, 1e-12)
	assert.Equal(t, "", f.DepartLane())
}

func TestSynthesizeCorridorOmitsEmptyPartition(t *testing.T) {
	p, err := demand.NewToy(3000)
	require.NoError(t, err)
	part, err := vtype.Build(p, 0.5, vtype.Rule{Threshold: 6, Kinds: avOnly})
	require.NoError(t, err)
	flows, err := flow.SynthesizeCorridor(p, corridorTopology(), part, false)
	require.NoError(t, err)
	assert.False(t, lo.ContainsBy(flows, func(f flow.Descriptor) bool { return f.Dist == vtype.DistEligible }))

	topo := corridorTopology()
	topo.RestrictedIndex = nil
	_, err = flow.SynthesizeCorridor(p, topo, part, false)
	assert.ErrorIs(t, err, flow.ErrNoLane)

	topo.RestrictedIndex = []int{5}
	_, err = flow.SynthesizeCorridor(p, topo, part, false)
	assert.ErrorIs(t, err, flow.ErrBadTopology)
}

func TestNewPlan(t *testing.T) {
	p, err := demand.NewToy(3000)
	require.NoError(t, err)
	plan, err := flow.NewPlan(p, rampTopology(1, 1), flow.Options{
		Seed:   42,
		AvRate: 0.5,
		Rule:   vtype.Rule{Threshold: 6},
	})
	require.NoError(t, err)
	assert.Equal(t, "Toy_3000", plan.Demand)
	assert.Len(t, plan.Flows, 8)
	assert.NotNil(t, plan.Distribution(vtype.DistVehicle))
	assert.NotNil(t, plan.Distribution(vtype.DistEndToEnd))
	assert.NotNil(t, plan.Distribution(vtype.DistBus))
	assert.Nil(t, plan.Distribution(vtype.DistEligible))
	assert.Equal(t, 3600., plan.End())
	assert.InDelta(t, 3000./3600, plan.TotalRate(func(f *flow.Descriptor) bool {
		return f.From == "J0" && f.Dist != vtype.DistBus
	}), 1e-9)

	var buf bytes.Buffer
	require.NoError(t, plan.Encode(&buf))
	got, err := flow.DecodePlan(&buf)
	require.NoError(t, err)
	assert.Equal(t, plan.Flows, got.Flows)
	assert.Equal(t, plan.Seed, got.Seed)
}

func TestNewPlanCorridor(t *testing.T) {
	p, err := demand.NewPassDemand(3000, 1)
	require.NoError(t, err)
	plan, err := flow.NewPlan(p, corridorTopology(), flow.Options{
		AvRate:   0.5,
		Rule:     vtype.Rule{Threshold: 3, Kinds: avOnly},
		Corridor: true,
	})
	require.NoError(t, err)
	// 期望载客1.5人，共2000辆
	assert.InDelta(t, 2000./3600, plan.TotalRate(func(f *flow.Descriptor) bool {
		return f.Dist != vtype.DistBus
	}), 1e-9)
	assert.NotNil(t, plan.Distribution(vtype.DistEligible))
	assert.NotNil(t, plan.Distribution(vtype.DistNonEligible))
}
