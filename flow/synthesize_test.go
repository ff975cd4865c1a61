package flow_test

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/ptlsim/demand"
	"github.com/tsinghua-fib-lab/ptlsim/flow"
	"github.com/tsinghua-fib-lab/ptlsim/utils/config"
	"github.com/tsinghua-fib-lab/ptlsim/utils/randengine"
	"github.com/tsinghua-fib-lab/ptlsim/vtype"
)

func rampTopology(ramps, lanes int) config.Topology {
	return config.Topology{
		Ramps:        ramps,
		Lanes:        lanes,
		Origin:       "J0",
		Destinations: []string{"J9"},
		EntryEdge:    "E0",
	}
}

// splits 使用与Synthesize相同的抽取顺序得到分流概率
func splits(seed uint64, ramps int) ([]float64, []float64) {
	rng := randengine.New(seed)
	in := rng.UniformN(0, 0.2, ramps)
	out := rng.UniformN(0, 0.2, ramps)
	return in, out
}

func findFlow(t *testing.T, flows []flow.Descriptor, id string) flow.Descriptor {
	t.Helper()
	f, ok := lo.Find(flows, func(f flow.Descriptor) bool { return f.ID == id })
	require.True(t, ok, "flow %s not found", id)
	return f
}

func TestSynthesizeSingleRamp(t *testing.T) {
	p, err := demand.NewToy(3000)
	require.NoError(t, err)
	flows, dropped, err := flow.Synthesize(p, rampTopology(1, 1), randengine.New(42))
	require.NoError(t, err)
	assert.Empty(t, dropped)

	in, out := splits(42, 1)
	total := 3000. / 3600
	busFrac := 30. / 3000

	base := lo.Filter(flows, func(f flow.Descriptor, _ int) bool { return f.Dist != vtype.DistBus })
	buses := lo.Filter(flows, func(f flow.Descriptor, _ int) bool { return f.Dist == vtype.DistBus })
	assert.Len(t, base, 4)
	assert.Len(t, buses, 4)

	f := findFlow(t, flows, "flow_vehicleDist_6_i1_o1")
	assert.InDelta(t, total*in[0]*out[0], f.Rate, 1e-12)
	assert.Equal(t, flow.Poisson, f.Model)
	assert.Equal(t, 0., f.Begin)
	assert.Equal(t, 3600., f.End)
	assert.Nil(t, f.Lane)

	f = findFlow(t, flows, "flow_busDist_6_i1_o1")
	assert.InDelta(t, total*in[0]*out[0]*busFrac, f.Rate, 1e-12)
	assert.Equal(t, flow.Probability, f.Model)

	f = findFlow(t, flows, "flow_vehicleDist_6_i1_J9")
	assert.InDelta(t, total*in[0]*(1-out[0]), f.Rate, 1e-12)

	f = findFlow(t, flows, "flow_vehicleDist_6_J0_o1_0")
	assert.InDelta(t, total*out[0], f.Rate, 1e-12)
	require.NotNil(t, f.Lane)
	assert.Equal(t, 0, *f.Lane)
	assert.Equal(t, "0", f.DepartLane())

	f = findFlow(t, flows, "flow_vehicleDist_endToEnd_6_J0_J9_0")
	assert.InDelta(t, total*(1-out[0]), f.Rate, 1e-12)
	assert.Equal(t, vtype.DistEndToEnd, f.Dist)
}

func TestSynthesizeConservation(t *testing.T) {
	p, err := demand.NewDaily12(1)
	require.NoError(t, err)
	topo := rampTopology(3, 2)
	flows, dropped, err := flow.Synthesize(p, topo, randengine.New(7))
	require.NoError(t, err)
	assert.Empty(t, dropped)
	in, _ := splits(7, 3)

	for _, hour := range p.Hours() {
		total := float64(p.Streams[0].Vehicles[hour]) / 3600
		sum := func(from string) float64 {
			return lo.SumBy(flows, func(f flow.Descriptor) float64 {
				if f.Hour == hour && f.From == from && f.Dist != vtype.DistBus {
					return f.Rate
				}
				return 0
			})
		}
		assert.InDelta(t, total, sum("J0"), 1e-9, "hour %d", hour)
		for i := range 3 {
			assert.InDelta(t, total*in[i], sum(flow.InRamp(i+1)), 1e-9, "hour %d ramp %d", hour, i)
		}
		for _, f := range flows {
			if f.Hour == hour {
				assert.Equal(t, float64(hour-6)*3600, f.Begin)
				assert.Equal(t, float64(hour-5)*3600, f.End)
			}
		}
	}
	// 每小时：3+2+1个匝道对、3个进匝道到终点、3*2个主线到出匝道、2个端到端，均带公交
	assert.Len(t, flows, len(p.Hours())*(6+3+6+2)*2)
}

func TestSynthesizeDeterministic(t *testing.T) {
	p, err := demand.NewDaily(1)
	require.NoError(t, err)
	topo := rampTopology(4, 3)
	a, _, err := flow.Synthesize(p, topo, randengine.New(1234))
	require.NoError(t, err)
	b, _, err := flow.Synthesize(p, topo, randengine.New(1234))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, _, err := flow.Synthesize(p, topo, randengine.New(1235))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestSynthesizeDropsLowVolumePairs(t *testing.T) {
	p, err := demand.NewToy(1)
	require.NoError(t, err)
	flows, dropped, err := flow.Synthesize(p, rampTopology(2, 1), randengine.New(3))
	require.NoError(t, err)
	assert.Len(t, dropped, 3)
	for _, d := range dropped {
		assert.Equal(t, 6, d.Hour)
	}
	assert.False(t, lo.ContainsBy(flows, func(f flow.Descriptor) bool {
		return f.From == "i1" && f.To == "o1"
	}))
	// 进匝道到终点的车流仍然生成
	findFlow(t, flows, "flow_vehicleDist_6_i1_J9")
	findFlow(t, flows, "flow_vehicleDist_6_i2_J9")
	assert.Len(t, flows, 2+2+1)

	// 生成的速率加上被丢弃的速率仍等于各起点的总速率
	in, _ := splits(3, 2)
	total := 1. / 3600
	emitted := func(from string) float64 {
		return lo.SumBy(flows, func(f flow.Descriptor) float64 {
			if f.From == from && f.Dist != vtype.DistBus {
				return f.Rate
			}
			return 0
		})
	}
	lost := func(from string) float64 {
		return lo.SumBy(dropped, func(d flow.Dropped) float64 {
			if d.From == from {
				return d.Rate
			}
			return 0
		})
	}
	assert.InDelta(t, total, emitted("J0"), 1e-12)
	assert.Zero(t, lost("J0"))
	for i := range 2 {
		from := flow.InRamp(i + 1)
		assert.Positive(t, lost(from))
		assert.InDelta(t, total*in[i], emitted(from)+lost(from), 1e-12, "ramp %s", from)
	}
}

func TestSynthesizeErrors(t *testing.T) {
	p, err := demand.NewToy(1000)
	require.NoError(t, err)
	_, _, err = flow.Synthesize(p, rampTopology(30, 1), randengine.New(1))
	assert.ErrorIs(t, err, flow.ErrNegativeLeftover)

	_, _, err = flow.Synthesize(p, rampTopology(1, 0), randengine.New(1))
	assert.ErrorIs(t, err, flow.ErrBadTopology)

	topo := rampTopology(1, 1)
	topo.Destinations = nil
	_, _, err = flow.Synthesize(p, topo, randengine.New(1))
	assert.ErrorIs(t, err, flow.ErrBadTopology)
}

func TestSynthesizeStreams(t *testing.T) {
	p, err := demand.NewDailyCaseStudy()
	require.NoError(t, err)
	topo := rampTopology(1, 1)
	topo.Destinations = []string{"A", "B"}
	flows, _, err := flow.Synthesize(p, topo, randengine.New(5))
	require.NoError(t, err)
	ids := lo.Map(flows, func(f flow.Descriptor, _ int) string { return f.ID })
	assert.Len(t, lo.Uniq(ids), len(ids))
	// 第三股需求回到第一个终点
	assert.Contains(t, ids, "flow_vehicleDist_endToEnd_6_J0_A_0_s2")
	assert.Contains(t, ids, "flow_vehicleDist_endToEnd_6_J0_B_0_s1")
}
