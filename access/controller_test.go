package access_test

import (
	"errors"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/ptlsim/access"
	"github.com/tsinghua-fib-lab/ptlsim/entity"
)

type push struct {
	threshold int
	kinds     []entity.VehicleKind
}

type fakeSim struct {
	pushes  []push
	allowed map[string][]entity.VehicleClass
	err     error
}

func (f *fakeSim) UpdateEligibility(threshold int, kinds []entity.VehicleKind) error {
	f.pushes = append(f.pushes, push{threshold, kinds})
	return f.err
}

func (f *fakeSim) SetLaneAllowed(laneID string, classes []entity.VehicleClass) error {
	if f.allowed == nil {
		f.allowed = map[string][]entity.VehicleClass{}
	}
	f.allowed[laneID] = classes
	return f.err
}

func newController(t *testing.T, p access.Policy) (*access.Controller, *fakeSim) {
	t.Helper()
	sim := &fakeSim{}
	c, err := access.New(p, sim, sim, []string{"E0_0", "E1_0"})
	require.NoError(t, err)
	return c, sim
}

func TestInstantScenario(t *testing.T) {
	c, sim := newController(t, access.Policy{
		Kind:             access.KindInstant,
		Kinds:            []entity.VehicleKind{entity.KindAV},
		DecisionRate:     lo.ToPtr(60),
		Variable:         entity.FeatureNumVehsPTL,
		ParamThreshold:   1,
		InitialThreshold: 2,
	})
	for tick := 1; tick <= 59; tick++ {
		require.NoError(t, c.HandleStep(entity.Observation{}))
		assert.Equal(t, 2, c.State().Threshold, "tick %d", tick)
	}
	require.NoError(t, c.HandleStep(entity.Observation{}))
	assert.Equal(t, 1, c.State().Threshold)
	for range 300 {
		require.NoError(t, c.HandleStep(entity.Observation{}))
		assert.Equal(t, 1, c.State().Threshold)
	}
	// 每步都推送
	assert.Len(t, sim.pushes, 360)
	assert.Equal(t, push{1, []entity.VehicleKind{entity.KindAV}}, sim.pushes[359])
	assert.Equal(t, 2, sim.pushes[58].threshold)
	assert.Equal(t, 1, sim.pushes[59].threshold)
}

func TestWindowedDescent(t *testing.T) {
	c, _ := newController(t, access.Policy{
		Kind:         access.KindWindowed,
		Kinds:        []entity.VehicleKind{entity.KindAV},
		DecisionRate: lo.ToPtr(10),
		Variable:     entity.FeatureNumVehs,
		LowBound:     5,
		HighBound:    8,
	})
	assert.Equal(t, access.DefaultMaxPassengers, c.State().Threshold)
	// 每个决策步下降1，直到1
	for decision := 1; decision <= 8; decision++ {
		for range 10 {
			require.NoError(t, c.HandleStep(entity.Observation{NumVehs: 2}))
		}
		assert.Equal(t, max(access.DefaultMaxPassengers-decision, 1), c.State().Threshold)
		assert.Zero(t, c.State().Accumulator)
	}
}

func TestWindowedBandAndInverse(t *testing.T) {
	p := access.Policy{
		Kind:             access.KindWindowed,
		Kinds:            []entity.VehicleKind{entity.KindAV},
		DecisionRate:     lo.ToPtr(4),
		Variable:         entity.FeaturePTLSpeed,
		LowBound:         20,
		HighBound:        24,
		InitialThreshold: 3,
	}
	c, _ := newController(t, p)
	// 均值22，在带内
	for _, v := range []float64{18, 26, 20, 24} {
		require.NoError(t, c.HandleStep(entity.Observation{PTLSpeed: v}))
	}
	assert.Equal(t, 3, c.State().Threshold)
	// 均值25，高于上界
	for range 4 {
		require.NoError(t, c.HandleStep(entity.Observation{PTLSpeed: 25}))
	}
	assert.Equal(t, 4, c.State().Threshold)
	// 累加只在决策步清零
	require.NoError(t, c.HandleStep(entity.Observation{PTLSpeed: 10}))
	assert.Equal(t, 10., c.State().Accumulator)

	p.Inverse = true
	c, _ = newController(t, p)
	for range 4 {
		require.NoError(t, c.HandleStep(entity.Observation{PTLSpeed: 10}))
	}
	assert.Equal(t, 4, c.State().Threshold)
	for range 40 {
		require.NoError(t, c.HandleStep(entity.Observation{PTLSpeed: 30}))
	}
	assert.Equal(t, 1, c.State().Threshold)
}

func TestThresholdBounds(t *testing.T) {
	c, _ := newController(t, access.Policy{
		Kind:         access.KindInstant,
		Kinds:        []entity.VehicleKind{entity.KindAV},
		DecisionRate: lo.ToPtr(1),
		Variable:     entity.FeatureSpeed,
		Inverse:      true,
	})
	speeds := []float64{0, 50, 0, 0, 0, 0, 0, 0, 0, 50, 50, 50, 50, 50, 50, 50, 50, 0}
	for _, v := range speeds {
		require.NoError(t, c.HandleStep(entity.Observation{Speed: v}))
		th := c.State().Threshold
		assert.GreaterOrEqual(t, th, 1)
		assert.LessOrEqual(t, th, access.DefaultMaxPassengers)
	}
}

func TestStaticPolicies(t *testing.T) {
	c, sim := newController(t, access.Policy{
		Kind:      access.KindPlus,
		Kinds:     []entity.VehicleKind{entity.KindAV, entity.KindHD},
		Threshold: lo.ToPtr(3),
	})
	for range 5 {
		require.NoError(t, c.HandleStep(entity.Observation{NumVehsPTL: 100}))
	}
	assert.Len(t, sim.pushes, 5)
	assert.True(t, lo.EveryBy(sim.pushes, func(p push) bool { return p.threshold == 3 }))
	assert.Empty(t, sim.allowed)
}

func TestLanePolicies(t *testing.T) {
	c, sim := newController(t, access.Policy{Kind: access.KindNothing})
	require.NoError(t, c.HandleStep(entity.Observation{}))
	require.NoError(t, c.HandleStep(entity.Observation{}))
	assert.Equal(t, []entity.VehicleClass{entity.ClassBus}, sim.allowed["E0_0"])
	assert.Equal(t, []entity.VehicleClass{entity.ClassBus}, sim.allowed["E1_0"])
	assert.Empty(t, sim.pushes)

	c, sim = newController(t, access.Policy{Kind: access.KindOpen})
	require.NoError(t, c.HandleStep(entity.Observation{}))
	assert.Contains(t, sim.allowed["E0_0"], entity.ClassPassenger)
	assert.Contains(t, sim.allowed["E0_0"], entity.ClassEVehicle)
}

func TestHandleStepError(t *testing.T) {
	c, sim := newController(t, access.Policy{
		Kind:      access.KindStatic,
		Kinds:     []entity.VehicleKind{entity.KindAV},
		Threshold: lo.ToPtr(2),
	})
	sim.err = errors.New("gone")
	assert.ErrorIs(t, c.HandleStep(entity.Observation{}), sim.err)
}

func TestPolicyValidate(t *testing.T) {
	bad := []access.Policy{
		{Kind: "rl"},
		{Kind: access.KindPlus},
		{Kind: access.KindStatic, Threshold: lo.ToPtr(7)},
		{Kind: access.KindStatic, Threshold: lo.ToPtr(0)},
		{Kind: access.KindWindowed, Variable: entity.FeatureSpeed},
		{Kind: access.KindWindowed, DecisionRate: lo.ToPtr(10), Variable: "occupancy"},
		{Kind: access.KindWindowed, DecisionRate: lo.ToPtr(10), Variable: entity.FeatureSpeed, LowBound: 5, HighBound: 1},
		{Kind: access.KindInstant, DecisionRate: lo.ToPtr(10), Variable: entity.FeatureSpeed, InitialThreshold: 9},
	}
	for _, p := range bad {
		assert.Error(t, p.Validate(), "%+v", p)
		_, err := access.New(p, &fakeSim{}, &fakeSim{}, nil)
		assert.Error(t, err)
	}
}
