package entity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/ptlsim/entity"
)

func TestVehicleTypeID(t *testing.T) {
	cases := []entity.VehicleType{
		{Kind: entity.KindAV, Passengers: 3},
		{Kind: entity.KindHD, Passengers: 1, EndToEnd: true},
		{Kind: entity.KindBus, Passengers: 30},
	}
	for _, c := range cases {
		got, err := entity.ParseVehicleType(c.ID())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	assert.Equal(t, "HD_1_endToEnd", cases[1].ID())

	got, err := entity.ParseVehicleType("AV_2@flow_vehicle_6_i1_o1")
	require.NoError(t, err)
	assert.Equal(t, entity.VehicleType{Kind: entity.KindAV, Passengers: 2}, got)
}

func TestParseVehicleTypeErrors(t *testing.T) {
	for _, id := range []string{"", "AV", "AV_x", "AV_0", "XX_2", "HD_2_foo", "HD_1_2_3"} {
		_, err := entity.ParseVehicleType(id)
		assert.Error(t, err, id)
	}
}

func TestClasses(t *testing.T) {
	assert.True(t, entity.ClassPrivate.CanUseRestricted())
	assert.True(t, entity.ClassBus.CanUseRestricted())
	assert.False(t, entity.ClassPassenger.CanUseRestricted())
	assert.False(t, entity.ClassEVehicle.CanUseRestricted())
	assert.Equal(t, entity.ClassEVehicle, entity.VehicleType{Kind: entity.KindAV, Passengers: 1}.DefaultClass())
	assert.Equal(t, entity.ClassPassenger, entity.VehicleType{Kind: entity.KindHD, Passengers: 1}.DefaultClass())
}

func TestObservationFeature(t *testing.T) {
	o := entity.Observation{NumVehs: 10, NumVehsPTL: 2, Speed: 20, PTLSpeed: 25}
	for name, want := range map[string]float64{
		entity.FeatureNumVehs:    10,
		entity.FeatureNumVehsPTL: 2,
		entity.FeatureSpeed:      20,
		entity.FeaturePTLSpeed:   25,
	} {
		got, err := o.Feature(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
	_, err := o.Feature("occupancy")
	assert.Error(t, err)
}
