package simulator

import (
	"github.com/tsinghua-fib-lab/ptlsim/entity"
	"gonum.org/v1/gonum/stat"
)

// Sample 采样当前仿真状态
// 功能：统计在网车辆数、限制车道车辆数及两者的平均速度
// 参数：sim-仿真器，restricted-限制车道ID
// 说明：无车可测时平均速度取entity.NeutralSpeed
func Sample(sim entity.ISimulator, restricted []string) (entity.Observation, error) {
	obs := entity.Observation{T: sim.Time(), VehIDsInPTL: make([]string, 0)}
	ids, err := sim.VehicleIDs()
	if err != nil {
		return obs, err
	}
	for _, lane := range restricted {
		laneIDs, err := sim.LaneVehicleIDs(lane)
		if err != nil {
			return obs, err
		}
		obs.VehIDsInPTL = append(obs.VehIDsInPTL, laneIDs...)
	}
	obs.NumVehs = len(ids)
	obs.NumVehsPTL = len(obs.VehIDsInPTL)
	if obs.Speed, err = meanSpeed(sim, ids); err != nil {
		return obs, err
	}
	if obs.PTLSpeed, err = meanSpeed(sim, obs.VehIDsInPTL); err != nil {
		return obs, err
	}
	return obs, nil
}

func meanSpeed(sim entity.ISimulator, ids []string) (float64, error) {
	if len(ids) == 0 {
		return entity.NeutralSpeed, nil
	}
	speeds := make([]float64, len(ids))
	for i, id := range ids {
		v, err := sim.Vehicle(id)
		if err != nil {
			return 0, err
		}
		speeds[i] = v.Speed
	}
	return stat.Mean(speeds, nil), nil
}

// ClassCount 按类别统计的车辆数
type ClassCount struct {
	HD      int // passenger类别
	AV      int // evehicle类别
	Allowed int // bus或private类别
}

// CountByClass 统计一组车辆的类别构成
func CountByClass(sim entity.ISimulator, ids []string) (ClassCount, error) {
	var c ClassCount
	for _, id := range ids {
		v, err := sim.Vehicle(id)
		if err != nil {
			return c, err
		}
		switch {
		case v.Class.CanUseRestricted():
			c.Allowed++
		case v.Class == entity.ClassEVehicle:
			c.AV++
		default:
			c.HD++
		}
	}
	return c, nil
}

// PassengersOn 一组车辆的载客总人数
func PassengersOn(sim entity.ISimulator, ids []string) (int, error) {
	n := 0
	for _, id := range ids {
		v, err := sim.Vehicle(id)
		if err != nil {
			return 0, err
		}
		t, err := entity.ParseVehicleType(v.Type)
		if err != nil {
			return 0, err
		}
		n += t.Passengers
	}
	return n, nil
}
