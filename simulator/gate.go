// 与具体仿真器无关的控制辅助：资格授予与状态采样
package simulator

import (
	"fmt"
	"slices"

	"github.com/tsinghua-fib-lab/ptlsim/entity"
)

// EdgeAll 对所有在网车辆进行资格判定
const EdgeAll = "all"

// Gate 限制车道资格授予
// 功能：实现IEligibilityUpdater，把满足条件的车辆改为private类别
type Gate struct {
	sim  entity.ISimulator
	edge string

	granted int // 累计授予资格的车辆数
}

// NewGate 创建资格授予器
// 参数：sim-仿真器，edge-判定发生的路段（EdgeAll表示全部车辆）
func NewGate(sim entity.ISimulator, edge string) *Gate {
	return &Gate{sim: sim, edge: edge}
}

// Granted 累计授予资格的车辆数
func (g *Gate) Granted() int {
	return g.granted
}

// UpdateEligibility 按阈值授予资格
// 参数：threshold-最少载客人数，kinds-可获得资格的车辆种类
// 算法说明：
// 1. 取判定路段上的车辆（EdgeAll时取全部在网车辆）
// 2. 跳过已是bus或private类别的车辆，跳过公交车型
// 3. 车辆种类在kinds中且载客人数不少于threshold时改为private
// 说明：资格只授予不收回，阈值升高不影响已获得资格的车辆
func (g *Gate) UpdateEligibility(threshold int, kinds []entity.VehicleKind) error {
	var ids []string
	var err error
	if g.edge == EdgeAll {
		ids, err = g.sim.VehicleIDs()
	} else {
		ids, err = g.sim.EdgeVehicleIDs(g.edge)
	}
	if err != nil {
		return err
	}
	for _, id := range ids {
		v, err := g.sim.Vehicle(id)
		if err != nil {
			return err
		}
		if v.Class.CanUseRestricted() {
			continue
		}
		t, err := entity.ParseVehicleType(v.Type)
		if err != nil {
			return fmt.Errorf("vehicle %s: %w", id, err)
		}
		if t.Kind == entity.KindBus || !slices.Contains(kinds, t.Kind) {
			continue
		}
		if t.Passengers >= threshold {
			if err := g.sim.SetVehicleClass(id, entity.ClassPrivate); err != nil {
				return err
			}
			g.granted++
		}
	}
	return nil
}
