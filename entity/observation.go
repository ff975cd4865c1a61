package entity

import "fmt"

// 可供控制器使用的观测量
const (
	FeatureNumVehs    = "num_vehs"     // 在网车辆数
	FeatureNumVehsPTL = "num_vehs_ptl" // 限制车道上的车辆数
	FeatureSpeed      = "speed"        // 在网车辆平均速度
	FeaturePTLSpeed   = "ptl_speed"    // 限制车道车辆平均速度
)

// NeutralSpeed 无车可测时使用的中性速度（米/秒）
const NeutralSpeed = 26.0

// Features 全部观测量名
var Features = []string{FeatureNumVehs, FeatureNumVehsPTL, FeatureSpeed, FeaturePTLSpeed}

// Observation 每个控制步对仿真状态的一次采样
type Observation struct {
	T           float64  // 仿真时间（秒）
	NumVehs     int      // 在网车辆数
	NumVehsPTL  int      // 限制车道上的车辆数
	VehIDsInPTL []string // 限制车道上的车辆
	Speed       float64  // 在网车辆平均速度，无车时为NeutralSpeed
	PTLSpeed    float64  // 限制车道车辆平均速度，无车时为NeutralSpeed
}

// Feature 按名称取观测量
func (o Observation) Feature(name string) (float64, error) {
	switch name {
	case FeatureNumVehs:
		return float64(o.NumVehs), nil
	case FeatureNumVehsPTL:
		return float64(o.NumVehsPTL), nil
	case FeatureSpeed:
		return o.Speed, nil
	case FeaturePTLSpeed:
		return o.PTLSpeed, nil
	default:
		return 0, fmt.Errorf("unknown feature %q", name)
	}
}
