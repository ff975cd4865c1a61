package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// VehicleKind 车辆种类
type VehicleKind string

const (
	KindAV  VehicleKind = "AV"  // 自动驾驶车辆
	KindHD  VehicleKind = "HD"  // 人工驾驶车辆
	KindBus VehicleKind = "Bus" // 公交车
)

// VehicleClass 仿真器中的车辆类别（对应SUMO vClass），决定能否使用限制车道
type VehicleClass string

const (
	ClassPassenger VehicleClass = "passenger" // 人工驾驶，不可使用限制车道
	ClassEVehicle  VehicleClass = "evehicle"  // 自动驾驶，不可使用限制车道
	ClassPrivate   VehicleClass = "private"   // 获得限制车道资格
	ClassBus       VehicleClass = "bus"       // 公交车，始终可用限制车道
)

// CanUseRestricted 该类别能否进入限制车道
func (c VehicleClass) CanUseRestricted() bool {
	return c == ClassPrivate || c == ClassBus
}

// 端到端车流的车型后缀
const endToEndSuffix = "endToEnd"

// VehicleType 车型：种类 × 载客人数
// 车型ID形如"AV_3"、"HD_2_endToEnd"、"Bus_30"
type VehicleType struct {
	Kind       VehicleKind
	Passengers int
	EndToEnd   bool // 是否来自主线端到端车流
}

// ID 车型ID
func (t VehicleType) ID() string {
	if t.EndToEnd {
		return fmt.Sprintf("%s_%d_%s", t.Kind, t.Passengers, endToEndSuffix)
	}
	return fmt.Sprintf("%s_%d", t.Kind, t.Passengers)
}

func (t VehicleType) String() string {
	return t.ID()
}

// ParseVehicleType 解析车型ID
// 说明：仿真器输出中可能带有"@flow"后缀，一并去掉
func ParseVehicleType(id string) (VehicleType, error) {
	id, _, _ = strings.Cut(id, "@")
	parts := strings.Split(id, "_")
	if len(parts) < 2 || len(parts) > 3 {
		return VehicleType{}, fmt.Errorf("bad vehicle type id %q", id)
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || n <= 0 {
		return VehicleType{}, fmt.Errorf("bad passenger count in vehicle type id %q", id)
	}
	t := VehicleType{Kind: VehicleKind(parts[0]), Passengers: n}
	switch t.Kind {
	case KindAV, KindHD, KindBus:
	default:
		return VehicleType{}, fmt.Errorf("unknown vehicle kind in type id %q", id)
	}
	if len(parts) == 3 {
		if parts[2] != endToEndSuffix {
			return VehicleType{}, fmt.Errorf("bad vehicle type suffix %q", id)
		}
		t.EndToEnd = true
	}
	return t, nil
}

// DefaultClass 车型不具备限制车道资格时的仿真器类别
func (t VehicleType) DefaultClass() VehicleClass {
	switch t.Kind {
	case KindAV:
		return ClassEVehicle
	case KindBus:
		return ClassBus
	default:
		return ClassPassenger
	}
}

// VehicleState 车辆的运行时快照
type VehicleState struct {
	ID    string       `json:"id"`
	Type  string       `json:"type"`
	Class VehicleClass `json:"class"`
	Speed float64      `json:"speed"`
	Lane  string       `json:"lane"`
	Edge  string       `json:"edge"`
}
