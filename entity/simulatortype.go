package entity

import "context"

// 仿真器与外部协作者的依赖倒置

// ISimulator 仿真器控制接口
// 功能：确定性推进、按车道/路段/车辆查询状态、修改车辆类别与车道准入
// 说明：内置仿真器与远程桥接客户端均实现该接口；所有查询都可能因远程调用失败而返回error
type ISimulator interface {
	// 推进一步
	Step(ctx context.Context) error
	// 所有车辆均已离开且不再有待发车辆
	Finished() (bool, error)
	// 当前仿真时间（秒）
	Time() float64

	VehicleIDs() ([]string, error)
	LaneVehicleIDs(laneID string) ([]string, error)
	EdgeVehicleIDs(edgeID string) ([]string, error)
	Vehicle(id string) (VehicleState, error)
	// 修改车辆类别（即限制车道资格）
	SetVehicleClass(id string, class VehicleClass) error
	// 修改车道准入类别
	SetLaneAllowed(laneID string, classes []VehicleClass) error

	Close() error
}

// IEligibilityUpdater 限制车道资格更新
// 控制器每步调用一次，把当前阈值和可获得资格的车辆种类推送给仿真器
type IEligibilityUpdater interface {
	UpdateEligibility(threshold int, kinds []VehicleKind) error
}

// IRecorder 逐步结果记录器
// 键及其顺序在构造时固定，每次Log必须恰好提供这些键
type IRecorder interface {
	Keys() []string
	Log(values map[string]float64) error
	Close() error
}
