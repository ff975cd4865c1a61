package remote

import "github.com/tsinghua-fib-lab/ptlsim/entity"

const ServiceName = "ptlsim.simulator.v1.SimulatorService"

// 接口路径
const (
	StepProcedure            = "/" + ServiceName + "/Step"
	FinishedProcedure        = "/" + ServiceName + "/Finished"
	VehicleIDsProcedure      = "/" + ServiceName + "/VehicleIDs"
	LaneVehicleIDsProcedure  = "/" + ServiceName + "/LaneVehicleIDs"
	EdgeVehicleIDsProcedure  = "/" + ServiceName + "/EdgeVehicleIDs"
	VehicleProcedure         = "/" + ServiceName + "/Vehicle"
	SetVehicleClassProcedure = "/" + ServiceName + "/SetVehicleClass"
	SetLaneAllowedProcedure  = "/" + ServiceName + "/SetLaneAllowed"
	CloseProcedure           = "/" + ServiceName + "/Close"
	InfoProcedure            = "/" + ServiceName + "/Info"
)

// Info 服务所运行的车流方案标识
type Info struct {
	Demand string  `json:"demand"`
	AvRate float64 `json:"av_rate"`
	Seed   uint64  `json:"seed"`
}

// ClockResponse 推进或查询后的仿真时间
type ClockResponse struct {
	T        float64 `json:"t"`
	Finished bool    `json:"finished"`
}

// IDRequest 按ID查询（车辆、车道或路段）
type IDRequest struct {
	ID string `json:"id"`
}

// IDsResponse 车辆ID列表
type IDsResponse struct {
	IDs []string `json:"ids"`
}

// SetVehicleClassRequest 修改车辆类别
type SetVehicleClassRequest struct {
	ID    string              `json:"id"`
	Class entity.VehicleClass `json:"class"`
}

// SetLaneAllowedRequest 修改车道准入类别
type SetLaneAllowedRequest struct {
	LaneID  string                `json:"lane_id"`
	Classes []entity.VehicleClass `json:"classes"`
}
