package micro

import (
	"github.com/tsinghua-fib-lab/ptlsim/entity"
	"github.com/tsinghua-fib-lab/ptlsim/utils/container"
)

// vehicle 在网车辆
type vehicle struct {
	container.IndexedBase

	id    string
	vtype entity.VehicleType
	class entity.VehicleClass
	lane  int     // 车道下标
	pos   float64 // 距起点距离（米）
	exit  float64 // 离开位置（米）
	speed float64 // 米/秒
}

// source 一个车流的到达过程
type source struct {
	flow    int     // 车流下标
	next    float64 // 下一辆车的到达时间
	counter int     // 已生成车辆数
}
