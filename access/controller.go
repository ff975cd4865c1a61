package access

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/ptlsim/entity"
)

// ILaneAccess 修改车道准入类别
type ILaneAccess interface {
	SetLaneAllowed(laneID string, classes []entity.VehicleClass) error
}

// State 控制器状态
type State struct {
	Threshold        int     // 当前阈值，始终在[1, MaxPassengers]内
	Accumulator      float64 // 窗口内观测量之和（仅windowed）
	DecisionInterval int     // 决策间隔（控制步）
	Inverse          bool
	Tick             int // 已处理的控制步数
}

// Controller 限制车道访问控制器
// 功能：每个控制步读取观测、按策略更新阈值，并把阈值与可获得资格的车辆种类推送给仿真器
// 说明：每个实验独占一个控制器，不与其他实验共享状态
type Controller struct {
	policy     Policy
	updater    entity.IEligibilityUpdater
	lanes      ILaneAccess
	restricted []string // 限制车道ID

	state State
	max   int
}

// New 创建控制器
// 参数：policy-策略，updater-资格更新，lanes-车道准入修改，restricted-限制车道ID
func New(policy Policy, updater entity.IEligibilityUpdater, lanes ILaneAccess, restricted []string) (*Controller, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		policy:     policy,
		updater:    updater,
		lanes:      lanes,
		restricted: restricted,
		max:        policy.maxPassengers(),
	}
	c.state.Inverse = policy.Inverse
	switch policy.Kind {
	case KindPlus, KindStatic:
		c.state.Threshold = *policy.Threshold
	case KindWindowed, KindInstant:
		c.state.DecisionInterval = *policy.DecisionRate
		c.state.Threshold = policy.InitialThreshold
		if c.state.Threshold == 0 {
			c.state.Threshold = c.max
		}
	default:
		c.state.Threshold = c.max
	}
	return c, nil
}

// Policy 控制器使用的策略
func (c *Controller) Policy() Policy {
	return c.policy
}

// State 当前状态快照
func (c *Controller) State() State {
	return c.state
}

// HandleStep 处理一个控制步
// 功能：根据策略种类更新阈值并推送资格
// 参数：obs-本步观测
// 算法说明：
// 1. nothing/open：第一步修改限制车道准入类别，此后不做任何事
// 2. plus/static：每步推送固定阈值
// 3. windowed：每步累加观测量，每DecisionInterval步比较均值与[LowBound, HighBound]并清零
// 4. instant：每DecisionInterval步比较当前观测量与ParamThreshold
// 5. 动态策略的阈值夹在[1, MaxPassengers]内，每步（不仅是决策步）推送
func (c *Controller) HandleStep(obs entity.Observation) error {
	c.state.Tick++
	switch c.policy.Kind {
	case KindNothing:
		if c.state.Tick == 1 {
			return c.setRestricted([]entity.VehicleClass{entity.ClassBus})
		}
		return nil
	case KindOpen:
		if c.state.Tick == 1 {
			return c.setRestricted([]entity.VehicleClass{
				entity.ClassBus, entity.ClassPrivate, entity.ClassPassenger, entity.ClassEVehicle,
			})
		}
		return nil
	case KindWindowed:
		v, err := obs.Feature(c.policy.Variable)
		if err != nil {
			return err
		}
		c.state.Accumulator += v
		if c.state.Tick%c.state.DecisionInterval == 0 {
			mean := c.state.Accumulator / float64(c.state.DecisionInterval)
			c.decide(mean, c.policy.LowBound, c.policy.HighBound)
			c.state.Accumulator = 0
		}
	case KindInstant:
		if c.state.Tick%c.state.DecisionInterval == 0 {
			v, err := obs.Feature(c.policy.Variable)
			if err != nil {
				return err
			}
			c.decide(v, c.policy.ParamThreshold, c.policy.ParamThreshold)
		}
	}
	if err := c.updater.UpdateEligibility(c.state.Threshold, c.policy.Kinds); err != nil {
		return fmt.Errorf("update eligibility at tick %d: %w", c.state.Tick, err)
	}
	return nil
}

// decide 观测值低于下界时阈值减1，高于上界时加1，Inverse时方向相反
func (c *Controller) decide(v, low, high float64) {
	delta := 0
	switch {
	case v < low:
		delta = -1
	case v > high:
		delta = 1
	}
	if c.state.Inverse {
		delta = -delta
	}
	old := c.state.Threshold
	c.state.Threshold = lo.Clamp(old+delta, 1, c.max)
	if c.state.Threshold != old {
		log.Debugf("%s tick %d: %s=%g, threshold %d -> %d", c.policy.Name(), c.state.Tick, c.policy.Variable, v, old, c.state.Threshold)
	}
}

func (c *Controller) setRestricted(classes []entity.VehicleClass) error {
	for _, lane := range c.restricted {
		if err := c.lanes.SetLaneAllowed(lane, classes); err != nil {
			return fmt.Errorf("set lane %s allowed: %w", lane, err)
		}
	}
	return nil
}
