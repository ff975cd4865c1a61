package access

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/ptlsim/entity"
	"github.com/tsinghua-fib-lab/ptlsim/vtype"
)

// Kind 策略种类
type Kind string

const (
	KindNothing  Kind = "nothing"  // 限制车道仅允许公交
	KindOpen     Kind = "open"     // 限制车道向所有车辆开放
	KindPlus     Kind = "plus"     // 静态阈值，AV与HD均可获得资格
	KindStatic   Kind = "static"   // 静态阈值，仅AV可获得资格
	KindWindowed Kind = "windowed" // 窗口平均带宽控制
	KindInstant  Kind = "instant"  // 瞬时阈值控制
)

// DefaultMaxPassengers 阈值上限，等于该值时没有私家车具备资格
const DefaultMaxPassengers = 6

var (
	ErrUnknownKind   = errors.New("access: unknown policy kind")
	ErrBadThreshold  = errors.New("access: threshold out of range")
	ErrNoDecision    = errors.New("access: dynamic policy needs a positive decision rate")
	ErrBadBand       = errors.New("access: low bound above high bound")
	ErrNoAVForPolicy = errors.New("access: policy needs autonomous vehicles")
)

// Policy 访问控制策略配置
// 说明：一个带标签的配置对象，由Kind决定哪些字段有效
//   - plus/static：Threshold
//   - windowed：DecisionRate、Variable、LowBound、HighBound、Inverse
//   - instant：DecisionRate、Variable、ParamThreshold、Inverse
type Policy struct {
	Kind  Kind                 `yaml:"kind"`
	Kinds []entity.VehicleKind `yaml:"kinds,omitempty"` // 可获得资格的车辆种类

	Threshold    *int `yaml:"threshold,omitempty"`     // 静态阈值
	DecisionRate *int `yaml:"decision_rate,omitempty"` // 动态策略的决策间隔（控制步）

	Variable       string  `yaml:"variable,omitempty"`
	LowBound       float64 `yaml:"low_bound,omitempty"`
	HighBound      float64 `yaml:"high_bound,omitempty"`
	ParamThreshold float64 `yaml:"param_threshold,omitempty"`
	Inverse        bool    `yaml:"inverse,omitempty"`

	EndToEnd     bool `yaml:"end_to_end,omitempty"`    // AV仅在端到端车流中获得资格
	ArrivalSplit bool `yaml:"arrival_split,omitempty"` // 走廊路网中具备资格车辆随机选择出发车道

	InitialThreshold int `yaml:"initial_threshold,omitempty"` // 动态策略的初始阈值，默认MaxPassengers
	MaxPassengers    int `yaml:"max_passengers,omitempty"`    // 阈值上限，默认6
}

// Dynamic 是否为运行中调整阈值的策略
func (p Policy) Dynamic() bool {
	return p.Kind == KindWindowed || p.Kind == KindInstant
}

// NeedsAV 策略是否只对AV生效（无AV时无意义）
func (p Policy) NeedsAV() bool {
	switch p.Kind {
	case KindNothing, KindOpen, KindPlus:
		return false
	}
	return !lo.Contains(p.Kinds, entity.KindHD)
}

func (p Policy) maxPassengers() int {
	if p.MaxPassengers > 0 {
		return p.MaxPassengers
	}
	return DefaultMaxPassengers
}

// Validate 检查策略配置
func (p Policy) Validate() error {
	limit := p.maxPassengers()
	switch p.Kind {
	case KindNothing, KindOpen:
	case KindPlus, KindStatic:
		if p.Threshold == nil || *p.Threshold < 1 || *p.Threshold > limit {
			return fmt.Errorf("%w: %s needs a threshold in [1, %d]", ErrBadThreshold, p.Kind, limit)
		}
	case KindWindowed, KindInstant:
		if p.DecisionRate == nil || *p.DecisionRate <= 0 {
			return ErrNoDecision
		}
		if _, err := (entity.Observation{}).Feature(p.Variable); err != nil {
			return fmt.Errorf("access: %w", err)
		}
		if p.Kind == KindWindowed && p.LowBound > p.HighBound {
			return ErrBadBand
		}
		if p.InitialThreshold != 0 && (p.InitialThreshold < 1 || p.InitialThreshold > limit) {
			return fmt.Errorf("%w: initial threshold %d", ErrBadThreshold, p.InitialThreshold)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
	}
	return nil
}

// Rule 车流生成时写入车型分布的静态资格规则
// 说明：动态策略在生成时不给任何车辆资格，由控制器在运行中授予
func (p Policy) Rule() vtype.Rule {
	switch p.Kind {
	case KindPlus, KindStatic:
		return vtype.Rule{Threshold: *p.Threshold, Kinds: p.Kinds}
	}
	return vtype.Rule{Threshold: p.maxPassengers(), Kinds: p.Kinds}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Name 策略名，用于输出路径
func (p Policy) Name() string {
	name := string(p.Kind)
	switch p.Kind {
	case KindPlus:
		name = fmt.Sprintf("plus_%d", *p.Threshold)
	case KindStatic:
		if p.EndToEnd {
			name = fmt.Sprintf("static_e2e_%d", *p.Threshold)
		} else {
			name = fmt.Sprintf("static_%d", *p.Threshold)
		}
	case KindWindowed, KindInstant:
		parts := []string{string(p.Kind), p.Variable}
		if p.Kind == KindWindowed {
			parts = append(parts, formatFloat(p.LowBound)+"-"+formatFloat(p.HighBound))
		} else {
			parts = append(parts, formatFloat(p.ParamThreshold))
		}
		parts = append(parts, fmt.Sprintf("r%d", *p.DecisionRate))
		if p.Inverse {
			parts = append(parts, "inv")
		}
		name = strings.Join(parts, "_")
	}
	if p.ArrivalSplit {
		name += "_split"
	}
	return name
}

func (p Policy) String() string {
	return p.Name()
}
