package access

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/ptlsim/entity"
)

// Space 策略参数空间
type Space struct {
	MinNumPass    []int // 静态阈值取值
	MaxPassengers int
}

// Generator 根据参数空间生成一组策略
type Generator func(space Space) []Policy

// Registry 策略注册表
// 说明：显式注册，名称唯一，Names按注册顺序返回
type Registry struct {
	gens  map[string]Generator
	order []string
}

func NewRegistry() *Registry {
	return &Registry{gens: make(map[string]Generator)}
}

// Register 注册策略生成器，重名返回错误
func (r *Registry) Register(name string, gen Generator) error {
	if _, ok := r.gens[name]; ok {
		return fmt.Errorf("access: policy %q already registered", name)
	}
	r.gens[name] = gen
	r.order = append(r.order, name)
	return nil
}

// Names 已注册的策略名
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Expand 展开一个策略名下的全部策略
func (r *Registry) Expand(name string, space Space) ([]Policy, error) {
	gen, ok := r.gens[name]
	if !ok {
		return nil, fmt.Errorf("access: unknown policy %q", name)
	}
	policies := gen(space)
	for i := range policies {
		if policies[i].MaxPassengers == 0 {
			policies[i].MaxPassengers = space.MaxPassengers
		}
		if err := policies[i].Validate(); err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}
	}
	return policies, nil
}

var (
	avOnly  = []entity.VehicleKind{entity.KindAV}
	avAndHD = []entity.VehicleKind{entity.KindAV, entity.KindHD}

	// 窗口平均控制的速度带（米/秒）
	speedBands = [][2]float64{
		{22.5, 23.5}, {23.5, 24.5}, {23, 24.5}, {23, 24},
		{21.5, 23}, {21.5, 22.5}, {20, 22}, {20.5, 22},
		{20, 24}, {18, 22}, {18, 23},
	}
	windowedRates = []int{10, 60}
)

func static(kind Kind, kinds []entity.VehicleKind, endToEnd bool) Generator {
	return func(space Space) []Policy {
		return lo.Map(space.MinNumPass, func(n int, _ int) Policy {
			return Policy{Kind: kind, Kinds: kinds, Threshold: lo.ToPtr(n), EndToEnd: endToEnd}
		})
	}
}

// DefaultRegistry 注册全部内置策略
func DefaultRegistry() *Registry {
	r := NewRegistry()
	gens := []lo.Tuple2[string, Generator]{
		lo.T2[string, Generator]("nothing", func(Space) []Policy {
			return []Policy{{Kind: KindNothing}}
		}),
		lo.T2[string, Generator]("open", func(Space) []Policy {
			return []Policy{{Kind: KindOpen}}
		}),
		lo.T2("plus", static(KindPlus, avAndHD, false)),
		lo.T2("static", static(KindStatic, avOnly, false)),
		lo.T2("static_e2e", static(KindStatic, avOnly, true)),
		lo.T2[string, Generator]("windowed", func(Space) []Policy {
			var res []Policy
			for _, band := range speedBands {
				for _, rate := range windowedRates {
					res = append(res, Policy{
						Kind:         KindWindowed,
						Kinds:        avOnly,
						DecisionRate: lo.ToPtr(rate),
						Variable:     entity.FeaturePTLSpeed,
						LowBound:     band[0],
						HighBound:    band[1],
						Inverse:      true,
					})
				}
			}
			return res
		}),
		lo.T2[string, Generator]("instant", func(Space) []Policy {
			return []Policy{{
				Kind:           KindInstant,
				Kinds:          avOnly,
				DecisionRate:   lo.ToPtr(60),
				Variable:       entity.FeatureNumVehsPTL,
				ParamThreshold: 1,
			}}
		}),
	}
	for _, g := range gens {
		if err := r.Register(g.A, g.B); err != nil {
			log.Panicf("register policy: %v", err)
		}
	}
	return r
}
