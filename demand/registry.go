package demand

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
)

// Params 需求构造参数（参数名 -> 取值）
type Params map[string]float64

const (
	ParamAmount       = "amount"
	ParamFactor       = "factor"
	ParamAvPassFactor = "av_pass_factor"
)

// Definition 注册表条目：构造函数与参数空间
type Definition struct {
	Name   string
	New    func(Params) (*Profile, error)
	Params func() []Params
}

// Registry 需求注册表
// 说明：显式注册，名称唯一，Names按注册顺序返回
type Registry struct {
	defs  map[string]Definition
	order []string
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register 注册需求定义，重名返回错误
func (r *Registry) Register(def Definition) error {
	if _, ok := r.defs[def.Name]; ok {
		return fmt.Errorf("demand: %q already registered", def.Name)
	}
	if def.New == nil || def.Params == nil {
		return fmt.Errorf("demand: %q has no constructor or parameter space", def.Name)
	}
	r.defs[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// Get 按名称查找
func (r *Registry) Get(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Names 已注册的需求名
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Expand 展开一个需求的全部参数组合
func (r *Registry) Expand(name string) ([]*Profile, error) {
	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("demand: unknown demand %q", name)
	}
	var res []*Profile
	for _, ps := range def.Params() {
		p, err := def.New(ps)
		if err != nil {
			return nil, fmt.Errorf("demand %s%v: %w", name, ps, err)
		}
		res = append(res, p)
	}
	return res, nil
}

// 参数空间
var (
	amounts = lo.Map(lo.RangeFrom(1, 5), func(i int, _ int) float64 {
		return float64(i * 1000)
	})
	tenths = lo.Map(lo.Range(11), func(i int, _ int) float64 {
		return float64(i) / 10
	})
	dailyFactors = []float64{1, 2, 4}
)

func over(key string, values []float64) func() []Params {
	return func() []Params {
		return lo.Map(values, func(v float64, _ int) Params {
			return Params{key: v}
		})
	}
}

func none() []Params {
	return []Params{{}}
}

// DefaultRegistry 注册全部内置需求
func DefaultRegistry() *Registry {
	r := NewRegistry()
	byAmount := func(f func(int) (*Profile, error)) func(Params) (*Profile, error) {
		return func(p Params) (*Profile, error) {
			return f(int(p[ParamAmount]))
		}
	}
	byFactor := func(f func(float64) (*Profile, error)) func(Params) (*Profile, error) {
		return func(p Params) (*Profile, error) {
			return f(p[ParamFactor])
		}
	}
	fixed := func(amount int) func(Params) (*Profile, error) {
		return func(Params) (*Profile, error) {
			return NewToyFixed(amount)
		}
	}
	defs := []Definition{
		{Name: "Daily", New: byFactor(NewDaily), Params: over(ParamFactor, dailyFactors)},
		{Name: "DailyPaper", New: byFactor(NewDailyPaper), Params: over(ParamFactor, dailyFactors)},
		{Name: "Daily12", New: byFactor(NewDaily12), Params: over(ParamFactor, dailyFactors)},
		{Name: "DailyCaseStudy", New: func(Params) (*Profile, error) { return NewDailyCaseStudy() }, Params: none},
		{Name: "DemandToy", New: byAmount(NewToy), Params: over(ParamAmount, amounts)},
		{Name: "DemandToyUniform", New: byAmount(NewToyUniform), Params: over(ParamAmount, amounts)},
		{
			Name: "PassDemand",
			New: func(p Params) (*Profile, error) {
				return NewPassDemand(int(p[ParamAmount]), p[ParamAvPassFactor])
			},
			Params: func() []Params {
				var res []Params
				for _, a := range amounts {
					for _, f := range tenths {
						res = append(res, Params{ParamAmount: a, ParamAvPassFactor: f})
					}
				}
				return res
			},
		},
		{Name: "PassDemandUniform", New: byAmount(NewPassDemandUniform), Params: over(ParamAmount, amounts)},
		{Name: "DemandToy6000", New: fixed(6000), Params: none},
		{Name: "DemandToy7000", New: fixed(7000), Params: none},
		{Name: "DemandToy8000", New: fixed(8000), Params: none},
	}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			log.Panicf("register demand: %v", err)
		}
	}
	return r
}
