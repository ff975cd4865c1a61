package flow

import (
	"fmt"
	"io"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/ptlsim/demand"
	"github.com/tsinghua-fib-lab/ptlsim/utils/config"
	"github.com/tsinghua-fib-lab/ptlsim/utils/randengine"
	"github.com/tsinghua-fib-lab/ptlsim/vtype"
	"github.com/vmihailenco/msgpack/v5"
)

// Options 生成车流方案所需的实验参数
type Options struct {
	Seed         uint64
	AvRate       float64
	Rule         vtype.Rule // 写入车型分布的静态资格规则
	EndToEndOnly bool       // AV仅在端到端车流中获得资格
	ArrivalSplit bool       // 走廊路网：具备资格车辆随机选择出发车道
	Corridor     bool       // 无匝道走廊路网
}

// Plan 一次实验的完整车流方案
// 说明：仿真器后端（内置仿真器、SUMO配置文件）均从Plan读取需求
type Plan struct {
	Demand        string                `msgpack:"demand"`
	AvRate        float64               `msgpack:"av_rate"`
	Seed          uint64                `msgpack:"seed"`
	HourLength    float64               `msgpack:"hour_length"`
	EnterSpeed    string                `msgpack:"enter_speed"`
	Distributions []*vtype.Distribution `msgpack:"distributions"`
	Flows         []Descriptor          `msgpack:"flows"`
	Dropped       []Dropped             `msgpack:"dropped,omitempty"`
}

// NewPlan 生成车流方案
// 功能：确定车辆数、构造车型分布并合成车流
// 参数：p-需求剖面，topo-路网拓扑，opts-实验参数
// 返回：车流方案
// 算法说明：
// 1. 按AV比例确定车辆数并检查剖面
// 2. 走廊路网：按资格划分车型分布，调用SynthesizeCorridor
// 3. 匝道路网：以实验种子新建随机数引擎，调用Synthesize，车型分布使用混合分布
func NewPlan(p *demand.Profile, topo config.Topology, opts Options) (*Plan, error) {
	p, err := p.ForAvRate(opts.AvRate)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	plan := &Plan{
		Demand:     p.Name,
		AvRate:     opts.AvRate,
		Seed:       opts.Seed,
		HourLength: p.HourLength,
		EnterSpeed: p.EnterSpeed,
	}
	if opts.Corridor {
		part, err := vtype.Build(p, opts.AvRate, opts.Rule)
		if err != nil {
			return nil, err
		}
		if plan.Flows, err = SynthesizeCorridor(p, topo, part, opts.ArrivalSplit); err != nil {
			return nil, err
		}
		plan.Distributions = []*vtype.Distribution{part.Eligible, part.NonEligible}
	} else {
		veh, e2e, err := vtype.Mixed(p, opts.AvRate, opts.Rule, opts.EndToEndOnly)
		if err != nil {
			return nil, err
		}
		if plan.Flows, plan.Dropped, err = Synthesize(p, topo, randengine.New(opts.Seed)); err != nil {
			return nil, err
		}
		plan.Distributions = []*vtype.Distribution{veh, e2e}
	}
	plan.Distributions = append(plan.Distributions, vtype.Bus(p))
	plan.Distributions = lo.Filter(plan.Distributions, func(d *vtype.Distribution, _ int) bool {
		return d != nil
	})
	for _, f := range plan.Flows {
		if plan.Distribution(f.Dist) == nil {
			return nil, fmt.Errorf("flow %s: no vehicle type distribution %q", f.ID, f.Dist)
		}
	}
	log.Infof("plan %s av=%v seed=%d: %d flows, %d dropped", plan.Demand, plan.AvRate, plan.Seed, len(plan.Flows), len(plan.Dropped))
	return plan, nil
}

// Distribution 按ID查找车型分布，不存在时返回nil
func (p *Plan) Distribution(id string) *vtype.Distribution {
	d, _ := lo.Find(p.Distributions, func(d *vtype.Distribution) bool {
		return d.ID == id
	})
	return d
}

// TotalRate 按条件统计车流速率之和
func (p *Plan) TotalRate(pred func(*Descriptor) bool) float64 {
	sum := 0.
	for i := range p.Flows {
		if pred(&p.Flows[i]) {
			sum += p.Flows[i].Rate
		}
	}
	return sum
}

// End 最后一个车流的结束时间
func (p *Plan) End() float64 {
	return lo.MaxBy(p.Flows, func(a, b Descriptor) bool {
		return a.End > b.End
	}).End
}

// Encode 以msgpack格式写出方案快照
func (p *Plan) Encode(w io.Writer) error {
	return msgpack.NewEncoder(w).Encode(p)
}

// DecodePlan 读取msgpack格式的方案快照
func DecodePlan(r io.Reader) (*Plan, error) {
	var p Plan
	if err := msgpack.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return &p, nil
}
