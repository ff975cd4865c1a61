// 车型分布构造：把AV比例、载客人数分布和资格规则组合成仿真器使用的车型分布
package vtype

import (
	"fmt"
	"slices"

	"github.com/tsinghua-fib-lab/ptlsim/demand"
	"github.com/tsinghua-fib-lab/ptlsim/entity"
	"gonum.org/v1/gonum/floats"
)

// 分布ID（同时也是写入路由文件的vTypeDistribution ID）
const (
	DistVehicle     = "vehicleDist"          // 匝道相关车流的混合分布
	DistEndToEnd    = "vehicleDist_endToEnd" // 主线端到端车流的混合分布
	DistBus         = "busDist"
	DistEligible    = "PTLDist"   // 具备限制车道资格的部分
	DistNonEligible = "NOPTLDist" // 不具备资格的部分
)

// Entry 分布中的一个车型
type Entry struct {
	Type  entity.VehicleType  `msgpack:"type"`
	Prob  float64             `msgpack:"prob"`
	Class entity.VehicleClass `msgpack:"class"`
}

// Distribution 车型分布
// 说明：Entries顺序确定（HD在前、AV在后，各自按人数升序），概率和为1
type Distribution struct {
	ID      string  `msgpack:"id"`
	Entries []Entry `msgpack:"entries"`
}

// Mass 概率和
func (d *Distribution) Mass() float64 {
	if d == nil {
		return 0
	}
	return floats.Sum(d.probs())
}

func (d *Distribution) probs() []float64 {
	res := make([]float64, len(d.Entries))
	for i, e := range d.Entries {
		res[i] = e.Prob
	}
	return res
}

// normalize 归一化，空分布返回nil
func normalize(id string, entries []Entry) *Distribution {
	d := &Distribution{ID: id, Entries: entries}
	probs := d.probs()
	sum := floats.Sum(probs)
	if len(entries) == 0 || sum <= 0 {
		return nil
	}
	floats.Scale(1/sum, probs)
	for i := range d.Entries {
		d.Entries[i].Prob = probs[i]
	}
	return d
}

// Partition 按资格划分后的车型分布
type Partition struct {
	Eligible         *Distribution // 为空表示没有车辆具备资格
	NonEligible      *Distribution // 为空表示所有车辆都具备资格
	EligibleShare    float64       // 具备资格车辆在全部车辆中的占比
	NonEligibleShare float64
}

// Rule 资格规则：种类在Kinds中且载客人数不少于Threshold
type Rule struct {
	Threshold int
	Kinds     []entity.VehicleKind
}

// Allows 判断车型是否具备资格
func (r Rule) Allows(kind entity.VehicleKind, passengers int) bool {
	return passengers >= r.Threshold && slices.Contains(r.Kinds, kind)
}

type weighted struct {
	kind entity.VehicleKind
	n    int
	p    float64
}

// combined 组合车型空间：HD人数分布乘(1-av)，AV人数分布乘av，跳过零概率项
func combined(p *demand.Profile, avRate float64) ([]weighted, error) {
	if avRate < 0 || avRate > 1 {
		return nil, fmt.Errorf("vtype: av rate %v out of [0, 1]", avRate)
	}
	var res []weighted
	for _, k := range p.PassHD.Keys() {
		if v := p.PassHD[k] * (1 - avRate); v > 0 {
			res = append(res, weighted{entity.KindHD, k, v})
		}
	}
	for _, k := range p.PassAV.Keys() {
		if v := p.PassAV[k] * avRate; v > 0 {
			res = append(res, weighted{entity.KindAV, k, v})
		}
	}
	return res, nil
}

// Build 按资格规则划分车型分布
// 功能：构造具备资格与不具备资格两部分车型分布，并给出各自占比
// 参数：p-需求剖面，avRate-AV比例，rule-资格规则
// 返回：划分结果，两部分各自归一化；某部分为空时对应分布为nil
// 算法说明：
// 1. 组合车型空间(AV|HD, 人数)，权重为av*P_AV或(1-av)*P_HD
// 2. 满足规则的进入Eligible，其余进入NonEligible，两部分互不相交且覆盖全部车型
// 3. 记录两部分的原始质量作为占比，再分别归一化
// 说明：每次调用重新计算，不做缓存
func Build(p *demand.Profile, avRate float64, rule Rule) (Partition, error) {
	all, err := combined(p, avRate)
	if err != nil {
		return Partition{}, err
	}
	var eligible, nonEligible []Entry
	var eShare, nShare float64
	for _, w := range all {
		t := entity.VehicleType{Kind: w.kind, Passengers: w.n}
		if rule.Allows(w.kind, w.n) {
			eligible = append(eligible, Entry{Type: t, Prob: w.p, Class: entity.ClassPrivate})
			eShare += w.p
		} else {
			nonEligible = append(nonEligible, Entry{Type: t, Prob: w.p, Class: t.DefaultClass()})
			nShare += w.p
		}
	}
	return Partition{
		Eligible:         normalize(DistEligible, eligible),
		NonEligible:      normalize(DistNonEligible, nonEligible),
		EligibleShare:    eShare,
		NonEligibleShare: nShare,
	}, nil
}

// Mixed 不划分的混合车型分布，每个车型按规则标注仿真器类别
// 功能：生成匝道路网使用的vehicleDist与vehicleDist_endToEnd
// 参数：endToEndOnly-为true时AV仅在端到端车流中获得资格
// 返回：普通分布、端到端分布
func Mixed(p *demand.Profile, avRate float64, rule Rule, endToEndOnly bool) (*Distribution, *Distribution, error) {
	all, err := combined(p, avRate)
	if err != nil {
		return nil, nil, err
	}
	build := func(id string, endToEnd bool) *Distribution {
		entries := make([]Entry, 0, len(all))
		for _, w := range all {
			t := entity.VehicleType{Kind: w.kind, Passengers: w.n, EndToEnd: endToEnd}
			class := t.DefaultClass()
			if rule.Allows(w.kind, w.n) && (w.kind != entity.KindAV || endToEnd || !endToEndOnly) {
				class = entity.ClassPrivate
			}
			entries = append(entries, Entry{Type: t, Prob: w.p, Class: class})
		}
		return normalize(id, entries)
	}
	return build(DistVehicle, false), build(DistEndToEnd, true), nil
}

// Bus 公交车型分布
func Bus(p *demand.Profile) *Distribution {
	entries := make([]Entry, 0, len(p.PassBus))
	for _, k := range p.PassBus.Keys() {
		if v := p.PassBus[k]; v > 0 {
			t := entity.VehicleType{Kind: entity.KindBus, Passengers: k}
			entries = append(entries, Entry{Type: t, Prob: v, Class: entity.ClassBus})
		}
	}
	return normalize(DistBus, entries)
}
