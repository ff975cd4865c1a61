package flow

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/ptlsim/demand"
	"github.com/tsinghua-fib-lab/ptlsim/utils/config"
	"github.com/tsinghua-fib-lab/ptlsim/utils/randengine"
	"github.com/tsinghua-fib-lab/ptlsim/vtype"
)

const (
	// 匝道分流概率的上界，每个匝道的进出概率在[0, maxSplit)内均匀抽取
	maxSplit = 0.2

	InRampPrefix  = "i"
	OutRampPrefix = "o"
)

var (
	ErrNegativeLeftover = errors.New("flow: out-ramp split probabilities exceed 1")
	ErrBadTopology      = errors.New("flow: bad topology")
)

func checkTopology(topo config.Topology) error {
	switch {
	case topo.Lanes <= 0:
		return fmt.Errorf("%w: %d lanes", ErrBadTopology, topo.Lanes)
	case topo.Ramps < 0:
		return fmt.Errorf("%w: %d ramps", ErrBadTopology, topo.Ramps)
	case topo.Origin == "":
		return fmt.Errorf("%w: no origin", ErrBadTopology)
	case len(topo.Destinations) == 0:
		return fmt.Errorf("%w: no destination", ErrBadTopology)
	}
	return nil
}

// InRamp 第i个（从1开始）进匝道的路口ID
func InRamp(i int) string {
	return fmt.Sprintf("%s%d", InRampPrefix, i)
}

// OutRamp 第j个（从1开始）出匝道的路口ID
func OutRamp(j int) string {
	return fmt.Sprintf("%s%d", OutRampPrefix, j)
}

// Synthesize 匝道路网的车流生成
// 功能：把小时级需求展开为各起讫点、各车道的到达过程
// 参数：p-需求剖面（车辆数已确定），topo-路网拓扑，rng-本次实验的随机数引擎
// 返回：车流列表、被丢弃的低流量匝道对
// 算法说明：
// 1. 为R个进匝道、R个出匝道依次抽取分流概率in[i]、out[j]，整个剖面共用一组
// 2. 对每股需求、每个车辆数大于0的小时：total = count/3600，busFrac = buses/count
// 3. 进匝道i到出匝道j（i<=j）：rate = total*in[i]*out[j]；total*HourLength>1时按泊松生成，否则丢弃并记录
// 4. 进匝道i到主线终点：total*in[i]*(1-sum_{j>=i} out[j])
// 5. 主线起点到出匝道j：每条车道total*out[j]/L，指定出发车道
// 6. 主线起点到主线终点：每条车道total*(1-sum out)/L，使用端到端车型分布
// 7. 以上各项在busFrac>0时附带公交子车流（概率模型，速率乘busFrac）
// 说明：相同的(剖面, 种子, 拓扑)得到完全相同的结果
func Synthesize(p *demand.Profile, topo config.Topology, rng *randengine.Engine) ([]Descriptor, []Dropped, error) {
	if err := checkTopology(topo); err != nil {
		return nil, nil, err
	}
	in := rng.UniformN(0, maxSplit, topo.Ramps)
	out := rng.UniformN(0, maxSplit, topo.Ramps)
	left := 1 - lo.Sum(out)
	if left < 0 {
		return nil, nil, fmt.Errorf("%w: main line leftover %g", ErrNegativeLeftover, left)
	}
	log.Debugf("split probabilities in=%v out=%v", in, out)

	var flows []Descriptor
	var dropped []Dropped
	for s := range p.Streams {
		b := &builder{p: p, stream: s, tagged: len(p.Streams) > 1}
		dest := topo.Destinations[s%len(topo.Destinations)]
		for _, hour := range p.Hours() {
			count := p.Streams[s].Vehicles[hour]
			if count == 0 {
				continue
			}
			total := float64(count) / 3600
			busFrac := float64(p.Streams[s].Buses[hour]) / float64(count)
			hasBus := total*busFrac > 0

			for i := range topo.Ramps {
				from := InRamp(i + 1)
				leftIn := 1.
				for j := i; j < topo.Ramps; j++ {
					to := OutRamp(j + 1)
					leftIn -= out[j]
					rate := total * in[i] * out[j]
					if total*p.HourLength > 1 {
						b.add(hour, from, to, rate, Poisson, vtype.DistVehicle, nil, "")
						if hasBus {
							b.add(hour, from, to, rate*busFrac, Probability, vtype.DistBus, nil, "")
						}
					} else {
						b.drop(hour, from, to, rate)
					}
				}
				rate := total * in[i] * leftIn
				b.add(hour, from, dest, rate, Poisson, vtype.DistVehicle, nil, "")
				if rate*busFrac > 0 {
					b.add(hour, from, dest, rate*busFrac, Probability, vtype.DistBus, nil, "")
				}
			}
			for j := range topo.Ramps {
				to := OutRamp(j + 1)
				rate := total * out[j] / float64(topo.Lanes)
				for lane := range topo.Lanes {
					b.add(hour, topo.Origin, to, rate, Poisson, vtype.DistVehicle, lanePtr(lane), "")
					if hasBus {
						b.add(hour, topo.Origin, to, rate*busFrac, Probability, vtype.DistBus, lanePtr(lane), "")
					}
				}
			}
			rate := total * left / float64(topo.Lanes)
			for lane := range topo.Lanes {
				b.add(hour, topo.Origin, dest, rate, Poisson, vtype.DistEndToEnd, lanePtr(lane), "")
				if hasBus {
					b.add(hour, topo.Origin, dest, rate*busFrac, Probability, vtype.DistBus, lanePtr(lane), "")
				}
			}
		}
		flows = append(flows, b.flows...)
		dropped = append(dropped, b.dropped...)
	}
	return flows, dropped, nil
}

var ErrNoLane = errors.New("flow: no lane for partition")

// SynthesizeCorridor 无匝道走廊路网的车流生成
// 功能：按资格划分后的车型分布，把具备资格的车辆放到限制车道、其余车辆放到普通车道
// 参数：p-需求剖面，topo-路网拓扑（RestrictedIndex给出入口路段限制车道下标），part-车型划分，arrivalSplit-具备资格车辆随机选择出发车道
// 算法说明：
// 1. 具备资格部分：rate = total*EligibleShare，平均分到各限制车道；arrivalSplit时生成单个随机车道车流
// 2. 公交：total*busFrac，平均分到各限制车道；arrivalSplit时生成单个不指定车道的车流，速率再除以入口车道数
// 3. 不具备资格部分：rate = total*NonEligibleShare，平均分到其余车道
// 4. 占比为0的部分不生成车流
func SynthesizeCorridor(p *demand.Profile, topo config.Topology, part vtype.Partition, arrivalSplit bool) ([]Descriptor, error) {
	if err := checkTopology(topo); err != nil {
		return nil, err
	}
	restricted := lo.Uniq(topo.RestrictedIndex)
	for _, i := range restricted {
		if i < 0 || i >= topo.Lanes {
			return nil, fmt.Errorf("%w: restricted lane index %d of %d lanes", ErrBadTopology, i, topo.Lanes)
		}
	}
	normal := lo.Filter(lo.Range(topo.Lanes), func(i int, _ int) bool {
		return !lo.Contains(restricted, i)
	})

	var flows []Descriptor
	for s := range p.Streams {
		b := &builder{p: p, stream: s, tagged: len(p.Streams) > 1}
		dest := topo.Destinations[s%len(topo.Destinations)]
		for _, hour := range p.Hours() {
			count := p.Streams[s].Vehicles[hour]
			if count == 0 {
				continue
			}
			total := float64(count) / 3600
			busFrac := float64(p.Streams[s].Buses[hour]) / float64(count)
			eligible := total * part.EligibleShare
			bus := total * busFrac

			if arrivalSplit {
				if eligible > 0 {
					b.add(hour, topo.Origin, dest, eligible, Poisson, vtype.DistEligible, nil, LaneRandom)
				}
				if bus > 0 {
					b.add(hour, topo.Origin, dest, bus/float64(topo.Lanes), Probability, vtype.DistBus, nil, "")
				}
			} else if eligible > 0 || bus > 0 {
				if len(restricted) == 0 {
					return nil, fmt.Errorf("%w: eligible or bus traffic but no restricted lane", ErrNoLane)
				}
				n := float64(len(restricted))
				for _, lane := range restricted {
					if eligible > 0 {
						b.add(hour, topo.Origin, dest, eligible/n, Poisson, vtype.DistEligible, lanePtr(lane), "")
					}
					if bus > 0 {
						b.add(hour, topo.Origin, dest, bus/n, Probability, vtype.DistBus, lanePtr(lane), "")
					}
				}
			}

			if nonEligible := total * part.NonEligibleShare; nonEligible > 0 {
				if len(normal) == 0 {
					return nil, fmt.Errorf("%w: non-eligible traffic but no unrestricted lane", ErrNoLane)
				}
				n := float64(len(normal))
				for _, lane := range normal {
					b.add(hour, topo.Origin, dest, nonEligible/n, Poisson, vtype.DistNonEligible, lanePtr(lane), "")
				}
			}
		}
		flows = append(flows, b.flows...)
	}
	return flows, nil
}
