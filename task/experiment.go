package task

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/ptlsim/access"
	"github.com/tsinghua-fib-lab/ptlsim/demand"
	"github.com/tsinghua-fib-lab/ptlsim/flow"
	"github.com/tsinghua-fib-lab/ptlsim/utils/config"
	"github.com/tsinghua-fib-lab/ptlsim/utils/randengine"
)

// Experiment 一次实验的全部参数
// 说明：(Network, Demand, AvRate, Seed, Policy)唯一确定一次实验及其输出目录
type Experiment struct {
	Network  string
	Topology config.Topology
	Corridor bool
	Demand   *demand.Profile
	AvRate   float64
	Seed     uint64
	Policy   access.Policy
}

func formatRate(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Name 实验名
func (e *Experiment) Name() string {
	return fmt.Sprintf("%s/%s/av_%s/%d/%s", e.Network, e.Demand.Name, formatRate(e.AvRate), e.Seed, e.Policy.Name())
}

// Dir 实验独占的输出目录
func (e *Experiment) Dir(root string) string {
	return filepath.Join(root, e.Network, e.Demand.Name, "av_"+formatRate(e.AvRate), strconv.FormatUint(e.Seed, 10), e.Policy.Name())
}

// PlanOptions 生成车流方案的参数
func (e *Experiment) PlanOptions() flow.Options {
	return flow.Options{
		Seed:         e.Seed,
		AvRate:       e.AvRate,
		Rule:         e.Policy.Rule(),
		EndToEndOnly: e.Policy.EndToEnd,
		ArrivalSplit: e.Policy.ArrivalSplit,
		Corridor:     e.Corridor,
	}
}

// Seeds 由主种子生成n个实验种子（取值[0, 10000)）
func Seeds(master uint64, n int) []uint64 {
	rng := randengine.New(master)
	return lo.Times(n, func(int) uint64 {
		return uint64(rng.Intn(10000))
	})
}

// Filter 需求、策略与AV比例的筛选条件，为空表示不筛选
type Filter struct {
	Demands  []string
	Policies []string
	AvRates  []float64
}

// Enumerate 展开参数扫描的全部实验
// 功能：按需求 × 种子 × AV比例 × 策略参数的顺序生成实验
// 参数：rc-运行时配置，topo-路网拓扑，demands-需求注册表，policies-策略注册表，filter-命令行筛选
// 算法说明：
// 1. 需求与策略名取配置与命令行筛选的交集（均为空时取注册表全部）
// 2. AV比例为0时跳过需要AV参与的策略
// 3. 种子由配置中的主种子生成
func Enumerate(
	rc *config.RuntimeConfig,
	topo config.Topology,
	demands *demand.Registry,
	policies *access.Registry,
	filter Filter,
) ([]*Experiment, error) {
	sweep := rc.All.Sweep
	if err := checkNames("demand", demands.Names(), sweep.Demands, filter.Demands); err != nil {
		return nil, err
	}
	if err := checkNames("policy", policies.Names(), sweep.Policies, filter.Policies); err != nil {
		return nil, err
	}
	demandNames := pick(demands.Names(), sweep.Demands, filter.Demands)
	policyNames := pick(policies.Names(), sweep.Policies, filter.Policies)
	avRates := sweep.AvRates
	if len(filter.AvRates) > 0 {
		avRates = filter.AvRates
	}
	space := access.Space{MinNumPass: sweep.MinNumPass, MaxPassengers: rc.C.MaxPassengers}
	var ps []access.Policy
	for _, name := range policyNames {
		expanded, err := policies.Expand(name, space)
		if err != nil {
			return nil, err
		}
		ps = append(ps, expanded...)
	}
	seeds := Seeds(sweep.Seed, sweep.NumSeeds)

	var res []*Experiment
	for _, name := range demandNames {
		profiles, err := demands.Expand(name)
		if err != nil {
			return nil, err
		}
		for _, p := range profiles {
			for _, seed := range seeds {
				for _, av := range avRates {
					for _, policy := range ps {
						if av == 0 && policy.NeedsAV() {
							continue
						}
						res = append(res, &Experiment{
							Network:  rc.All.Network.Name,
							Topology: topo,
							Corridor: rc.All.Network.Corridor,
							Demand:   p,
							AvRate:   av,
							Seed:     seed,
							Policy:   policy,
						})
					}
				}
			}
		}
	}
	return res, nil
}

// pick 按顺序保留all中同时出现在各非空筛选条件中的名字
func pick(all []string, filters ...[]string) []string {
	return lo.Filter(all, func(name string, _ int) bool {
		for _, f := range filters {
			if len(f) > 0 && !lo.Contains(f, name) {
				return false
			}
		}
		return true
	})
}

func checkNames(kind string, all []string, lists ...[]string) error {
	for _, list := range lists {
		if unknown, _ := lo.Difference(list, all); len(unknown) > 0 {
			return fmt.Errorf("unknown %s %v, registered: %v", kind, unknown, all)
		}
	}
	return nil
}
