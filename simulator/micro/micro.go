// 内置走廊仿真器
// 由车流方案驱动的确定性宏微观混合模型：车辆按到达过程进入，各车道速度由车道密度决定（Greenshields），
// 限制车道只允许准入类别的车辆驶入，获得资格的车辆会换到更快的可用车道
package micro

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/ptlsim/entity"
	"github.com/tsinghua-fib-lab/ptlsim/flow"
	"github.com/tsinghua-fib-lab/ptlsim/utils/config"
	"github.com/tsinghua-fib-lab/ptlsim/utils/container"
	"github.com/tsinghua-fib-lab/ptlsim/utils/randengine"
	"github.com/tsinghua-fib-lab/ptlsim/vtype"
)

var (
	minSpeed       = flag.Float64("micro.min_speed", 1, "内置仿真器最低车速（米/秒）")
	laneChangeGain = flag.Float64("micro.lane_change_gain", 0.5, "内置仿真器换道所需的最小速度增益（米/秒）")
)

const (
	defaultLength     = 2000.0 // 主线长度（米）
	defaultFreeSpeed  = 27.0   // 自由流速度（米/秒）
	defaultJamDensity = 0.15   // 阻塞密度（辆/米/车道）
)

var (
	ErrUnknownVehicle = errors.New("micro: unknown vehicle")
	ErrUnknownLane    = errors.New("micro: unknown lane")
	ErrUnknownEdge    = errors.New("micro: unknown edge")
)

var allClasses = []entity.VehicleClass{
	entity.ClassPassenger, entity.ClassEVehicle, entity.ClassPrivate, entity.ClassBus,
}

// Options 内置仿真器参数
type Options struct {
	Topology config.Topology
	Micro    config.Micro
	DT       float64 // 每步时长（秒）
	Seed     uint64
}

// Simulator 内置走廊仿真器
// 说明：路段按匝道位置切分，第0段为入口路段；进匝道i位于第2i-1个分界点，出匝道j位于第2j个分界点
type Simulator struct {
	plan  *flow.Plan
	rng   *randengine.Engine
	dt    float64
	t     float64
	step  int32
	steps int32 // 最大步数，0表示不限

	length     float64
	freeSpeed  float64
	jamDensity float64

	lanes      int
	edges      []string  // 路段ID
	bounds     []float64 // 路段分界点，len(edges)+1个
	allowed    [][][]entity.VehicleClass // 路段 -> 车道 -> 准入类别
	restricted []int
	laneSpeed  []float64

	junctionPos map[string]float64 // 路口 -> 位置
	probs       map[string][]float64

	sources  *container.PriorityQueue[*source]
	vehicles *container.ActiveSet[*vehicle]
	byID     map[string]*vehicle
	mtx      sync.Mutex

	spawned, arrived int
}

// New 创建内置仿真器
// 功能：根据拓扑划分路段与车道，登记车流方案中的全部到达过程
// 参数：plan-车流方案，opts-参数
// 返回：仿真器实例
func New(plan *flow.Plan, opts Options) (*Simulator, error) {
	topo := opts.Topology
	if topo.Lanes <= 0 {
		return nil, fmt.Errorf("micro: %d lanes", topo.Lanes)
	}
	if opts.DT <= 0 {
		opts.DT = 1
	}
	s := &Simulator{
		plan:        plan,
		rng:         randengine.New(opts.Seed),
		dt:          opts.DT,
		steps:       opts.Micro.MaxSteps,
		length:      lo.Ternary(topo.Length > 0, topo.Length, defaultLength),
		freeSpeed:   lo.Ternary(opts.Micro.FreeSpeed > 0, opts.Micro.FreeSpeed, defaultFreeSpeed),
		jamDensity:  lo.Ternary(opts.Micro.JamDensity > 0, opts.Micro.JamDensity, defaultJamDensity),
		lanes:       topo.Lanes,
		restricted:  lo.Uniq(topo.RestrictedIndex),
		laneSpeed:   make([]float64, topo.Lanes),
		junctionPos: make(map[string]float64),
		probs:       make(map[string][]float64),
		sources:     container.NewPriorityQueue[*source](),
		vehicles:    container.NewActiveSet[*vehicle](),
		byID:        make(map[string]*vehicle),
	}
	for _, i := range s.restricted {
		if i < 0 || i >= s.lanes {
			return nil, fmt.Errorf("micro: restricted lane index %d of %d lanes", i, s.lanes)
		}
	}

	// 路段切分
	nSeg := 2*topo.Ramps + 1
	for k := range nSeg + 1 {
		s.bounds = append(s.bounds, s.length*float64(k)/float64(nSeg))
	}
	for k := range nSeg {
		s.edges = append(s.edges, fmt.Sprintf("E%d", k))
	}
	if topo.EntryEdge != "" {
		s.edges[0] = topo.EntryEdge
	}
	s.junctionPos[topo.Origin] = 0
	for _, d := range topo.Destinations {
		s.junctionPos[d] = s.length
	}
	for i := 1; i <= topo.Ramps; i++ {
		s.junctionPos[flow.InRamp(i)] = s.bounds[2*i-1]
		s.junctionPos[flow.OutRamp(i)] = s.bounds[2*i]
	}

	// 车道准入：限制车道只允许公交与private
	s.allowed = make([][][]entity.VehicleClass, len(s.edges))
	for e := range s.edges {
		s.allowed[e] = make([][]entity.VehicleClass, s.lanes)
		for i := range s.lanes {
			if slices.Contains(s.restricted, i) {
				s.allowed[e][i] = []entity.VehicleClass{entity.ClassBus, entity.ClassPrivate}
			} else {
				s.allowed[e][i] = slices.Clone(allClasses)
			}
		}
	}
	for i := range s.lanes {
		s.laneSpeed[i] = s.freeSpeed
	}

	for _, d := range plan.Distributions {
		s.probs[d.ID] = lo.Map(d.Entries, func(e vtype.Entry, _ int) float64 { return e.Prob })
	}
	for i, f := range plan.Flows {
		if _, ok := s.junctionPos[f.From]; !ok {
			return nil, fmt.Errorf("micro: flow %s from unknown junction %s", f.ID, f.From)
		}
		if _, ok := s.junctionPos[f.To]; !ok {
			return nil, fmt.Errorf("micro: flow %s to unknown junction %s", f.ID, f.To)
		}
		if plan.Distribution(f.Dist) == nil {
			return nil, fmt.Errorf("micro: flow %s uses unknown distribution %s", f.ID, f.Dist)
		}
		src := &source{flow: i, next: f.Begin}
		if s.schedule(src) {
			s.sources.Push(src, src.next)
		}
	}
	log.Infof("micro: %d edges x %d lanes, %d flows", len(s.edges), s.lanes, len(plan.Flows))
	return s, nil
}

// schedule 计算下一辆车的到达时间，返回该车流是否还有车辆
// 算法说明：泊松模型的车头时距服从指数分布；概率模型每秒以概率Rate到达，车头时距服从几何分布
func (s *Simulator) schedule(src *source) bool {
	f := &s.plan.Flows[src.flow]
	switch f.Model {
	case flow.Probability:
		if f.Rate <= 0 {
			return false
		}
		k := 1.
		if f.Rate < 1 {
			k = math.Ceil(math.Log(1-s.rng.Float64()) / math.Log(1-f.Rate))
		}
		src.next += math.Max(k, 1)
	default:
		src.next += s.rng.Exponential(f.Rate)
	}
	return src.next < f.End
}

// RestrictedLanes 全部限制车道ID
func (s *Simulator) RestrictedLanes() []string {
	res := make([]string, 0, len(s.edges)*len(s.restricted))
	for _, e := range s.edges {
		for _, i := range s.restricted {
			res = append(res, laneID(e, i))
		}
	}
	return res
}

// Edges 路段ID（自起点向终点）
func (s *Simulator) Edges() []string {
	return slices.Clone(s.edges)
}

// Stats 累计进入与离开的车辆数
func (s *Simulator) Stats() (spawned, arrived int) {
	return s.spawned, s.arrived
}

func laneID(edge string, index int) string {
	return fmt.Sprintf("%s_%d", edge, index)
}

// parseLane 车道ID -> (路段下标, 车道下标)
func (s *Simulator) parseLane(id string) (int, int, error) {
	i := strings.LastIndex(id, "_")
	if i < 0 {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownLane, id)
	}
	e := slices.Index(s.edges, id[:i])
	n, err := strconv.Atoi(id[i+1:])
	if e < 0 || err != nil || n < 0 || n >= s.lanes {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownLane, id)
	}
	return e, n, nil
}

func (s *Simulator) edgeOf(pos float64) int {
	// bounds[k-1] <= pos < bounds[k]
	k, found := slices.BinarySearch(s.bounds, pos)
	if found {
		k++
	}
	return lo.Clamp(k-1, 0, len(s.edges)-1)
}

func (s *Simulator) laneAllows(edge, lane int, class entity.VehicleClass) bool {
	return slices.Contains(s.allowed[edge][lane], class)
}
