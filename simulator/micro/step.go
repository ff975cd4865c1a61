package micro

import (
	"context"
	"fmt"
	"slices"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/tsinghua-fib-lab/ptlsim/entity"
	"github.com/tsinghua-fib-lab/ptlsim/flow"
)

// Step 推进一步
// 算法说明：
// 1. 弹出本步内到期的到达过程，生成车辆并安排下一次到达
// 2. 按车道密度计算各车道速度：v = vf*(1-k/kj)，不低于最低车速
// 3. 并行推进车辆位置
// 4. 不允许停留在当前车道或有更快可用车道的车辆换道
// 5. 到达离开位置的车辆离开路网
func (s *Simulator) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.t += s.dt
	s.step++

	for _, src := range s.sources.PopUntil(s.t) {
		for {
			s.spawn(src)
			if !s.schedule(src) {
				break
			}
			if src.next > s.t {
				s.sources.Push(src, src.next)
				break
			}
		}
	}

	counts := make([]int, s.lanes)
	for _, v := range s.vehicles.Data() {
		counts[v.lane]++
	}
	for i, n := range counts {
		density := float64(n) / s.length
		s.laneSpeed[i] = max(s.freeSpeed*(1-density/s.jamDensity), *minSpeed)
	}

	parallel.GoFor(s.vehicles.Data(), func(v *vehicle) {
		v.speed = s.laneSpeed[v.lane]
		v.pos += v.speed * s.dt
	})

	for _, v := range s.vehicles.Data() {
		if v.pos >= v.exit {
			s.vehicles.Remove(v)
			delete(s.byID, v.id)
			s.arrived++
			continue
		}
		edge := s.edgeOf(v.pos)
		if !s.laneAllows(edge, v.lane, v.class) ||
			s.laneSpeed[s.bestLane(edge, v.class, v.lane)] >= s.laneSpeed[v.lane]+*laneChangeGain {
			v.lane = s.bestLane(edge, v.class, v.lane)
		}
	}
	s.vehicles.Commit()
	return nil
}

// spawn 按车流生成一辆车
func (s *Simulator) spawn(src *source) {
	f := &s.plan.Flows[src.flow]
	dist := s.plan.Distribution(f.Dist)
	entry := dist.Entries[s.rng.DiscreteDistribution(s.probs[f.Dist])]
	v := &vehicle{
		id:    fmt.Sprintf("%s.%d", f.ID, src.counter),
		vtype: entry.Type,
		class: entry.Class,
		pos:   s.junctionPos[f.From],
		exit:  s.junctionPos[f.To],
	}
	src.counter++
	v.lane = s.departLane(f, v.class, s.edgeOf(v.pos))
	v.speed = s.laneSpeed[v.lane]
	s.vehicles.Add(v)
	s.byID[v.id] = v
	s.spawned++
}

// departLane 出发车道：优先使用车流指定的车道，不允许时退回最快的可用车道
func (s *Simulator) departLane(f *flow.Descriptor, class entity.VehicleClass, edge int) int {
	if f.LaneMode == flow.LaneRandom {
		var candidates []int
		for i := range s.lanes {
			if s.laneAllows(edge, i, class) {
				candidates = append(candidates, i)
			}
		}
		if len(candidates) > 0 {
			return candidates[s.rng.Intn(len(candidates))]
		}
	}
	if f.Lane != nil && *f.Lane < s.lanes && s.laneAllows(edge, *f.Lane, class) {
		return *f.Lane
	}
	return s.bestLane(edge, class, -1)
}

// bestLane 该类别在路段上可用的最快车道，速度相同时保持当前车道，其次取下标小者
func (s *Simulator) bestLane(edge int, class entity.VehicleClass, current int) int {
	best := -1
	for i := range s.lanes {
		if !s.laneAllows(edge, i, class) {
			continue
		}
		if best < 0 || s.laneSpeed[i] > s.laneSpeed[best] ||
			(s.laneSpeed[i] == s.laneSpeed[best] && i == current) {
			best = i
		}
	}
	if best < 0 {
		return max(current, 0)
	}
	return best
}

// Finished 所有车流已结束且路网中没有车辆，或达到最大步数
func (s *Simulator) Finished() (bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.steps > 0 && s.step >= s.steps {
		return true, nil
	}
	return s.sources.Len() == 0 && s.vehicles.Len() == 0, nil
}

func (s *Simulator) Time() float64 {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.t
}

func (s *Simulator) ids(pred func(*vehicle) bool) []string {
	res := make([]string, 0)
	for _, v := range s.vehicles.Data() {
		if pred(v) {
			res = append(res, v.id)
		}
	}
	return res
}

func (s *Simulator) VehicleIDs() ([]string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.ids(func(*vehicle) bool { return true }), nil
}

func (s *Simulator) LaneVehicleIDs(laneID string) ([]string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	e, n, err := s.parseLane(laneID)
	if err != nil {
		return nil, err
	}
	return s.ids(func(v *vehicle) bool { return v.lane == n && s.edgeOf(v.pos) == e }), nil
}

func (s *Simulator) EdgeVehicleIDs(edgeID string) ([]string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	e := slices.Index(s.edges, edgeID)
	if e < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEdge, edgeID)
	}
	return s.ids(func(v *vehicle) bool { return s.edgeOf(v.pos) == e }), nil
}

func (s *Simulator) Vehicle(id string) (entity.VehicleState, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	v, ok := s.byID[id]
	if !ok {
		return entity.VehicleState{}, fmt.Errorf("%w: %s", ErrUnknownVehicle, id)
	}
	edge := s.edges[s.edgeOf(v.pos)]
	return entity.VehicleState{
		ID:    v.id,
		Type:  v.vtype.ID(),
		Class: v.class,
		Speed: v.speed,
		Lane:  laneID(edge, v.lane),
		Edge:  edge,
	}, nil
}

func (s *Simulator) SetVehicleClass(id string, class entity.VehicleClass) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	v, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVehicle, id)
	}
	v.class = class
	return nil
}

func (s *Simulator) SetLaneAllowed(laneID string, classes []entity.VehicleClass) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	e, n, err := s.parseLane(laneID)
	if err != nil {
		return err
	}
	s.allowed[e][n] = slices.Clone(classes)
	return nil
}

func (s *Simulator) Close() error {
	log.Infof("micro: closed at t=%.0f, %d spawned, %d arrived", s.t, s.spawned, s.arrived)
	return nil
}
