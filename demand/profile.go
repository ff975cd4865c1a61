package demand

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/samber/lo"
)

const (
	FirstHour = 6  // 最早的小时桶
	LastHour  = 29 // 最晚的小时桶（跨越午夜后继续计数）

	MinPassengers = 1 // 私家车最少载客人数
	MaxPassengers = 5 // 私家车最多载客人数

	minBusPassengers = 25
	maxBusPassengers = 44

	EnterSpeedMax = "max" // 以最大速度进入路网
)

var (
	ErrZeroMass        = errors.New("demand: passenger distribution has zero mass")
	ErrHourOutOfRange  = errors.New("demand: hour out of range")
	ErrNegativeCount   = errors.New("demand: negative count")
	ErrNoStreams       = errors.New("demand: profile has no streams")
	ErrBadHourLength   = errors.New("demand: hour length must be positive")
	ErrBadPassengerKey = errors.New("demand: passenger count out of range")
)

// PassDist 载客人数 -> 概率
type PassDist map[int]float64

// Keys 按载客人数升序返回
func (d PassDist) Keys() []int {
	keys := lo.Keys(d)
	slices.Sort(keys)
	return keys
}

// Mass 总概率质量
func (d PassDist) Mass() float64 {
	return lo.Sum(lo.Values(d))
}

// Expected 期望载客人数
func (d PassDist) Expected() float64 {
	e := 0.
	for k, v := range d {
		e += float64(k) * v
	}
	return e
}

// Normalize 归一化，总质量为0时返回ErrZeroMass
func (d PassDist) Normalize() (PassDist, error) {
	mass := d.Mass()
	if mass <= 0 {
		return nil, ErrZeroMass
	}
	return lo.MapValues(d, func(v float64, _ int) float64 {
		return v / mass
	}), nil
}

// DefaultPassHD 人工驾驶车辆载客人数分布（实测数据）
func DefaultPassHD() PassDist {
	return PassDist{1: 0.63, 2: 0.28, 3: 0.06, 4: 0.02, 5: 0.01}
}

// UniformPass 1..5人均匀分布
func UniformPass() PassDist {
	return PassDist{1: 0.2, 2: 0.2, 3: 0.2, 4: 0.2, 5: 0.2}
}

// DefaultPassBus 公交车载客人数分布：25..44人均匀
func DefaultPassBus() PassDist {
	d := make(PassDist, maxBusPassengers-minBusPassengers+1)
	for k := minBusPassengers; k <= maxBusPassengers; k++ {
		d[k] = 1 / float64(maxBusPassengers-minBusPassengers+1)
	}
	return d
}

// DerivePassAV 由人工驾驶分布推导自动驾驶分布
// 算法说明：单人概率乘以factor后重新归一化（factor<1表示自动驾驶车辆更少单人出行）
func DerivePassAV(hd PassDist, factor float64) (PassDist, error) {
	av := PassDist(lo.Assign(map[int]float64(hd)))
	av[1] *= factor
	return av.Normalize()
}

// Stream 一股需求：小时 -> 车辆数、小时 -> 公交数
type Stream struct {
	Vehicles map[int]int `msgpack:"vehicles"`
	Buses    map[int]int `msgpack:"buses"`
}

// Profile 需求剖面
// 功能：描述一次实验的小时级需求与载客人数分布
// 说明：Streams[i]对应第i个主线终点（超出终点数时取模）
type Profile struct {
	Name       string
	Streams    []Stream
	PassHD     PassDist
	PassAV     PassDist
	PassBus    PassDist
	HourLength float64 // 每个小时桶对应的仿真秒数
	EnterSpeed string

	// 以载客总人数给出需求的剖面，车辆数在确定AV比例后计算
	passAmount int
}

// Hours 所有出现过的小时（升序）
func (p *Profile) Hours() []int {
	hours := make(map[int]struct{})
	for _, s := range p.Streams {
		for h := range s.Vehicles {
			hours[h] = struct{}{}
		}
	}
	res := lo.Keys(hours)
	slices.Sort(res)
	return res
}

// Validate 检查剖面合法性
func (p *Profile) Validate() error {
	if len(p.Streams) == 0 {
		return ErrNoStreams
	}
	if p.HourLength <= 0 {
		return ErrBadHourLength
	}
	for i, s := range p.Streams {
		for _, m := range []map[int]int{s.Vehicles, s.Buses} {
			for h, n := range m {
				if h < FirstHour || h > LastHour {
					return fmt.Errorf("%w: stream %d hour %d", ErrHourOutOfRange, i, h)
				}
				if n < 0 {
					return fmt.Errorf("%w: stream %d hour %d count %d", ErrNegativeCount, i, h, n)
				}
			}
		}
	}
	for _, d := range []PassDist{p.PassHD, p.PassAV} {
		for k := range d {
			if k < MinPassengers || k > MaxPassengers {
				return fmt.Errorf("%w: %d", ErrBadPassengerKey, k)
			}
		}
		if d.Mass() <= 0 {
			return ErrZeroMass
		}
	}
	if p.PassBus.Mass() <= 0 {
		return ErrZeroMass
	}
	return nil
}

// PassengerDriven 车辆数是否由载客总人数推导
func (p *Profile) PassengerDriven() bool {
	return p.passAmount > 0
}

// ForAvRate 返回在给定AV比例下实际使用的剖面副本
// 功能：以载客总人数给出的剖面，按期望载客人数换算车辆数
// 算法说明：E = E_AV*av + E_HD*(1-av)，车辆数 = round(amount / E)
func (p *Profile) ForAvRate(avRate float64) (*Profile, error) {
	if avRate < 0 || avRate > 1 {
		return nil, fmt.Errorf("demand: av rate %v out of [0, 1]", avRate)
	}
	cp := *p
	cp.Streams = lo.Map(p.Streams, func(s Stream, _ int) Stream {
		return Stream{Vehicles: lo.Assign(s.Vehicles), Buses: lo.Assign(s.Buses)}
	})
	if !p.PassengerDriven() {
		return &cp, nil
	}
	e := p.PassAV.Expected()*avRate + p.PassHD.Expected()*(1-avRate)
	if e <= 0 {
		return nil, ErrZeroMass
	}
	n := int(math.Round(float64(p.passAmount) / e))
	for _, s := range cp.Streams {
		for h := range s.Vehicles {
			s.Vehicles[h] = n
		}
	}
	log.Debugf("%s: %d passengers at av rate %v -> %d vehicles", p.Name, p.passAmount, avRate, n)
	return &cp, nil
}

func (p *Profile) String() string {
	return p.Name
}

// newProfile 基础剖面：默认人数分布、最大速度进入
func newProfile(name string, avPassFactor float64, hourLength float64, streams ...Stream) (*Profile, error) {
	hd := DefaultPassHD()
	av, err := DerivePassAV(hd, avPassFactor)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	p := &Profile{
		Name:       name,
		Streams:    streams,
		PassHD:     hd,
		PassAV:     av,
		PassBus:    DefaultPassBus(),
		HourLength: hourLength,
		EnterSpeed: EnterSpeedMax,
	}
	return p, nil
}

func singleHour(amount int) Stream {
	return Stream{
		Vehicles: map[int]int{FirstHour: amount},
		Buses:    map[int]int{FirstHour: amount / 100},
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
