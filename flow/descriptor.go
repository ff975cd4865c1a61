package flow

import (
	"fmt"

	"github.com/tsinghua-fib-lab/ptlsim/demand"
)

// Model 到达过程模型
type Model string

const (
	Poisson     Model = "poisson"     // 指数分布的车头时距，Rate为每秒到达率
	Probability Model = "probability" // 每秒以概率Rate到达一辆
)

// LaneRandom 由仿真器随机选择出发车道
const LaneRandom = "random"

// Descriptor 车流描述
// 功能：描述一个起讫点之间、一个小时桶内的到达过程及其车型分布
type Descriptor struct {
	ID       string  `msgpack:"id"`
	Hour     int     `msgpack:"hour"`
	From     string  `msgpack:"from"`
	To       string  `msgpack:"to"`
	Begin    float64 `msgpack:"begin"` // 秒
	End      float64 `msgpack:"end"`   // 秒，区间[Begin, End)
	Rate     float64 `msgpack:"rate"`
	Model    Model   `msgpack:"model"`
	Dist     string  `msgpack:"dist"`                // 车型分布ID
	Lane     *int    `msgpack:"lane,omitempty"`      // 出发车道，nil表示仿真器默认
	LaneMode string  `msgpack:"lane_mode,omitempty"` // 非空时覆盖Lane，如"random"
}

// DepartLane 出发车道的文本表示，为空表示不指定
func (d *Descriptor) DepartLane() string {
	if d.LaneMode != "" {
		return d.LaneMode
	}
	if d.Lane != nil {
		return fmt.Sprint(*d.Lane)
	}
	return ""
}

// Dropped 因到达率过低被丢弃的匝道对车流
type Dropped struct {
	Stream int     `msgpack:"stream"`
	Hour   int     `msgpack:"hour"`
	From   string  `msgpack:"from"`
	To     string  `msgpack:"to"`
	Rate   float64 `msgpack:"rate"`
}

// window 小时桶对应的仿真时间区间
func window(p *demand.Profile, hour int) (float64, float64) {
	return float64(hour-demand.FirstHour) * p.HourLength, float64(hour-demand.FirstHour+1) * p.HourLength
}

// builder 按固定格式生成车流ID并收集描述
type builder struct {
	p       *demand.Profile
	stream  int
	tagged  bool // 多股需求时在ID后附加股号
	flows   []Descriptor
	dropped []Dropped
}

func (b *builder) add(hour int, from, to string, rate float64, model Model, dist string, lane *int, laneMode string) {
	id := fmt.Sprintf("flow_%s_%d_%s_%s", dist, hour, from, to)
	switch {
	case laneMode != "":
		id += "_" + laneMode
	case lane != nil:
		id += fmt.Sprintf("_%d", *lane)
	}
	if b.tagged {
		id += fmt.Sprintf("_s%d", b.stream)
	}
	begin, end := window(b.p, hour)
	b.flows = append(b.flows, Descriptor{
		ID:       id,
		Hour:     hour,
		From:     from,
		To:       to,
		Begin:    begin,
		End:      end,
		Rate:     rate,
		Model:    model,
		Dist:     dist,
		Lane:     lane,
		LaneMode: laneMode,
	})
}

func (b *builder) drop(hour int, from, to string, rate float64) {
	log.Warnf("stream %d hour %d %s->%s: rate %g too low, flow dropped", b.stream, hour, from, to, rate)
	b.dropped = append(b.dropped, Dropped{Stream: b.stream, Hour: hour, From: from, To: to, Rate: rate})
}

func lanePtr(i int) *int {
	return &i
}
