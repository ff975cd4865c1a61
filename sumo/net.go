package sumo

import (
	"cmp"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/ptlsim/utils/config"
)

// RampEdgePrefix 进入匝道路段ID前缀
const RampEdgePrefix = "Ei"

type xmlNet struct {
	XMLName   xml.Name      `xml:"net"`
	Edges     []xmlEdge     `xml:"edge"`
	Junctions []xmlJunction `xml:"junction"`
}

type xmlEdge struct {
	ID       string    `xml:"id,attr"`
	Function string    `xml:"function,attr"`
	Shape    string    `xml:"shape,attr"`
	Lanes    []xmlLane `xml:"lane"`
}

type xmlLane struct {
	ID       string  `xml:"id,attr"`
	Index    int     `xml:"index,attr"`
	Length   float64 `xml:"length,attr"`
	Allow    *string `xml:"allow,attr"`
	Disallow *string `xml:"disallow,attr"`
	Shape    string  `xml:"shape,attr"`
}

type xmlJunction struct {
	ID   string  `xml:"id,attr"`
	Type string  `xml:"type,attr"`
	X    float64 `xml:"x,attr"`
	Y    float64 `xml:"y,attr"`
}

// allows 车道是否允许某类别通行（allow优先于disallow，均缺省时全部允许）
func (l *xmlLane) allows(class string) bool {
	switch {
	case l.Allow != nil:
		list := strings.Fields(*l.Allow)
		return slices.Contains(list, "all") || slices.Contains(list, class)
	case l.Disallow != nil:
		list := strings.Fields(*l.Disallow)
		return !slices.Contains(list, "all") && !slices.Contains(list, class)
	default:
		return true
	}
}

// firstX 形状字符串"x1,y1 x2,y2 ..."中第一个点的x坐标
func firstX(shape string) (float64, bool) {
	point, _, _ := strings.Cut(strings.TrimSpace(shape), " ")
	xs, _, ok := strings.Cut(point, ",")
	if !ok {
		return 0, false
	}
	x, err := strconv.ParseFloat(xs, 64)
	return x, err == nil
}

func (e *xmlEdge) startX() float64 {
	if x, ok := firstX(e.Shape); ok {
		return x
	}
	for _, l := range e.Lanes {
		if x, ok := firstX(l.Shape); ok {
			return x
		}
	}
	return 0
}

// ParseNetFile 从SUMO路网文件解析拓扑
func ParseNetFile(path string) (config.Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return config.Topology{}, fmt.Errorf("sumo: open net file: %w", err)
	}
	defer f.Close()
	return ParseNet(f)
}

// ParseNet 解析SUMO路网（.net.xml）得到拓扑
// 算法说明：
// 1. 忽略内部路段与内部路口
// 2. 起点为x坐标最小的路口，终点为x坐标最大的路口
// 3. 入口路段为起点x坐标最小的路段，车道数即其车道数
// 4. 匝道数为ID以"Ei"开头的路段数
// 5. 不允许passenger通行的车道为限制车道
func ParseNet(r io.Reader) (config.Topology, error) {
	var net xmlNet
	if err := xml.NewDecoder(r).Decode(&net); err != nil {
		return config.Topology{}, fmt.Errorf("sumo: decode net: %w", err)
	}
	edges := lo.Filter(net.Edges, func(e xmlEdge, _ int) bool {
		return e.Function != "internal" && len(e.Lanes) > 0
	})
	junctions := lo.Filter(net.Junctions, func(j xmlJunction, _ int) bool {
		return j.Type != "internal"
	})
	if len(edges) == 0 || len(junctions) < 2 {
		return config.Topology{}, fmt.Errorf("sumo: net has %d edges and %d junctions", len(edges), len(junctions))
	}
	slices.SortStableFunc(junctions, func(a, b xmlJunction) int {
		return cmp.Compare(a.X, b.X)
	})
	slices.SortStableFunc(edges, func(a, b xmlEdge) int {
		return cmp.Compare(a.startX(), b.startX())
	})
	first, last := junctions[0], junctions[len(junctions)-1]
	entry := edges[0]
	topo := config.Topology{
		Ramps:        lo.CountBy(edges, func(e xmlEdge) bool { return strings.HasPrefix(e.ID, RampEdgePrefix) }),
		Lanes:        len(entry.Lanes),
		Origin:       first.ID,
		Destinations: []string{last.ID},
		EntryEdge:    entry.ID,
		Length:       last.X - first.X,
	}
	for _, e := range edges {
		for _, l := range e.Lanes {
			if l.allows("passenger") {
				continue
			}
			topo.RestrictedLanes = append(topo.RestrictedLanes, l.ID)
			if e.ID == entry.ID {
				topo.RestrictedIndex = append(topo.RestrictedIndex, l.Index)
			}
		}
	}
	log.Infof("net: origin=%s destination=%s entry=%s lanes=%d ramps=%d restricted=%d",
		topo.Origin, last.ID, topo.EntryEdge, topo.Lanes, topo.Ramps, len(topo.RestrictedLanes))
	return topo, nil
}
