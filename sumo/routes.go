package sumo

import (
	"cmp"
	"encoding/xml"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/tsinghua-fib-lab/ptlsim/entity"
	"github.com/tsinghua-fib-lab/ptlsim/flow"
	"github.com/tsinghua-fib-lab/ptlsim/vtype"
)

type xmlRoutes struct {
	XMLName xml.Name      `xml:"routes"`
	Dists   []xmlTypeDist `xml:"vTypeDistribution"`
	Flows   []xmlFlow     `xml:"flow"`
}

type xmlTypeDist struct {
	ID    string     `xml:"id,attr"`
	Types []xmlVType `xml:"vType"`
}

type xmlVType struct {
	ID          string `xml:"id,attr"`
	Color       string `xml:"color,attr,omitempty"`
	Probability string `xml:"probability,attr"`
	VClass      string `xml:"vClass,attr"`
}

type xmlFlow struct {
	ID           string `xml:"id,attr"`
	Type         string `xml:"type,attr"`
	Begin        string `xml:"begin,attr"`
	End          string `xml:"end,attr"`
	FromJunction string `xml:"fromJunction,attr"`
	ToJunction   string `xml:"toJunction,attr"`
	DepartSpeed  string `xml:"departSpeed,attr,omitempty"`
	DepartLane   string `xml:"departLane,attr,omitempty"`
	Period       string `xml:"period,attr,omitempty"`
	Probability  string `xml:"probability,attr,omitempty"`
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// color 车型在sumo-gui中的颜色
func color(dist string, e vtype.Entry) string {
	switch {
	case e.Type.Kind == entity.KindBus:
		return ""
	case dist == vtype.DistEligible || e.Type.Kind == entity.KindAV && dist != vtype.DistNonEligible:
		return "blue"
	default:
		return "red"
	}
}

func routesOf(plan *flow.Plan) (*xmlRoutes, error) {
	routes := &xmlRoutes{}
	for _, d := range plan.Distributions {
		dist := xmlTypeDist{ID: d.ID}
		for _, e := range d.Entries {
			if e.Prob <= 0 {
				continue
			}
			dist.Types = append(dist.Types, xmlVType{
				ID:          e.Type.ID(),
				Color:       color(d.ID, e),
				Probability: formatFloat(e.Prob),
				VClass:      string(e.Class),
			})
		}
		routes.Dists = append(routes.Dists, dist)
	}
	flows := slices.Clone(plan.Flows)
	// SUMO要求路由文件中的车流按出发时间排序
	slices.SortStableFunc(flows, func(a, b flow.Descriptor) int {
		return cmp.Compare(a.Begin, b.Begin)
	})
	for _, f := range flows {
		x := xmlFlow{
			ID:           f.ID,
			Type:         f.Dist,
			Begin:        formatFloat(f.Begin),
			End:          formatFloat(f.End),
			FromJunction: f.From,
			ToJunction:   f.To,
			DepartSpeed:  plan.EnterSpeed,
			DepartLane:   f.DepartLane(),
		}
		switch f.Model {
		case flow.Poisson:
			x.Period = fmt.Sprintf("exp(%s)", formatFloat(f.Rate))
		case flow.Probability:
			x.Probability = formatFloat(f.Rate)
		default:
			return nil, fmt.Errorf("sumo: flow %s has unknown model %q", f.ID, f.Model)
		}
		routes.Flows = append(routes.Flows, x)
	}
	return routes, nil
}

// WriteRoutes 写出路由文件（.rou.xml）：车型分布与车流
func WriteRoutes(w io.Writer, plan *flow.Plan) error {
	routes, err := routesOf(plan)
	if err != nil {
		return err
	}
	return writeXML(w, routes)
}

func writeXML(w io.Writer, v any) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "\t")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("sumo: encode xml: %w", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	return enc.Close()
}
