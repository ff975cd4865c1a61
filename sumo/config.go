package sumo

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tsinghua-fib-lab/ptlsim/flow"
)

// LaneDataPeriod 车道统计输出周期（秒）
const LaneDataPeriod = 60

type xmlAdditional struct {
	XMLName  xml.Name    `xml:"additional"`
	LaneData xmlLaneData `xml:"laneData"`
}

type xmlLaneData struct {
	ID   string `xml:"id,attr"`
	Freq int    `xml:"freq,attr"`
	File string `xml:"file,attr"`
}

type xmlValue struct {
	Value string `xml:"value,attr"`
}

type xmlConfiguration struct {
	XMLName xml.Name `xml:"configuration"`
	Input   struct {
		NetFile         xmlValue `xml:"net-file"`
		RouteFiles      xmlValue `xml:"route-files"`
		AdditionalFiles xmlValue `xml:"additional-files"`
	} `xml:"input"`
	Output struct {
		TripInfo xmlValue `xml:"tripinfo-output"`
	} `xml:"output"`
	Random struct {
		Seed xmlValue `xml:"seed"`
	} `xml:"random_number"`
}

// WriteAdditional 写出附加文件（.add.xml），按period秒输出车道统计到lanesFile
func WriteAdditional(w io.Writer, lanesFile string, period int) error {
	return writeXML(w, &xmlAdditional{
		LaneData: xmlLaneData{ID: "lane_data", Freq: period, File: lanesFile},
	})
}

// Files 一次实验的SUMO输入输出文件
type Files struct {
	Net        string // 路网文件
	Routes     string // 路由文件
	Additional string // 附加文件
	Config     string // .sumocfg
	TripInfo   string // 行程输出
	Lanes      string // 车道统计输出
}

// WriteConfig 写出仿真配置文件（.sumocfg）
func WriteConfig(w io.Writer, files Files, seed uint64) error {
	var c xmlConfiguration
	c.Input.NetFile.Value = files.Net
	c.Input.RouteFiles.Value = files.Routes
	c.Input.AdditionalFiles.Value = files.Additional
	c.Output.TripInfo.Value = files.TripInfo
	c.Random.Seed.Value = fmt.Sprint(seed)
	return writeXML(w, &c)
}

// NewFiles 实验文件路径
// 参数：netFile-路网文件，configDir-配置文件目录，outputDir-输出目录，policy-策略名，avRate-AV比例
func NewFiles(netFile, configDir, outputDir, policy string, avRate float64) Files {
	prefix := filepath.Join(configDir, "av_"+formatFloat(avRate))
	return Files{
		Net:        netFile,
		Routes:     prefix + ".rou.xml",
		Additional: prefix + ".add.xml",
		Config:     prefix + ".sumocfg",
		TripInfo:   filepath.Join(outputDir, policy+"_tripinfo.xml"),
		Lanes:      filepath.Join(outputDir, policy+"_lanes.xml"),
	}
}

// WriteExperiment 写出一次实验的全部SUMO配置文件
func WriteExperiment(files Files, plan *flow.Plan) error {
	for _, dir := range []string{filepath.Dir(files.Config), filepath.Dir(files.TripInfo)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("sumo: %w", err)
		}
	}
	writes := []struct {
		path  string
		write func(io.Writer) error
	}{
		{files.Routes, func(w io.Writer) error { return WriteRoutes(w, plan) }},
		{files.Additional, func(w io.Writer) error { return WriteAdditional(w, files.Lanes, LaneDataPeriod) }},
		{files.Config, func(w io.Writer) error { return WriteConfig(w, files, plan.Seed) }},
	}
	for _, x := range writes {
		if err := writeFile(x.path, x.write); err != nil {
			return err
		}
	}
	log.Debugf("sumo files written to %s", filepath.Dir(files.Config))
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sumo: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("sumo: write %s: %w", path, err)
	}
	return f.Close()
}
