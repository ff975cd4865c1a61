package config

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
	"gopkg.in/yaml.v2"
)

var (
	ErrNoTopology = errors.New("config: network needs either file or topology")
)

// RuntimeConfig 运行时配置
// 功能：在YAML配置基础上补齐默认值，供各模块只读使用
type RuntimeConfig struct {
	All Config  // 全部配置
	C   Control // 控制配置（已补默认值）
}

// Load 解析YAML配置
// 说明：使用UnmarshalStrict，未知字段直接报错，避免拼写错误被静默忽略
func Load(data []byte) (Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return c, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// NewRuntimeConfig 根据配置初始化运行时配置
// 算法说明：
// 1. 检查路网：路网文件与拓扑至少给出一个
// 2. 填充默认值：步长1秒、阈值上限6、并行数1、种子数1、AV比例0.1..1.0、人数阈值1..5
func NewRuntimeConfig(config Config) (*RuntimeConfig, error) {
	if config.Network.File == "" && config.Network.Topology.Lanes == 0 {
		return nil, ErrNoTopology
	}
	if config.Control.Step.Interval <= 0 {
		config.Control.Step.Interval = 1
	}
	if config.Control.Step.Total <= 0 {
		config.Control.Step.Total = 36000
	}
	if config.Control.MaxPassengers <= 0 {
		config.Control.MaxPassengers = 6
	}
	if config.Sweep.Workers <= 0 {
		config.Sweep.Workers = 1
	}
	if config.Sweep.NumSeeds <= 0 {
		config.Sweep.NumSeeds = 1
	}
	if len(config.Sweep.AvRates) == 0 {
		config.Sweep.AvRates = lo.Map(lo.Range(10), func(i int, _ int) float64 {
			return float64(i+1) / 10
		})
	}
	if len(config.Sweep.MinNumPass) == 0 {
		config.Sweep.MinNumPass = lo.RangeFrom(1, 5)
	}
	if config.Simulator.Backend == "" {
		config.Simulator.Backend = "micro"
	}
	if config.Output.Dir == "" {
		config.Output.Dir = "outputs"
	}
	if config.Output.BatchSize <= 0 {
		config.Output.BatchSize = 1000
	}
	if config.Network.Name == "" {
		config.Network.Name = "network"
	}
	return &RuntimeConfig{All: config, C: config.Control}, nil
}
