package config

// MongoPath 指定MongoDB中的一个集合
type MongoPath struct {
	DB  string `yaml:"db"`  // 数据库名
	Col string `yaml:"col"` // 集合名
}

func (p MongoPath) GetDb() string {
	return p.DB
}

func (p MongoPath) GetColl() string {
	return p.Col
}

// GetCachePath 对应的本地文件名{db}.{col}
func (p MongoPath) GetCachePath() string {
	return p.DB + "." + p.Col
}

// Output 实验输出配置
type Output struct {
	Dir        string    `yaml:"dir"`                   // 输出根目录，每个实验在其下拥有独占子目录
	MongoURI   string    `yaml:"mongo_uri,omitempty"`   // 逐步记录写入MongoDB（为空则不写）
	Mongo      MongoPath `yaml:"mongo,omitempty"`       // 逐步记录所在集合
	BatchSize  int       `yaml:"batch_size,omitempty"`  // MongoDB批量写入大小
	DumpPlan   bool      `yaml:"dump_plan,omitempty"`   // 是否保存车流方案快照（msgpack）
	WriteFiles bool      `yaml:"write_files,omitempty"` // 是否写出SUMO配置文件
}

// Topology 路网拓扑（可由路网文件解析得到，也可直接给出）
type Topology struct {
	Ramps           int      `yaml:"ramps"`                      // 进出匝道对数
	Lanes           int      `yaml:"lanes"`                      // 入口路段车道数
	Origin          string   `yaml:"origin"`                     // 主线起点路口
	Destinations    []string `yaml:"destinations"`               // 主线终点路口
	EntryEdge       string   `yaml:"entry_edge"`                 // 入口路段（资格判定发生的路段）
	RestrictedLanes []string `yaml:"restricted_lanes,omitempty"` // 限制车道ID
	RestrictedIndex []int    `yaml:"restricted_index,omitempty"` // 入口路段中限制车道的下标
	Length          float64  `yaml:"length,omitempty"`           // 主线长度（米），仅内置仿真器使用
}

// Network 路网配置
type Network struct {
	Name     string   `yaml:"name"`               // 路网名，用于输出路径
	File     string   `yaml:"file,omitempty"`     // SUMO路网文件，非空时从中解析拓扑
	Corridor bool     `yaml:"corridor,omitempty"` // 无匝道的走廊路网（toy）
	Topology Topology `yaml:"topology,omitempty"`
}

// Micro 内置仿真器参数
type Micro struct {
	FreeSpeed  float64 `yaml:"free_speed,omitempty"`  // 自由流速度（米/秒）
	JamDensity float64 `yaml:"jam_density,omitempty"` // 阻塞密度（辆/米/车道）
	MaxSteps   int32   `yaml:"max_steps,omitempty"`   // 最大步数
}

// Simulator 仿真器配置
type Simulator struct {
	Backend  string   `yaml:"backend"`             // micro | remote | sumo
	SumoHome string   `yaml:"sumo_home,omitempty"` // 为空则读取环境变量SUMO_HOME
	GUI      bool     `yaml:"gui,omitempty"`
	Bridge   []string `yaml:"bridge,omitempty"` // sumo后端：启动桥接进程的命令，{cfg}/{addr}/{binary}会被替换
	Addr     string   `yaml:"addr,omitempty"`   // remote后端：已运行的远程仿真服务地址，只服务单个实验
	Micro    Micro    `yaml:"micro,omitempty"`
}

// ControlStep 仿真时间范围与步长
type ControlStep struct {
	Start    int32   `yaml:"start"`    // 开始步数
	Total    int32   `yaml:"total"`    // 总步数上限（仿真器可能更早结束）
	Interval float64 `yaml:"interval"` // 每步的时间间隔（秒）
}

// Control 控制器公共配置
type Control struct {
	Step          ControlStep `yaml:"step"`
	MaxPassengers int         `yaml:"max_passengers,omitempty"` // 阈值上限
	GateEdge      string      `yaml:"gate_edge,omitempty"`      // 资格判定路段，为空取入口路段，"all"表示全部车辆
}

// Sweep 参数扫描配置
type Sweep struct {
	Workers    int       `yaml:"workers,omitempty"`     // 并行实验数
	Seed       uint64    `yaml:"seed"`                  // 生成实验种子列表的主种子
	NumSeeds   int       `yaml:"num_seeds,omitempty"`   // 每组参数重复实验次数
	Demands    []string  `yaml:"demands,omitempty"`     // 需求名，为空则全部
	Policies   []string  `yaml:"policies,omitempty"`    // 策略名，为空则全部
	AvRates    []float64 `yaml:"av_rates,omitempty"`    // 为空则0.1..1.0
	MinNumPass []int     `yaml:"min_num_pass,omitempty"` // 为空则1..5
}

// Config YAML配置文件的根结构
type Config struct {
	Network   Network   `yaml:"network"`
	Simulator Simulator `yaml:"simulator"`
	Control   Control   `yaml:"control"`
	Sweep     Sweep     `yaml:"sweep"`
	Output    Output    `yaml:"output"`
}
