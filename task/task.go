package task

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tsinghua-fib-lab/ptlsim/access"
	"github.com/tsinghua-fib-lab/ptlsim/clock"
	"github.com/tsinghua-fib-lab/ptlsim/entity"
	"github.com/tsinghua-fib-lab/ptlsim/flow"
	"github.com/tsinghua-fib-lab/ptlsim/recorder"
	"github.com/tsinghua-fib-lab/ptlsim/simulator"
	"github.com/tsinghua-fib-lab/ptlsim/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 600, "心跳日志间隔步数")
)

// 逐步记录的键
const (
	KeyT             = "t"
	KeyThreshold     = "threshold"
	KeyNumVehs       = entity.FeatureNumVehs
	KeyNumVehsPTL    = entity.FeatureNumVehsPTL
	KeySpeed         = entity.FeatureSpeed
	KeyPTLSpeed      = entity.FeaturePTLSpeed
	KeyNumAllowedPTL = "num_allowed_ptl"
	KeyNumPassPTL    = "num_pass_ptl"
	KeyGranted       = "granted"
)

// RecordKeys 逐步记录的全部键（按列顺序）
var RecordKeys = []string{
	KeyT, KeyThreshold, KeyNumVehs, KeyNumVehsPTL, KeySpeed, KeyPTLSpeed, KeyNumAllowedPTL, KeyNumPassPTL, KeyGranted,
}

// StepFile 逐步记录的CSV文件名
const StepFile = "steps.csv"

// Env 所有实验共享的只读环境
type Env struct {
	RC    *config.RuntimeConfig
	Open  Opener
	Mongo *mongo.Client // 为空则不写MongoDB
}

// Result 实验结果摘要
type Result struct {
	ID             string
	Name           string
	Dir            string
	Steps          int32
	Granted        int
	FinalThreshold int
	MeanSpeed      float64 // 各控制步在网平均速度的均值
	Err            error
}

// Context 实验上下文
// 功能：持有一次实验的时钟、仿真器、控制器与记录器
// 说明：实验之间不共享任何可变状态
type Context struct {
	id  uuid.UUID
	exp *Experiment
	dir string
	// 关闭指令
	closed atomic.Bool

	clock      *clock.Clock
	plan       *flow.Plan
	sim        entity.ISimulator
	gate       *simulator.Gate
	controller *access.Controller
	recorder   entity.IRecorder
	restricted []string

	speedSum float64
}

// NewContext 创建实验上下文
// 功能：生成车流方案，启动仿真器并组装控制器与记录器
// 参数：ctx-实验上下文，env-共享环境，exp-实验
// 返回：实验上下文
// 算法说明：
// 1. 分配运行ID与独占输出目录
// 2. 生成车流方案，按配置保存快照
// 3. 由后端创建仿真器，确定限制车道与资格判定路段
// 4. 创建控制器与记录器（CSV，配置MongoDB时同时写入）
func NewContext(ctx context.Context, env *Env, exp *Experiment) (*Context, error) {
	rc := env.RC
	t := &Context{
		id:    uuid.New(),
		exp:   exp,
		dir:   exp.Dir(rc.All.Output.Dir),
		clock: clock.New(rc.C.Step),
	}
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return nil, err
	}
	plan, err := flow.NewPlan(exp.Demand, exp.Topology, exp.PlanOptions())
	if err != nil {
		return nil, err
	}
	t.plan = plan
	if rc.All.Output.DumpPlan {
		if _, err := dumpPlan(plan, t.dir); err != nil {
			return nil, err
		}
	}
	if t.sim, err = env.Open(ctx, exp, plan, t.dir); err != nil {
		return nil, fmt.Errorf("open simulator: %w", err)
	}
	if err := t.assemble(env); err != nil {
		return nil, errors.Join(err, t.sim.Close())
	}
	log.Infof("experiment %s (%s) ready in %s", exp.Name(), t.id, t.dir)
	return t, nil
}

func (t *Context) assemble(env *Env) error {
	t.restricted = t.exp.Topology.RestrictedLanes
	if r, ok := t.sim.(interface{ RestrictedLanes() []string }); ok {
		t.restricted = r.RestrictedLanes()
	}
	edge := env.RC.C.GateEdge
	if edge == "" {
		edge = t.exp.Topology.EntryEdge
	}
	if edge == "" {
		edge = simulator.EdgeAll
	}
	t.gate = simulator.NewGate(t.sim, edge)
	var err error
	if t.controller, err = access.New(t.exp.Policy, t.gate, t.sim, t.restricted); err != nil {
		return err
	}
	t.recorder, err = t.newRecorder(env)
	return err
}

func (t *Context) newRecorder(env *Env) (entity.IRecorder, error) {
	csv, err := recorder.NewCSV(filepath.Join(t.dir, StepFile), RecordKeys)
	if err != nil {
		return nil, err
	}
	if env.Mongo == nil {
		return csv, nil
	}
	out := env.RC.All.Output
	tags := bson.D{
		{Key: "run_id", Value: t.id.String()},
		{Key: "network", Value: t.exp.Network},
		{Key: "demand", Value: t.exp.Demand.Name},
		{Key: "av_rate", Value: t.exp.AvRate},
		{Key: "seed", Value: int64(t.exp.Seed)},
		{Key: "policy", Value: t.exp.Policy.Name()},
	}
	m, err := recorder.NewMongo(env.Mongo, out.Mongo, RecordKeys, tags, out.BatchSize)
	if err != nil {
		return nil, errors.Join(err, csv.Close())
	}
	return recorder.NewMulti(csv, m)
}

// ID 运行ID
func (t *Context) ID() string {
	return t.id.String()
}

// Controller 实验使用的控制器
func (t *Context) Controller() *access.Controller {
	return t.controller
}

// Run 运行实验直到仿真结束或到达结束步
// 算法说明：每个控制步依次执行
// 1. 采样仿真状态
// 2. 控制器处理观测并推送资格
// 3. 记录本步结果
// 4. 推进仿真器与时钟
// 说明：ctx取消时在下一个控制步前退出并返回ctx.Err()；无论成功与否都会关闭仿真器与记录器
func (t *Context) Run(ctx context.Context) (res Result, err error) {
	res = Result{ID: t.id.String(), Name: t.exp.Name(), Dir: t.dir}
	defer func() {
		res.Steps = t.clock.Tick()
		res.Granted = t.gate.Granted()
		res.FinalThreshold = t.controller.State().Threshold
		if res.Steps > 0 {
			res.MeanSpeed = t.speedSum / float64(res.Steps)
		}
		err = errors.Join(err, t.Close())
		res.Err = err
	}()
	for !t.clock.Finished() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		done, err := t.sim.Finished()
		if err != nil {
			return res, err
		}
		if done {
			break
		}
		if err := t.step(ctx); err != nil {
			return res, fmt.Errorf("step %d: %w", t.clock.InternalStep, err)
		}
		if t.clock.Tick()%int32(*heartBeatInterval) == 0 {
			log.Infof("%s STEP: %d(%v) threshold=%d", t.exp.Name(), t.clock.InternalStep, t.clock, t.controller.State().Threshold)
		}
	}
	log.Infof("experiment %s complete after %d steps", t.exp.Name(), t.clock.Tick())
	return res, nil
}

func (t *Context) step(ctx context.Context) error {
	obs, err := simulator.Sample(t.sim, t.restricted)
	if err != nil {
		return err
	}
	if err := t.controller.HandleStep(obs); err != nil {
		return err
	}
	if err := t.record(obs); err != nil {
		return err
	}
	t.speedSum += obs.Speed
	if err := t.sim.Step(ctx); err != nil {
		return err
	}
	t.clock.Step()
	return nil
}

func (t *Context) record(obs entity.Observation) error {
	count, err := simulator.CountByClass(t.sim, obs.VehIDsInPTL)
	if err != nil {
		return err
	}
	pass, err := simulator.PassengersOn(t.sim, obs.VehIDsInPTL)
	if err != nil {
		return err
	}
	return t.recorder.Log(map[string]float64{
		KeyT:             obs.T,
		KeyThreshold:     float64(t.controller.State().Threshold),
		KeyNumVehs:       float64(obs.NumVehs),
		KeyNumVehsPTL:    float64(obs.NumVehsPTL),
		KeySpeed:         obs.Speed,
		KeyPTLSpeed:      obs.PTLSpeed,
		KeyNumAllowedPTL: float64(count.Allowed),
		KeyNumPassPTL:    float64(pass),
		KeyGranted:       float64(t.gate.Granted()),
	})
}

// Close 关闭仿真器与记录器，可重复调用
func (t *Context) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return errors.Join(t.sim.Close(), t.recorder.Close())
}
