package task

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/tsinghua-fib-lab/ptlsim/entity"
	"github.com/tsinghua-fib-lab/ptlsim/flow"
	"github.com/tsinghua-fib-lab/ptlsim/simulator/micro"
	"github.com/tsinghua-fib-lab/ptlsim/simulator/remote"
	"github.com/tsinghua-fib-lab/ptlsim/sumo"
	"github.com/tsinghua-fib-lab/ptlsim/utils/config"
)

var (
	rpcTimeout    = flag.Duration("remote.timeout", 30*time.Second, "远程仿真器查询超时")
	readyRetries  = flag.Int("remote.ready_retries", 100, "等待远程仿真器就绪的重试次数")
	readyInterval = flag.Duration("remote.ready_interval", 200*time.Millisecond, "等待远程仿真器就绪的重试间隔")
)

var (
	ErrUnknownBackend = errors.New("task: unknown simulator backend")
	ErrRemoteShared   = errors.New("task: remote backend serves exactly one experiment")
	ErrPlanMismatch   = errors.New("task: remote simulator runs a different plan")
)

// 仿真器后端
const (
	BackendMicro  = "micro"
	BackendRemote = "remote"
	BackendSumo   = "sumo"
)

const (
	PlanFile = "plan.msgpack" // 车流方案快照文件名
	SumoDir  = "sumo"         // 实验目录下SUMO配置文件子目录
)

// Opener 为一次实验创建仿真器
// 参数：ctx-实验上下文，exp-实验，plan-车流方案，dir-实验输出目录
type Opener func(ctx context.Context, exp *Experiment, plan *flow.Plan, dir string) (entity.ISimulator, error)

// NewOpener 根据配置选择仿真器后端
// 说明：sumo后端在启动时检查SUMO可执行文件，找不到时立即返回错误
func NewOpener(rc *config.RuntimeConfig) (Opener, error) {
	s := rc.All.Simulator
	switch s.Backend {
	case BackendMicro:
		return func(_ context.Context, exp *Experiment, plan *flow.Plan, dir string) (entity.ISimulator, error) {
			if rc.All.Output.WriteFiles {
				if _, err := writeSumoFiles(rc, exp, plan, dir); err != nil {
					return nil, err
				}
			}
			return micro.New(plan, micro.Options{
				Topology: exp.Topology,
				Micro:    s.Micro,
				DT:       rc.C.Step.Interval,
				Seed:     exp.Seed,
			})
		}, nil
	case BackendRemote:
		if s.Addr == "" {
			return nil, fmt.Errorf("task: remote backend needs simulator.addr")
		}
		var claimed atomic.Bool
		return func(_ context.Context, _ *Experiment, plan *flow.Plan, _ string) (entity.ISimulator, error) {
			if !claimed.CompareAndSwap(false, true) {
				return nil, fmt.Errorf("%w: %s already attached", ErrRemoteShared, s.Addr)
			}
			return attach(s.Addr, plan)
		}, nil
	case BackendSumo:
		binary, err := sumo.Locate(s.SumoHome, s.GUI)
		if err != nil {
			return nil, err
		}
		if len(s.Bridge) == 0 {
			return nil, sumo.ErrEmptyBridge
		}
		return func(ctx context.Context, exp *Experiment, plan *flow.Plan, dir string) (entity.ISimulator, error) {
			return openSumo(ctx, rc, binary, exp, plan, dir)
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, s.Backend)
	}
}

// CheckSweep 检查实验列表与仿真器后端是否相容
// 说明：remote后端连接的是外部已运行的单个仿真器，只能服务一个实验
func CheckSweep(rc *config.RuntimeConfig, exps []*Experiment) error {
	if rc.All.Simulator.Backend == BackendRemote && len(exps) != 1 {
		return fmt.Errorf("%w: sweep has %d experiments", ErrRemoteShared, len(exps))
	}
	return nil
}

// PlanInfo 车流方案在远程仿真器协议中的标识
func PlanInfo(plan *flow.Plan) remote.Info {
	return remote.Info{Demand: plan.Demand, AvRate: plan.AvRate, Seed: plan.Seed}
}

// attached 连接到外部已运行的仿真器，Close不关闭对方
type attached struct {
	*remote.Client
	addr string
}

func (a *attached) Close() error {
	log.Debugf("detached from remote simulator %s", a.addr)
	return nil
}

// attach 连接外部仿真器并确认其运行的是本实验的车流方案
func attach(addr string, plan *flow.Plan) (entity.ISimulator, error) {
	if err := remote.WaitForServerReady("http://"+addr, *readyRetries, *readyInterval); err != nil {
		return nil, err
	}
	c := remote.Dial(addr, *rpcTimeout)
	info, err := c.Info()
	if err != nil {
		return nil, err
	}
	if want := PlanInfo(plan); info != want {
		return nil, fmt.Errorf("%w: served %+v, experiment %+v", ErrPlanMismatch, info, want)
	}
	return &attached{Client: c, addr: addr}, nil
}

// bridged 经桥接进程驱动的SUMO仿真
type bridged struct {
	*remote.Client
	bridge *sumo.Bridge
}

func (b *bridged) Close() error {
	return errors.Join(b.Client.Close(), b.bridge.Stop())
}

// openSumo 写出SUMO配置文件，启动桥接进程并连接
func openSumo(ctx context.Context, rc *config.RuntimeConfig, binary string, exp *Experiment, plan *flow.Plan, dir string) (entity.ISimulator, error) {
	files, err := writeSumoFiles(rc, exp, plan, dir)
	if err != nil {
		return nil, err
	}
	// 每个实验的桥接进程监听各自的空闲端口
	addr, err := freeAddr()
	if err != nil {
		return nil, err
	}
	b, err := sumo.StartBridge(ctx, rc.All.Simulator.Bridge, binary, files.Config, addr)
	if err != nil {
		return nil, err
	}
	if err := remote.WaitForServerReady("http://"+addr, *readyRetries, *readyInterval); err != nil {
		return nil, errors.Join(err, b.Stop())
	}
	return &bridged{Client: remote.Dial(addr, *rpcTimeout), bridge: b}, nil
}

// writeSumoFiles 在实验目录的sumo子目录下写出SUMO配置文件
func writeSumoFiles(rc *config.RuntimeConfig, exp *Experiment, plan *flow.Plan, dir string) (sumo.Files, error) {
	files := sumo.NewFiles(rc.All.Network.File, filepath.Join(dir, SumoDir), dir, exp.Policy.Name(), exp.AvRate)
	if err := sumo.WriteExperiment(files, plan); err != nil {
		return sumo.Files{}, err
	}
	return files, nil
}

// freeAddr 本机上一个空闲端口
func freeAddr() (string, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer lis.Close()
	return lis.Addr().String(), nil
}

// dumpPlan 保存车流方案快照
func dumpPlan(plan *flow.Plan, dir string) (string, error) {
	path := filepath.Join(dir, PlanFile)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := plan.Encode(f); err != nil {
		f.Close()
		return "", fmt.Errorf("dump plan: %w", err)
	}
	return path, f.Close()
}

// LoadPlan 读取车流方案快照
func LoadPlan(path string) (*flow.Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return flow.DecodePlan(f)
}
