package main

import (
	"context"
	"encoding/base64"
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"git.fiblab.net/general/common/v2/mongoutil"
	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/ptlsim/access"
	"github.com/tsinghua-fib-lab/ptlsim/demand"
	"github.com/tsinghua-fib-lab/ptlsim/simulator/micro"
	"github.com/tsinghua-fib-lab/ptlsim/simulator/remote"
	"github.com/tsinghua-fib-lab/ptlsim/sumo"
	"github.com/tsinghua-fib-lab/ptlsim/task"
	"github.com/tsinghua-fib-lab/ptlsim/utils/config"
)

var (
	// 配置文件路径
	configPath = flag.String("config", "", "config file path")
	// 配置文件Base64编码后的数据
	configData = flag.String("config-data", "", "config file base64 encoded data")

	// 参数扫描筛选，逗号分隔，为空则使用配置
	workers  = flag.Int("workers", 0, "number of parallel experiments (0 means sweep.workers in config)")
	demands  = flag.String("demand", "", "comma separated demand names, e.g. DemandToy,Daily")
	policies = flag.String("policy", "", "comma separated policy names, e.g. nothing,plus,windowed")
	avRates  = flag.String("av", "", "comma separated AV rates, e.g. 0.1,0.5")

	// 服务模式：以内置仿真器运行车流方案快照，并以远程仿真器协议对外提供服务
	serveAddr = flag.String("serve", "", "serve a micro simulator at this address instead of running the sweep")
	planPath  = flag.String("plan", "", "plan snapshot (msgpack) for -serve")

	// log
	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}
	logLevel = flag.String("log.level", "info", "日志级别（可选项：trace debug info warn error critical off）")

	log = logrus.WithField("module", "ptlsim")
)

func splitList(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(x string, _ int) string {
		return strings.TrimSpace(x)
	}))
}

func main() {
	flag.Parse()
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	// log: 运行时才修改
	if level, ok := logLevels[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		log.Panicf("log.level must be one of %v", logLevels)
	}
	// 获取配置
	var file []byte
	var err error
	if *configPath != "" {
		file, err = os.ReadFile(*configPath)
		if err != nil {
			log.Panicf("config file load err: %v", err)
		}
	} else if *configData != "" {
		file, err = base64.StdEncoding.DecodeString(*configData)
		if err != nil {
			log.Panicf("config data load err: %v", err)
		}
	} else {
		log.Panic("config file or config data must be specified")
	}
	c, err := config.Load(file)
	if err != nil {
		log.Panicf("config file load err: %v", err)
	}
	rc, err := config.NewRuntimeConfig(c)
	if err != nil {
		log.Panicf("config err: %v", err)
	}
	log.Infof("%+v", rc.All)

	// 路网拓扑：路网文件优先
	topo := rc.All.Network.Topology
	if rc.All.Network.File != "" {
		if topo, err = sumo.ParseNetFile(rc.All.Network.File); err != nil {
			log.Panicf("net file load err: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serveAddr != "" {
		serve(ctx, rc, topo)
		return
	}

	filter := task.Filter{
		Demands:  splitList(*demands),
		Policies: splitList(*policies),
		AvRates: lo.Map(splitList(*avRates), func(s string, _ int) float64 {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil || v < 0 || v > 1 {
				log.Panicf("bad AV rate %q", s)
			}
			return v
		}),
	}
	exps, err := task.Enumerate(rc, topo, demand.DefaultRegistry(), access.DefaultRegistry(), filter)
	if err != nil {
		log.Panicf("sweep err: %v", err)
	}
	if err := task.CheckSweep(rc, exps); err != nil {
		log.Panicf("sweep err: %v", err)
	}
	open, err := task.NewOpener(rc)
	if err != nil {
		log.Panicf("simulator err: %v", err)
	}
	env := &task.Env{RC: rc, Open: open}
	if uri := rc.All.Output.MongoURI; uri != "" {
		env.Mongo = mongoutil.NewClient(uri)
		defer env.Mongo.Disconnect(context.Background())
	}
	n := *workers
	if n <= 0 {
		n = rc.All.Sweep.Workers
	}
	log.Infof("running %d experiments with %d workers", len(exps), n)
	results := task.RunAll(ctx, env, exps, n)
	failed := lo.Filter(results, func(r task.Result, _ int) bool { return r.Err != nil })
	for _, r := range failed {
		log.Errorf("%s: %v", r.Name, r.Err)
	}
	if len(failed) > 0 {
		stop()
		os.Exit(1)
	}
}

// serve 服务模式
func serve(ctx context.Context, rc *config.RuntimeConfig, topo config.Topology) {
	if *planPath == "" {
		log.Panic("-plan must be specified with -serve")
	}
	plan, err := task.LoadPlan(*planPath)
	if err != nil {
		log.Panicf("plan load err: %v", err)
	}
	sim, err := micro.New(plan, micro.Options{
		Topology: topo,
		Micro:    rc.All.Simulator.Micro,
		DT:       rc.C.Step.Interval,
		Seed:     plan.Seed,
	})
	if err != nil {
		log.Panicf("simulator err: %v", err)
	}
	lis, err := net.Listen("tcp", *serveAddr)
	if err != nil {
		log.Panicf("listen err: %v", err)
	}
	if err := remote.Serve(ctx, lis, sim, task.PlanInfo(plan)); err != nil {
		log.Panicf("serve err: %v", err)
	}
}
