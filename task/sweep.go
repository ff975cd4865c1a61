package task

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// RunAll 并行运行一组实验
// 功能：用固定大小的工作池运行实验，单个实验失败（错误或panic）只记录在其结果中，不影响其他实验
// 参数：ctx-上下文，取消后尚未开始的实验直接以ctx.Err()结束，env-共享环境，exps-实验列表，workers-并行数
// 返回：与exps一一对应的结果
func RunAll(ctx context.Context, env *Env, exps []*Experiment, workers int) []Result {
	results := make([]Result, len(exps))
	var g errgroup.Group
	g.SetLimit(max(workers, 1))
	for i, exp := range exps {
		g.Go(func() error {
			results[i] = runOne(ctx, env, exp)
			return nil
		})
	}
	g.Wait()
	failed := lo.CountBy(results, func(r Result) bool { return r.Err != nil })
	log.Infof("sweep complete: %d experiments, %d failed", len(results), failed)
	return results
}

// runOne 运行单个实验并把panic转换为错误
func runOne(ctx context.Context, env *Env, exp *Experiment) (res Result) {
	res = Result{Name: exp.Name(), Dir: exp.Dir(env.RC.All.Output.Dir)}
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
			log.Errorf("experiment %s panicked: %v\n%s", res.Name, r, debug.Stack())
		}
	}()
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	t, err := NewContext(ctx, env, exp)
	if err != nil {
		res.Err = err
		log.Errorf("experiment %s failed to start: %v", res.Name, err)
		return res
	}
	res, err = t.Run(ctx)
	if err != nil {
		log.Errorf("experiment %s failed: %v", res.Name, err)
	}
	return res
}
