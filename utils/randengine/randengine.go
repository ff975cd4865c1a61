// 随机数引擎，包装了golang.org/x/exp/rand，提供了一些常用的随机数生成方法
// 每个实验持有独立的Engine，不存在全局共享的随机状态
package randengine

import (
	"flag"
	"math"

	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset") // 种子偏移量，用于整体平移所有实验的随机序列
)

// Engine 随机数引擎
// 功能：提供可复现的随机数生成，支持分流、离散分布、指数分布等
// 说明：不加锁，单个实验的主循环是单线程的
type Engine struct {
	*rand.Rand
}

// New 创建随机数引擎
// 参数：seed-实验种子
// 说明：相同的seed（与种子偏移量）产生完全相同的序列
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// Uniform 生成[low, high)内的均匀分布随机数
func (e *Engine) Uniform(low, high float64) float64 {
	return low + (high-low)*e.Float64()
}

// UniformN 依次生成n个[low, high)内的均匀分布随机数
// 功能：一次性抽取一组分流概率
// 说明：顺序抽取，同一引擎状态下结果确定
func (e *Engine) UniformN(low, high float64, n int) []float64 {
	res := make([]float64, n)
	for i := range res {
		res[i] = e.Uniform(low, high)
	}
	return res
}

// Exponential 生成参数为rate的指数分布随机数（均值1/rate）
// rate<=0时返回+Inf，表示事件永不发生
func (e *Engine) Exponential(rate float64) float64 {
	if rate <= 0 {
		return math.Inf(1)
	}
	return e.ExpFloat64() / rate
}

// DiscreteDistribution 按给定权重生成下标（非线程安全）
// 功能：根据权重数组生成离散分布的随机数
// 参数：weight-权重数组，不要求归一化
// 返回：随机生成的下标（0到len(weight)-1）
// 算法说明：在[0, 总权重)内取随机数，累积权重首次超过随机数的下标即为结果
func (e *Engine) DiscreteDistribution(weight []float64) int32 {
	random := .0
	for _, w := range weight {
		random += w
	}
	random *= e.Float64()
	sum := 0.
	for i, w := range weight {
		sum += w
		if sum > random {
			return int32(i)
		}
	}
	log.Panicf("randengine: DiscreteDistribution: sum: %f random: %f", sum, random)
	return -1
}
