package demand

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
)

// 全天实测需求（小时 -> 车辆数）
var (
	dailyVehicles = map[int]int{
		6: 6163, 7: 6450, 8: 7053, 9: 6443, 10: 6287, 11: 5800, 12: 6266,
		13: 5428, 14: 5661, 15: 4644, 16: 4937, 17: 5668, 18: 5184, 19: 5126,
	}
	dailyBuses = map[int]int{
		6: 62, 7: 37, 8: 19, 9: 31, 10: 26, 11: 25, 12: 17,
		13: 31, 14: 44, 15: 30, 16: 24, 17: 28, 18: 25, 19: 16,
	}

	// 案例研究：三股需求分别驶向三个主线终点
	caseStudyVehicles = []map[int]int{
		{6: 3599, 7: 3657, 8: 3472, 9: 2953, 10: 3364, 11: 3119, 12: 3380,
			13: 3571, 14: 2882, 15: 2740, 16: 2293, 17: 2578, 18: 2780, 19: 2963},
		{6: 956, 7: 1604, 8: 2094, 9: 1619, 10: 1553, 11: 1673, 12: 1928,
			13: 2415, 14: 2713, 15: 3047, 16: 3051, 17: 2855, 18: 2634, 19: 2451},
		{6: 478, 7: 802, 8: 1047, 9: 809, 10: 776, 11: 836, 12: 964,
			13: 1207, 14: 1356, 15: 1523, 16: 1526, 17: 1427, 18: 1317, 19: 1226},
	}
	caseStudyBuses = []map[int]int{
		{6: 9, 7: 5, 8: 1, 9: 4, 10: 4, 11: 3, 12: 6, 13: 10, 14: 16, 15: 7, 16: 2, 17: 5, 18: 2, 19: 5},
		{6: 10, 7: 15, 8: 17, 9: 9, 10: 10, 11: 8, 12: 1, 13: 1, 14: 2, 15: 1, 16: 6, 17: 2, 18: 5, 19: 4},
		{6: 5, 7: 8, 8: 8, 9: 5, 10: 5, 11: 4, 12: 1, 13: 1, 14: 3, 15: 2, 16: 9, 17: 3, 18: 8, 19: 6},
	}
)

var ErrBadFactor = errors.New("demand: scale factor must be positive")

func scaled(m map[int]int, factor float64) map[int]int {
	return lo.MapValues(m, func(v int, _ int) int {
		return int(float64(v) / factor)
	})
}

func newDaily(prefix string, factor float64, hourLength float64) (*Profile, error) {
	if factor <= 0 {
		return nil, ErrBadFactor
	}
	return newProfile(
		fmt.Sprintf("%s_%s", prefix, formatFloat(factor)), 1, hourLength,
		Stream{Vehicles: scaled(dailyVehicles, factor), Buses: scaled(dailyBuses, factor)},
	)
}

// NewDaily 全天需求，车辆数除以factor，每小时压缩为1800秒
func NewDaily(factor float64) (*Profile, error) {
	return newDaily("Daily", factor, 1800)
}

// NewDailyPaper 与NewDaily相同，仅名称不同（论文实验使用）
func NewDailyPaper(factor float64) (*Profile, error) {
	return newDaily("DailyPaper", factor, 1800)
}

// NewDaily12 全天需求，每小时3600秒
func NewDaily12(factor float64) (*Profile, error) {
	return newDaily("Daily12", factor, 3600)
}

// NewDailyCaseStudy 案例研究需求，三股需求对应三个终点
func NewDailyCaseStudy() (*Profile, error) {
	streams := make([]Stream, len(caseStudyVehicles))
	for i := range streams {
		streams[i] = Stream{
			Vehicles: lo.Assign(caseStudyVehicles[i]),
			Buses:    lo.Assign(caseStudyBuses[i]),
		}
	}
	return newProfile("DailyCaseStudy", 1, 3600, streams...)
}

// NewToy 单小时需求，公交数为车辆数的1%
func NewToy(amount int) (*Profile, error) {
	return newProfile(fmt.Sprintf("Toy_%d", amount), 1, 3600, singleHour(amount))
}

// NewToyUniform 单小时需求，自动驾驶车辆载客人数1..5均匀
func NewToyUniform(amount int) (*Profile, error) {
	p, err := newProfile(fmt.Sprintf("ToyUniform_%d", amount), 1, 3600, singleHour(amount))
	if err != nil {
		return nil, err
	}
	p.PassAV = UniformPass()
	return p, nil
}

// NewToyFixed 固定规模的单小时需求（Toy6000等）
func NewToyFixed(amount int) (*Profile, error) {
	return newProfile(fmt.Sprintf("Toy%d", amount), 1, 3600, singleHour(amount))
}

// NewPassDemand 以载客总人数给出的单小时需求
// 参数：amount-总人数，avPassFactor-自动驾驶车辆单人出行概率缩放
// 说明：车辆数在ForAvRate中确定
func NewPassDemand(amount int, avPassFactor float64) (*Profile, error) {
	p, err := newProfile(
		fmt.Sprintf("PassDemand_AvPassFactor_%s_%d", formatFloat(avPassFactor), amount),
		avPassFactor, 3600, singleHour(amount),
	)
	if err != nil {
		return nil, err
	}
	p.passAmount = amount
	return p, nil
}

// NewPassDemandUniform 以载客总人数给出，自动驾驶车辆载客人数均匀
func NewPassDemandUniform(amount int) (*Profile, error) {
	p, err := newProfile(fmt.Sprintf("PassDemandUniform_%d", amount), 1, 3600, singleHour(amount))
	if err != nil {
		return nil, err
	}
	p.PassAV = UniformPass()
	p.passAmount = amount
	return p, nil
}
