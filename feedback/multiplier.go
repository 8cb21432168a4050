package feedback

import "math"

// 倍率范围与评分调整系数
const (
	MinMultiplier = 0.1
	MaxMultiplier = 1.5
	PenaltyFactor = 0.8
	BoostFactor   = 1.05
)

// 评分取值
const (
	RatingDown = -1
	RatingUp   = 1
)

// ValidRating 报告评分是否为 -1 或 +1
func ValidRating(rating int) bool {
	return rating == RatingDown || rating == RatingUp
}

// ClampMultiplier 将倍率截断到 [MinMultiplier, MaxMultiplier]
func ClampMultiplier(m float64) float64 {
	if math.IsNaN(m) {
		return MinMultiplier
	}
	return math.Min(MaxMultiplier, math.Max(MinMultiplier, m))
}

// AdjustMultiplier 按评分调整倍率：-1 乘 0.8，+1 乘 1.05，结果截断
func AdjustMultiplier(current float64, rating int) float64 {
	factor := BoostFactor
	if rating == RatingDown {
		factor = PenaltyFactor
	}
	return ClampMultiplier(current * factor)
}
