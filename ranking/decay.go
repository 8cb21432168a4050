package ranking

import (
	"math"
	"sort"

	"github.com/BaSui01/agora/store"
)

const (
	// DecayPerEntry 每条新的非人格条目扣减的衰减比例
	DecayPerEntry = 0.15
	// EligibilityThreshold 有效置信度必须严格大于该值才可展示/触发
	EligibilityThreshold = 50
	// MaxRanked 获得排名序号的人格数量
	MaxRanked = 3
)

// DecayFactor = max(0, 1 − 0.15 × staleness)
func DecayFactor(staleness int) float64 {
	if staleness < 0 {
		staleness = 0
	}
	return math.Max(0, 1-DecayPerEntry*float64(staleness))
}

// EffectiveConfidence = round(raw × decay × multiplier)，.5 向偶数舍入。
func EffectiveConfidence(raw, staleness int, multiplier float64) int {
	if raw <= 0 {
		return 0
	}
	return int(math.RoundToEven(float64(raw) * DecayFactor(staleness) * multiplier))
}

// IsEligible 报告有效置信度是否达到展示/触发门槛
func IsEligible(effective int) bool {
	return effective > EligibilityThreshold
}

// Staleness 统计 entries 中非人格发言的条目数。
// 发言人与任一人格同名，或 origin 为 persona:<id> 的条目都不计入。
func Staleness(entries []store.Entry, personaNames map[string]struct{}) int {
	n := 0
	for _, e := range entries {
		if e.IsPersonaOrigin() {
			continue
		}
		if _, ok := personaNames[e.Speaker]; ok {
			continue
		}
		n++
	}
	return n
}

// Rank 按有效置信度降序稳定排序，前 MaxRanked 个依次获得 1..MaxRanked，其余为 0。
func Rank(statuses []PersonaStatus) []PersonaStatus {
	out := make([]PersonaStatus, len(statuses))
	copy(out, statuses)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EffectiveConfidence > out[j].EffectiveConfidence
	})
	for i := range out {
		if i < MaxRanked {
			out[i].Rank = i + 1
		} else {
			out[i].Rank = 0
		}
	}
	return out
}
