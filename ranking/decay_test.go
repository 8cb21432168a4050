package ranking

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/BaSui01/agora/store"
)

func TestDecayFactor(t *testing.T) {
	tests := []struct {
		staleness int
		want      float64
	}{
		{0, 1},
		{1, 0.85},
		{4, 0.4},
		{6, 0.1},
		{7, 0},
		{20, 0},
		{-3, 1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, DecayFactor(tt.staleness), 1e-9, "staleness=%d", tt.staleness)
	}
}

func TestEffectiveConfidence(t *testing.T) {
	tests := []struct {
		name       string
		raw        int
		staleness  int
		multiplier float64
		want       int
	}{
		{"fresh", 100, 0, 1.0, 100},
		{"four stale entries", 100, 4, 1.0, 40},
		{"fully decayed", 100, 7, 1.0, 0},
		{"beyond full decay", 100, 12, 1.5, 0},
		{"half rounds to even", 90, 1, 1.0, 76},
		{"boosted", 60, 0, 1.05, 63},
		{"penalised", 80, 0, 0.8, 64},
		{"no analysis", 0, 0, 1.0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectiveConfidence(tt.raw, tt.staleness, tt.multiplier))
		})
	}
}

func TestIsEligible(t *testing.T) {
	assert.False(t, IsEligible(0))
	assert.False(t, IsEligible(50))
	assert.True(t, IsEligible(51))
	assert.True(t, IsEligible(100))
}

func TestStaleness(t *testing.T) {
	names := map[string]struct{}{"Marcus": {}, "Simone": {}}
	entries := []store.Entry{
		{ID: 11, Speaker: "Alice", Origin: store.OriginHuman},
		{ID: 12, Speaker: "Marcus", Origin: store.PersonaOrigin(1)},
		{ID: 13, Speaker: "Simone", Origin: store.OriginHuman},
		{ID: 14, Speaker: "Robot", Origin: store.PersonaOrigin(9)},
		{ID: 15, Speaker: "Bob", Origin: store.OriginExternal},
	}
	assert.Equal(t, 2, Staleness(entries, names))
	assert.Equal(t, 0, Staleness(nil, names))
}

func TestRank(t *testing.T) {
	in := []PersonaStatus{
		{PersonaID: 1, EffectiveConfidence: 40},
		{PersonaID: 2, EffectiveConfidence: 80},
		{PersonaID: 3, EffectiveConfidence: 40},
		{PersonaID: 4, EffectiveConfidence: 90},
		{PersonaID: 5, EffectiveConfidence: 10},
	}
	out := Rank(in)

	ids := make([]uint, len(out))
	ranks := make([]int, len(out))
	for i, s := range out {
		ids[i] = s.PersonaID
		ranks[i] = s.Rank
	}
	assert.Equal(t, []uint{4, 2, 1, 3, 5}, ids)
	assert.Equal(t, []int{1, 2, 3, 0, 0}, ranks)

	// 输入不被修改
	assert.Equal(t, 0, in[0].Rank)
}

func TestLEDStatuses(t *testing.T) {
	ranked := Rank([]PersonaStatus{
		{PersonaID: 1, Name: "Marcus", Color: "#3B82F6", EffectiveConfidence: 72},
		{PersonaID: 2, Name: "Simone", Color: "#EF4444", EffectiveConfidence: 0},
	})
	assert.Equal(t, []LEDStatus{
		{Index: 1, Name: "Marcus", Color: "#3B82F6", Confidence: 72},
		{Index: 2, Name: "Simone", Color: "#EF4444", Confidence: 0},
	}, LEDStatuses(ranked))
}

// =============================================================================
// 🎲 属性测试
// =============================================================================

func TestProperty_DecayMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("decay stays in [0,1] and never increases with staleness", prop.ForAll(
		func(s int) bool {
			d := DecayFactor(s)
			return d >= 0 && d <= 1 && DecayFactor(s+1) <= d
		},
		gen.IntRange(0, 100),
	))

	properties.Property("effective confidence never exceeds raw × multiplier", prop.ForAll(
		func(raw, s int, m float64) bool {
			eff := EffectiveConfidence(raw, s, m)
			return eff >= 0 && float64(eff) <= float64(raw)*m+0.5
		},
		gen.IntRange(0, 100),
		gen.IntRange(0, 20),
		gen.Float64Range(0.1, 1.5),
	))

	properties.TestingRun(t)
}

func TestProperty_RankAssignsTopThree(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		confs := rapid.SliceOfN(rapid.IntRange(0, 150), 0, 10).Draw(t, "confidences")
		in := make([]PersonaStatus, len(confs))
		for i, c := range confs {
			in[i] = PersonaStatus{PersonaID: uint(i + 1), EffectiveConfidence: c}
		}

		out := Rank(in)
		if len(out) != len(in) {
			t.Fatalf("rank changed length")
		}

		ranked := 0
		for i, s := range out {
			if i > 0 && out[i-1].EffectiveConfidence < s.EffectiveConfidence {
				t.Fatalf("not sorted descending at %d", i)
			}
			if i > 0 && out[i-1].EffectiveConfidence == s.EffectiveConfidence && out[i-1].PersonaID > s.PersonaID {
				t.Fatalf("ties not stable at %d", i)
			}
			if s.Rank != 0 {
				ranked++
				if s.Rank != i+1 {
					t.Fatalf("rank %d at position %d", s.Rank, i)
				}
			}
		}
		want := len(in)
		if want > MaxRanked {
			want = MaxRanked
		}
		if ranked != want {
			t.Fatalf("ranked %d personas, want %d", ranked, want)
		}
	})
}
