package ranking

// PersonaStatus 某个人格在房间内的当前状态
type PersonaStatus struct {
	PersonaID           uint    `json:"persona_id"`
	Name                string  `json:"name"`
	Color               string  `json:"color"`
	Model               string  `json:"model"`
	Multiplier          float64 `json:"multiplier"`
	AnalysisID          uint    `json:"analysis_id,omitempty"`
	EntryID             uint    `json:"entry_id,omitempty"`
	RawConfidence       int     `json:"raw_confidence"`
	Staleness           int     `json:"staleness"`
	DecayFactor         float64 `json:"decay_factor"`
	EffectiveConfidence int     `json:"effective_confidence"`
	Eligible            bool    `json:"eligible"`
	Rank                int     `json:"rank,omitempty"`
	ProposedResponse    string  `json:"proposed_response,omitempty"`
	Rationale           string  `json:"rationale,omitempty"`
}

// LEDStatus 按钮/LED 控制器消费的排名条目
type LEDStatus struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	Confidence int    `json:"confidence"`
}

// LEDStatuses 取出已排名的人格，按序号升序
func LEDStatuses(ranked []PersonaStatus) []LEDStatus {
	out := make([]LEDStatus, 0, MaxRanked)
	for _, s := range ranked {
		if s.Rank == 0 {
			continue
		}
		out = append(out, LEDStatus{
			Index:      s.Rank,
			Name:       s.Name,
			Color:      s.Color,
			Confidence: s.EffectiveConfidence,
		})
	}
	return out
}
