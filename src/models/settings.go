package models

// MSettings is the flat strategy/risk configuration record edited from the UI.
type MSettings struct {
	GridSize            int     `json:"gridSize"`
	RiskPercent         float64 `json:"riskPercent"`
	MaxLots             float64 `json:"maxLots"`
	ConfidenceThreshold float64 `json:"confidenceThreshold"`
	StopLossPoints      float64 `json:"stopLossPoints"`
	TakeProfitPoints    float64 `json:"takeProfitPoints"`
	MaxOpenTrades       int     `json:"maxOpenTrades"`
	DrawdownLimit       float64 `json:"drawdownLimit"`
	ActiveSymbol        string  `json:"activeSymbol"`
}

// DefaultSettings mirrors the values the dashboard ships with.
func DefaultSettings() MSettings {
	return MSettings{
		GridSize:            10,
		RiskPercent:         2.0,
		MaxLots:             1.0,
		ConfidenceThreshold: 0.75,
		StopLossPoints:      50,
		TakeProfitPoints:    100,
		MaxOpenTrades:       5,
		DrawdownLimit:       10,
		ActiveSymbol:        "R_100",
	}
}

// -----------------------------------------------------------------------------

// MSettingsPatch is a partial update; nil fields are left untouched.
type MSettingsPatch struct {
	GridSize            *int     `json:"gridSize,omitempty"`
	RiskPercent         *float64 `json:"riskPercent,omitempty"`
	MaxLots             *float64 `json:"maxLots,omitempty"`
	ConfidenceThreshold *float64 `json:"confidenceThreshold,omitempty"`
	StopLossPoints      *float64 `json:"stopLossPoints,omitempty"`
	TakeProfitPoints    *float64 `json:"takeProfitPoints,omitempty"`
	MaxOpenTrades       *int     `json:"maxOpenTrades,omitempty"`
	DrawdownLimit       *float64 `json:"drawdownLimit,omitempty"`
	ActiveSymbol        *string  `json:"activeSymbol,omitempty"`
}

// Apply merges the patch shallowly into s.
func (p MSettingsPatch) Apply(s MSettings) MSettings {
	if p.GridSize != nil {
		s.GridSize = *p.GridSize
	}
	if p.RiskPercent != nil {
		s.RiskPercent = *p.RiskPercent
	}
	if p.MaxLots != nil {
		s.MaxLots = *p.MaxLots
	}
	if p.ConfidenceThreshold != nil {
		s.ConfidenceThreshold = *p.ConfidenceThreshold
	}
	if p.StopLossPoints != nil {
		s.StopLossPoints = *p.StopLossPoints
	}
	if p.TakeProfitPoints != nil {
		s.TakeProfitPoints = *p.TakeProfitPoints
	}
	if p.MaxOpenTrades != nil {
		s.MaxOpenTrades = *p.MaxOpenTrades
	}
	if p.DrawdownLimit != nil {
		s.DrawdownLimit = *p.DrawdownLimit
	}
	if p.ActiveSymbol != nil {
		s.ActiveSymbol = *p.ActiveSymbol
	}
	return s
}

// IsEmpty reports whether the patch changes nothing.
func (p MSettingsPatch) IsEmpty() bool {
	return p == MSettingsPatch{}
}
