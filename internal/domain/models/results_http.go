package models

// Requests for results and simulation HTTP endpoints. Defined in domain for consistency and reuse.

type ModelQuery struct {
	ModelType string `query:"model_type" json:"model_type" validate:"required,max=128"`
}

type RunsRequest struct {
	ModelType string `query:"model_type" json:"model_type" validate:"required,max=128"`
	Limit     int    `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=500"`
}

// SimulationRequest selects configured pairs to rerun. Zero values fall back to the configured defaults.
type SimulationRequest struct {
	Models          []string `json:"models" validate:"omitempty,dive,required,max=64"`
	Horizons        []int    `json:"horizons" validate:"omitempty,dive,gte=1,lte=720"`
	StartingCapital float64  `json:"starting_capital" validate:"omitempty,gt=0"`
	PositionSize    float64  `json:"position_size" validate:"omitempty,gt=0,lte=1"`
}
