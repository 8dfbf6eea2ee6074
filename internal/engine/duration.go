package engine

import (
	"math"

	"github.com/hydrosense/control-plane/internal/model"
)

// Watering duration bounds and base, in seconds.
const (
	durationBase = 30
	durationMin  = 15
	durationMax  = 300
)

// Drainage: sandy soil loses water fastest and needs longer runs.
var soilMultiplier = map[model.SoilType]float64{
	model.SoilSandy: 1.3,
	model.SoilLoamy: 1.0,
	model.SoilClay:  0.8,
}

// Demand: bigger plants drink more.
var stageMultiplier = map[model.GrowthStage]float64{
	model.StageSeedling:   0.7,
	model.StageVegetative: 1.0,
	model.StageMature:     1.2,
	model.StageHarvest:    1.2,
}

// ComputeDuration sizes a PUMP_ON run from how far below the dry threshold
// the average moisture sits, scaled by soil drainage and plant demand, and
// clamped to safe limits. Unknown soil or stage scale by 1.
func ComputeDuration(avgMoisture, dryThreshold float64, plant model.PlantProfile) int {
	dryness := 1 + math.Max(0, dryThreshold-avgMoisture)/20

	soil, ok := soilMultiplier[plant.SoilType]
	if !ok {
		soil = 1.0
	}
	stage, ok := stageMultiplier[plant.GrowthStage]
	if !ok {
		stage = 1.0
	}

	d := int(math.Round(durationBase * dryness * soil * stage))
	if d < durationMin {
		return durationMin
	}
	if d > durationMax {
		return durationMax
	}
	return d
}
