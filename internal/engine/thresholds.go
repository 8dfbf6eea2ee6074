package engine

import (
	"github.com/hydrosense/control-plane/internal/model"
)

// Generic fallback thresholds used when the plant profile is incomplete or
// has no table entry.
var defaultThresholds = model.ThresholdProfile{DryPercent: 30, WetPercent: 70}

// Base thresholds per soil and sun exposure. Fast-draining sandy soil gets a
// higher dry threshold (water earlier), heavy clay a lower one; shade plants
// tolerate drier soil than full-sun ones.
var soilSunBase = map[model.SoilType]map[model.SunExposure]model.ThresholdProfile{
	model.SoilSandy: {
		model.SunFull:    {DryPercent: 35, WetPercent: 65},
		model.SunPartial: {DryPercent: 30, WetPercent: 65},
		model.SunShade:   {DryPercent: 25, WetPercent: 65},
	},
	model.SoilLoamy: {
		model.SunFull:    {DryPercent: 30, WetPercent: 70},
		model.SunPartial: {DryPercent: 25, WetPercent: 70},
		model.SunShade:   {DryPercent: 20, WetPercent: 70},
	},
	model.SoilClay: {
		model.SunFull:    {DryPercent: 25, WetPercent: 75},
		model.SunPartial: {DryPercent: 20, WetPercent: 75},
		model.SunShade:   {DryPercent: 15, WetPercent: 75},
	},
}

// Growth-stage shift applied to the dry threshold: seedlings are kept
// moister, mature and harvest-stage plants ride closer to dry.
var stageShift = map[model.GrowthStage]float64{
	model.StageSeedling:   +5,
	model.StageVegetative: 0,
	model.StageMature:     -3,
	model.StageHarvest:    -5,
}

// ResolveThresholds derives the vote thresholds for a device: the custom
// override wins; otherwise the static table keyed by the plant profile;
// otherwise the generic default. The second return is true when the
// fallback was used for an incomplete or unknown profile.
func ResolveThresholds(d model.DeviceState) (model.ThresholdProfile, bool) {
	if d.CustomThresholds != nil && d.CustomThresholds.DryPercent < d.CustomThresholds.WetPercent {
		return *d.CustomThresholds, false
	}
	bySun, ok := soilSunBase[d.Plant.SoilType]
	if !ok {
		return defaultThresholds, true
	}
	base, ok := bySun[d.Plant.SunExposure]
	if !ok {
		return defaultThresholds, true
	}
	shift, ok := stageShift[d.Plant.GrowthStage]
	if !ok {
		return defaultThresholds, true
	}
	base.DryPercent += shift
	return base, false
}
