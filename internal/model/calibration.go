package model

// Polarity says which electrical direction of the ADC scale means dry soil.
// Resistive probes typically read low when dry (LowDry); some capacitive
// modules are wired the other way around (LowWet). Making this an explicit
// per-zone field avoids baking one sensor family into the math.
type Polarity string

const (
	PolarityLowDry Polarity = "low_dry"
	PolarityLowWet Polarity = "low_wet"
)

// CalibrationProfile maps raw ADC readings of one zone onto the 0..100
// moisture scale. LowBoundADC and HighBoundADC must differ.
type CalibrationProfile struct {
	LowBoundADC  int      `json:"low_bound_adc"`
	HighBoundADC int      `json:"high_bound_adc"`
	Polarity     Polarity `json:"polarity"`
}

// Default calibration for zones without a stored profile.
const (
	DefaultLowBoundADC  = 1500
	DefaultHighBoundADC = 3300
)

// DefaultCalibration returns the fallback profile used when a device has no
// stored calibration for the zone index.
func DefaultCalibration() CalibrationProfile {
	return CalibrationProfile{
		LowBoundADC:  DefaultLowBoundADC,
		HighBoundADC: DefaultHighBoundADC,
		Polarity:     PolarityLowDry,
	}
}

// CalibrationFor picks the device's profile for a zone, falling back to the
// default when absent or degenerate.
func (d *DeviceState) CalibrationFor(zone int) CalibrationProfile {
	if zone >= 0 && zone < len(d.Calibrations) {
		c := d.Calibrations[zone]
		if c.LowBoundADC != c.HighBoundADC {
			if c.Polarity == "" {
				c.Polarity = PolarityLowDry
			}
			return c
		}
	}
	return DefaultCalibration()
}

// ThresholdProfile holds the dry/wet vote boundaries in moisture percent.
// Invariant: DryPercent < WetPercent.
type ThresholdProfile struct {
	DryPercent float64 `json:"dry_percent"`
	WetPercent float64 `json:"wet_percent"`
}

// Plant classification axes used to derive thresholds and watering duration
// when no custom override is configured.
type (
	SoilType    string
	SunExposure string
	GrowthStage string
)

const (
	SoilSandy SoilType = "sandy"
	SoilLoamy SoilType = "loamy"
	SoilClay  SoilType = "clay"

	SunFull    SunExposure = "full"
	SunPartial SunExposure = "partial"
	SunShade   SunExposure = "shade"

	StageSeedling   GrowthStage = "seedling"
	StageVegetative GrowthStage = "vegetative"
	StageMature     GrowthStage = "mature"
	StageHarvest    GrowthStage = "harvest"
)

// PlantProfile describes what is planted in the device's zones.
type PlantProfile struct {
	SoilType    SoilType    `json:"soil_type,omitempty"`
	SunExposure SunExposure `json:"sun_exposure,omitempty"`
	GrowthStage GrowthStage `json:"growth_stage,omitempty"`
}
