// Package fusion turns raw multi-zone ADC telemetry into a single voting
// decision. Everything here is pure: no I/O, no clocks, no logging.
package fusion

import (
	"sort"

	"github.com/hydrosense/control-plane/internal/model"
)

// Vote is one zone's opinion about the soil.
type Vote string

const (
	VoteDry     Vote = "DRY"
	VoteWet     Vote = "WET"
	VoteNeutral Vote = "NEUTRAL"
	VoteError   Vote = "ERROR"
)

// SensorHealth classifies how many of the three zones are trustworthy.
type SensorHealth string

const (
	HealthNormal   SensorHealth = "NORMAL"
	HealthDegraded SensorHealth = "DEGRADED"
	HealthWarning  SensorHealth = "WARNING"
	HealthError    SensorHealth = "ERROR"
)

// Readings at the extreme rails indicate a disconnected or shorted probe
// rather than a real measurement.
const (
	validADCMin = 100
	validADCMax = 4000
)

// ZoneReading is the calibrated view of one zone for one telemetry message.
type ZoneReading struct {
	ZoneIndex       int
	RawADC          int
	MoisturePercent float64
	IsValid         bool
	Vote            Vote
}

// VotingResult aggregates the three zone readings.
type VotingResult struct {
	DryVotes         int
	WetVotes         int
	ValidSensorCount int
	MedianRawADC     int
	AvgMoisture      float64
	MajorityDry      bool
	SensorHealth     SensorHealth
}

// IsZoneValid reports whether a raw reading is inside the hardware-plausible
// band.
func IsZoneValid(rawADC int) bool {
	return rawADC >= validADCMin && rawADC <= validADCMax
}

// ToMoisturePercent converts a raw reading to 0..100 where higher always
// means wetter, regardless of the probe's electrical direction. The raw
// value is clamped to the calibration band before interpolating, so the
// bounds map to exactly 0 and 100.
func ToMoisturePercent(rawADC int, cal model.CalibrationProfile) float64 {
	lo, hi := cal.LowBoundADC, cal.HighBoundADC
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo == hi {
		return 0
	}
	if rawADC < lo {
		rawADC = lo
	}
	if rawADC > hi {
		rawADC = hi
	}
	t := float64(rawADC-lo) / float64(hi-lo)

	// With LowDry the low end of the ADC scale is dry soil, so wetness
	// rises with the raw value. LowWet is the mirror image.
	if cal.Polarity != model.PolarityLowWet {
		return t * 100
	}
	return (1 - t) * 100
}

// ClassifyVote maps a moisture percent onto a vote. Percentages strictly
// between the two thresholds are NEUTRAL.
func ClassifyVote(percent float64, th model.ThresholdProfile) Vote {
	switch {
	case percent <= th.DryPercent:
		return VoteDry
	case percent >= th.WetPercent:
		return VoteWet
	default:
		return VoteNeutral
	}
}

// NewZoneReading calibrates and classifies one zone.
func NewZoneReading(zone, rawADC int, cal model.CalibrationProfile, th model.ThresholdProfile) ZoneReading {
	r := ZoneReading{ZoneIndex: zone, RawADC: rawADC}
	if !IsZoneValid(rawADC) {
		r.Vote = VoteError
		return r
	}
	r.IsValid = true
	r.MoisturePercent = ToMoisturePercent(rawADC, cal)
	r.Vote = ClassifyVote(r.MoisturePercent, th)
	return r
}

// Fuse counts votes over the valid zones only. MajorityDry requires at
// least 2 of 3 dry votes; the median raw ADC over valid zones is kept for
// outlier diagnostics and plays no part in the vote.
func Fuse(readings []ZoneReading) VotingResult {
	var res VotingResult
	var validRaw []int
	var moistureSum float64
	for _, r := range readings {
		if !r.IsValid {
			continue
		}
		res.ValidSensorCount++
		validRaw = append(validRaw, r.RawADC)
		moistureSum += r.MoisturePercent
		switch r.Vote {
		case VoteDry:
			res.DryVotes++
		case VoteWet:
			res.WetVotes++
		}
	}
	if res.ValidSensorCount > 0 {
		res.AvgMoisture = moistureSum / float64(res.ValidSensorCount)
		res.MedianRawADC = median(validRaw)
	}
	res.MajorityDry = res.DryVotes >= 2
	res.SensorHealth = healthFor(res.ValidSensorCount)
	return res
}

func healthFor(validCount int) SensorHealth {
	switch validCount {
	case 3:
		return HealthNormal
	case 2:
		return HealthDegraded
	case 1:
		return HealthWarning
	default:
		return HealthError
	}
}

func median(vals []int) int {
	sorted := append([]int(nil), vals...)
	sort.Ints(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
