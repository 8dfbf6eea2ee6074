package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hydrosense/control-plane/internal/model"
)

var thresholds = model.ThresholdProfile{DryPercent: 20, WetPercent: 80}

func lowDry(lo, hi int) model.CalibrationProfile {
	return model.CalibrationProfile{LowBoundADC: lo, HighBoundADC: hi, Polarity: model.PolarityLowDry}
}

func lowWet(lo, hi int) model.CalibrationProfile {
	return model.CalibrationProfile{LowBoundADC: lo, HighBoundADC: hi, Polarity: model.PolarityLowWet}
}

func TestToMoisturePercentBoundsExact(t *testing.T) {
	cal := lowDry(1500, 3300)
	assert.Equal(t, 0.0, ToMoisturePercent(1500, cal))
	assert.Equal(t, 100.0, ToMoisturePercent(3300, cal))

	inverted := lowWet(1500, 3300)
	assert.Equal(t, 100.0, ToMoisturePercent(1500, inverted))
	assert.Equal(t, 0.0, ToMoisturePercent(3300, inverted))
}

func TestToMoisturePercentClampsOutsideBand(t *testing.T) {
	cal := lowDry(1500, 3300)
	assert.Equal(t, 0.0, ToMoisturePercent(200, cal))
	assert.Equal(t, 100.0, ToMoisturePercent(4000, cal))
}

func TestToMoisturePercentInterpolates(t *testing.T) {
	cal := lowDry(1000, 3000)
	assert.InDelta(t, 50.0, ToMoisturePercent(2000, cal), 1e-9)
	assert.InDelta(t, 25.0, ToMoisturePercent(1500, cal), 1e-9)

	inv := lowWet(1000, 3000)
	assert.InDelta(t, 75.0, ToMoisturePercent(1500, inv), 1e-9)
}

func TestToMoisturePercentReversedBounds(t *testing.T) {
	// bounds given in reverse numeric order behave the same
	cal := lowDry(3300, 1500)
	assert.Equal(t, 0.0, ToMoisturePercent(1500, cal))
	assert.Equal(t, 100.0, ToMoisturePercent(3300, cal))
}

func TestClassifyVote(t *testing.T) {
	assert.Equal(t, VoteDry, ClassifyVote(20, thresholds))
	assert.Equal(t, VoteDry, ClassifyVote(5, thresholds))
	assert.Equal(t, VoteNeutral, ClassifyVote(20.0001, thresholds))
	assert.Equal(t, VoteNeutral, ClassifyVote(50, thresholds))
	assert.Equal(t, VoteWet, ClassifyVote(80, thresholds))
	assert.Equal(t, VoteWet, ClassifyVote(99, thresholds))
}

func TestIsZoneValidRejectsRails(t *testing.T) {
	assert.False(t, IsZoneValid(0))
	assert.False(t, IsZoneValid(50))
	assert.True(t, IsZoneValid(100))
	assert.True(t, IsZoneValid(4000))
	assert.False(t, IsZoneValid(4095))
}

func readingsFor(raws [3]int) []ZoneReading {
	cal := lowDry(1500, 3300)
	out := make([]ZoneReading, 0, 3)
	for i, raw := range raws {
		out = append(out, NewZoneReading(i, raw, cal, thresholds))
	}
	return out
}

func TestFuseMajorityDry(t *testing.T) {
	// 1800/1850/1820 map to ~17-19%, all DRY
	res := Fuse(readingsFor([3]int{1800, 1850, 1820}))
	assert.Equal(t, 3, res.DryVotes)
	assert.True(t, res.MajorityDry)
	assert.Equal(t, HealthNormal, res.SensorHealth)
	assert.Equal(t, 1820, res.MedianRawADC)
}

func TestFuseMajorityHoldsWhateverThirdZoneSays(t *testing.T) {
	// two dry zones, third wet
	res := Fuse(readingsFor([3]int{1600, 1650, 3250}))
	assert.True(t, res.MajorityDry)

	// two dry zones, third invalid (railed)
	res = Fuse(readingsFor([3]int{1600, 1650, 4095}))
	assert.True(t, res.MajorityDry)
	assert.Equal(t, 2, res.ValidSensorCount)
	assert.Equal(t, HealthDegraded, res.SensorHealth)
}

func TestFuseNoMajorityWhenVotesSplit(t *testing.T) {
	// one dry, one neutral, one wet
	res := Fuse(readingsFor([3]int{1600, 2400, 3250}))
	assert.Equal(t, 1, res.DryVotes)
	assert.Equal(t, 1, res.WetVotes)
	assert.False(t, res.MajorityDry)
}

func TestFuseHealthLadder(t *testing.T) {
	assert.Equal(t, HealthNormal, Fuse(readingsFor([3]int{2000, 2000, 2000})).SensorHealth)
	assert.Equal(t, HealthDegraded, Fuse(readingsFor([3]int{2000, 2000, 0})).SensorHealth)
	assert.Equal(t, HealthWarning, Fuse(readingsFor([3]int{2000, 4095, 0})).SensorHealth)
	assert.Equal(t, HealthError, Fuse(readingsFor([3]int{4095, 4095, 0})).SensorHealth)
}

func TestFuseMedianWithTwoValidZones(t *testing.T) {
	res := Fuse(readingsFor([3]int{2000, 3000, 4095}))
	assert.Equal(t, 2500, res.MedianRawADC)
}

func TestFuseAllInvalidNoVotes(t *testing.T) {
	res := Fuse(readingsFor([3]int{0, 0, 4095}))
	assert.Equal(t, 0, res.ValidSensorCount)
	assert.False(t, res.MajorityDry)
	assert.Equal(t, 0.0, res.AvgMoisture)
}
