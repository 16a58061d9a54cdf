package risk

import "testing"

func TestWeightedScoreCapsAt100(t *testing.T) {
	f := Factor{Category: "velocity_anomaly", Score: 90, Weight: 2}
	if got := f.WeightedScore(); got != 100 {
		t.Fatalf("WeightedScore() = %v, want 100", got)
	}
}

func TestScoreUsesHighestFactorNotAverage(t *testing.T) {
	factors := []Factor{
		{Category: "velocity_anomaly", Score: 10, Weight: 1},
		{Category: "pep_match", Score: 95, Weight: 1},
	}
	a := Score(factors, DefaultThresholds())
	if a.AggregateScore != 95 {
		t.Fatalf("AggregateScore = %v, want 95 (driven by the highest factor, not an average)", a.AggregateScore)
	}
	if a.Level != LevelCritical {
		t.Fatalf("Level = %v, want critical", a.Level)
	}
	if a.RecommendedAction != ActionEscalate {
		t.Fatalf("RecommendedAction = %v, want escalate", a.RecommendedAction)
	}
}

func TestScoreLevelBoundaries(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		score float64
		want  Level
	}{
		{0, LevelMinimal},
		{19.9, LevelMinimal},
		{20, LevelLow},
		{39.9, LevelLow},
		{40, LevelMedium},
		{59.9, LevelMedium},
		{60, LevelHigh},
		{79.9, LevelHigh},
		{80, LevelCritical},
		{100, LevelCritical},
	}
	for _, c := range cases {
		a := Score([]Factor{{Category: "x", Score: c.score, Weight: 1}}, th)
		if a.Level != c.want {
			t.Errorf("Score(%v) level = %v, want %v", c.score, a.Level, c.want)
		}
	}
}

func TestScoreEmptyFactorsIsMinimal(t *testing.T) {
	a := Score(nil, DefaultThresholds())
	if a.Level != LevelMinimal || a.RecommendedAction != ActionApprove {
		t.Fatalf("empty factor set should be minimal/approve, got %v/%v", a.Level, a.RecommendedAction)
	}
}

func TestActionForEachLevel(t *testing.T) {
	cases := []struct {
		level Level
		want  Action
	}{
		{LevelMinimal, ActionApprove},
		{LevelLow, ActionApprove},
		{LevelMedium, ActionReview},
		{LevelHigh, ActionEDD},
		{LevelCritical, ActionEscalate},
	}
	for _, c := range cases {
		if got := actionFor(c.level); got != c.want {
			t.Errorf("actionFor(%v) = %v, want %v", c.level, got, c.want)
		}
	}
}
