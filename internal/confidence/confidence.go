// Package confidence implements the confidence-based transaction router of
// spec §4.7: a weighted-mean score across know-your-agent level, merchant
// familiarity, amount-vs-history deviation, budget utilization, and a
// violation penalty, routed into one of four approval tiers.
//
// Grounded on original_source/packages/sardis-core (confidence_router.py,
// exercised by tests/test_confidence_router.py): the same factor set, the
// same default tier thresholds (0.95/0.85/0.70), and the same routing
// parameters per tier (manager: 1 approver/1h/quorum 1, multi-sig: 2
// approvers/24h/quorum 2).
package confidence

import (
	"math"
	"time"
)

// KYALevel is the know-your-agent attestation level.
type KYALevel string

const (
	KYANone     KYALevel = "none"
	KYABasic    KYALevel = "basic"
	KYAVerified KYALevel = "verified"
	KYAAttested KYALevel = "attested"
)

var kyaScores = map[KYALevel]float64{
	KYANone:     0.0,
	KYABasic:    0.4,
	KYAVerified: 0.75,
	KYAAttested: 1.0,
}

func (k KYALevel) score() float64 {
	if s, ok := kyaScores[k]; ok {
		return s
	}
	return kyaScores[KYANone]
}

// Level is an approval tier.
type Level string

const (
	LevelAutoApprove     Level = "auto_approve"
	LevelManagerApproval Level = "manager_approval"
	LevelMultiSig        Level = "multi_sig"
	LevelHumanRewrite    Level = "human_rewrite"
)

// Thresholds is the score cutoff for each tier (inclusive lower bound).
// Overridable per spec §4.7; zero-value Thresholds is invalid — use
// DefaultThresholds.
type Thresholds struct {
	AutoApprove float64
	Manager     float64
	MultiSig    float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{AutoApprove: 0.95, Manager: 0.85, MultiSig: 0.70}
}

func (t Thresholds) level(score float64) Level {
	switch {
	case score >= t.AutoApprove:
		return LevelAutoApprove
	case score >= t.Manager:
		return LevelManagerApproval
	case score >= t.MultiSig:
		return LevelMultiSig
	default:
		return LevelHumanRewrite
	}
}

// Weights controls how each factor contributes to the final weighted mean.
// Must sum to 1.0.
type Weights struct {
	KYA         float64
	Familiarity float64
	AmountZ     float64
	Budget      float64
	Violation   float64
}

func DefaultWeights() Weights {
	return Weights{KYA: 0.25, Familiarity: 0.2, AmountZ: 0.25, Budget: 0.2, Violation: 0.1}
}

// HistoryEntry is one prior transaction used to establish familiarity and
// amount-deviation baselines.
type HistoryEntry struct {
	AmountMinor int64
	MerchantID  string
	At          time.Time
}

// Budget carries the policy's total limit and amount already spent,
// expressed in minor units.
type Budget struct {
	LimitTotalMinor int64
	SpentTotalMinor int64
}

// ScoringInput is everything Score needs to compute a confidence score for
// one candidate transaction.
type ScoringInput struct {
	AgentID        string
	AmountMinor    int64
	MerchantID     string
	History        []HistoryEntry
	Budget         Budget
	KYA            KYALevel
	ViolationCount int
	Weights        Weights
}

// Score is the computed confidence result.
type Score struct {
	Value       float64
	Level       Level
	KYAScore    float64
	Familiarity float64
	AmountZ     float64
	BudgetScore float64
	Violation   float64
}

// Routing describes how an approval-tier decision should be executed.
type Routing struct {
	ApprovalType      Level
	RequiredApprovers int
	TimeoutSeconds    int
	Quorum            int
}

// Compute scores input and assigns a tier using thresholds.
func Compute(input ScoringInput, thresholds Thresholds) Score {
	w := input.Weights
	if w == (Weights{}) {
		w = DefaultWeights()
	}

	kyaScore := input.KYA.score()
	familiarity := merchantFamiliarity(input.MerchantID, input.History)
	amountZ := amountDeviationScore(input.AmountMinor, input.History)
	budgetScore := budgetUtilizationScore(input.Budget)
	violation := violationPenalty(input.ViolationCount)

	value := w.KYA*kyaScore +
		w.Familiarity*familiarity +
		w.AmountZ*amountZ +
		w.Budget*budgetScore +
		w.Violation*violation

	return Score{
		Value:       value,
		Level:       thresholds.level(value),
		KYAScore:    kyaScore,
		Familiarity: familiarity,
		AmountZ:     amountZ,
		BudgetScore: budgetScore,
		Violation:   violation,
	}
}

func merchantFamiliarity(merchantID string, history []HistoryEntry) float64 {
	if len(history) == 0 {
		return 0
	}
	var matches int
	for _, h := range history {
		if h.MerchantID == merchantID {
			matches++
		}
	}
	return float64(matches) / float64(len(history))
}

// amountDeviationScore returns 1.0 when the amount matches history exactly
// and decreases toward 0 as its z-score against the history grows. With no
// history (no baseline to compare against) it returns a neutral 0.5.
func amountDeviationScore(amount int64, history []HistoryEntry) float64 {
	if len(history) == 0 {
		return 0.5
	}
	var sum float64
	for _, h := range history {
		sum += float64(h.AmountMinor)
	}
	mean := sum / float64(len(history))

	var variance float64
	for _, h := range history {
		d := float64(h.AmountMinor) - mean
		variance += d * d
	}
	variance /= float64(len(history))
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		// History with no variance still has an implicit tolerance band
		// rather than flagging any deviation at all; 10% of the mean.
		stdDev = mean * 0.1
	}
	if stdDev == 0 {
		stdDev = 1
	}

	z := math.Abs(float64(amount)-mean) / stdDev
	return 1.0 / (1.0 + z)
}

func budgetUtilizationScore(b Budget) float64 {
	if b.LimitTotalMinor <= 0 {
		return 0.5
	}
	used := float64(b.SpentTotalMinor) / float64(b.LimitTotalMinor)
	score := 1.0 - used
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func violationPenalty(count int) float64 {
	score := 1.0 - 0.15*float64(count)
	if score < 0 {
		return 0
	}
	return score
}

// Route translates a Score's Level into the fixed approval parameters for
// that tier (spec §4.7).
func Route(s Score) Routing {
	switch s.Level {
	case LevelAutoApprove:
		return Routing{ApprovalType: LevelAutoApprove, RequiredApprovers: 0, TimeoutSeconds: 0, Quorum: 0}
	case LevelManagerApproval:
		return Routing{ApprovalType: LevelManagerApproval, RequiredApprovers: 1, TimeoutSeconds: 3600, Quorum: 1}
	case LevelMultiSig:
		return Routing{ApprovalType: LevelMultiSig, RequiredApprovers: 2, TimeoutSeconds: 86400, Quorum: 2}
	default:
		return Routing{ApprovalType: LevelHumanRewrite, RequiredApprovers: 0, TimeoutSeconds: 0, Quorum: 0}
	}
}
