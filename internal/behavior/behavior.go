// Package behavior implements the behavioral-drift monitor of spec §4.6:
// a per-agent statistical profile of spending behavior, checked against
// each new transaction for amount, time-of-day, merchant, and token/chain
// anomalies. Alerts never block a transaction by themselves; they feed the
// confidence router.
//
// Grounded on
// original_source/packages/sardis-guardrails/src/sardis_guardrails/behavioral_monitor.py,
// translated to Go: a mutex-guarded in-process struct in place of the
// Python asyncio.Lock, math/big-free float64 statistics in place of
// Decimal (money amounts here are already int64 minor units, so no
// precision is lost using float64 for mean/stddev).
package behavior

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// Severity is the alert severity scale.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Sensitivity controls how many standard deviations count as anomalous.
type Sensitivity string

const (
	SensitivityRelaxed  Sensitivity = "relaxed"
	SensitivityNormal   Sensitivity = "normal"
	SensitivityStrict   Sensitivity = "strict"
	SensitivityParanoid Sensitivity = "paranoid"
)

var sigmaThresholds = map[Sensitivity]float64{
	SensitivityRelaxed:  3.0,
	SensitivityNormal:   2.5,
	SensitivityStrict:   2.0,
	SensitivityParanoid: 1.5,
}

func (s Sensitivity) threshold() float64 {
	if t, ok := sigmaThresholds[s]; ok {
		return t
	}
	return sigmaThresholds[SensitivityNormal]
}

// Transaction is one observation fed to Monitor.
type Transaction struct {
	AmountMinor int64
	Merchant    string
	Token       string
	Chain       string
	At          time.Time
}

// Alert flags one detected anomaly.
type Alert struct {
	AgentID        string
	Severity       Severity
	AnomalyType    string
	Description    string
	DeviationScore float64
}

const maxRecentHistory = 100
const minTransactionsForBaseline = 10
const newMerchantAfter = 50
const newTokenChainAfter = 20

// pattern is the per-agent statistical profile.
type pattern struct {
	totalTransactions int
	recentAmounts     []int64
	meanAmount        float64
	stdDevAmount      float64
	hourlyCounts      [24]int
	merchantSeen      map[string]int
	tokenSeen         map[string]int
	chainSeen         map[string]int
}

func newPattern() *pattern {
	return &pattern{
		merchantSeen: make(map[string]int),
		tokenSeen:    make(map[string]int),
		chainSeen:    make(map[string]int),
	}
}

// Monitor tracks SpendingPattern per agent and emits Alerts on deviation.
type Monitor struct {
	mu          sync.Mutex
	patterns    map[string]*pattern
	sensitivity Sensitivity
}

func NewMonitor(sensitivity Sensitivity) *Monitor {
	return &Monitor{
		patterns:    make(map[string]*pattern),
		sensitivity: sensitivity,
	}
}

// Record updates agentID's profile with tx. It never blocks or errors on
// the transaction itself — it is a pure observation.
func (m *Monitor) Record(ctx context.Context, agentID string, tx Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.patternFor(agentID)
	p.totalTransactions++

	p.recentAmounts = append(p.recentAmounts, tx.AmountMinor)
	if len(p.recentAmounts) > maxRecentHistory {
		p.recentAmounts = p.recentAmounts[1:]
	}
	p.meanAmount, p.stdDevAmount = amountStatistics(p.recentAmounts)

	p.hourlyCounts[tx.At.Hour()]++
	p.merchantSeen[tx.Merchant]++
	p.tokenSeen[tx.Token]++
	p.chainSeen[tx.Chain]++

	return nil
}

// Check evaluates tx against agentID's current profile without recording
// it, returning zero or more alerts. Call Record separately once the
// transaction is accepted.
func (m *Monitor) Check(ctx context.Context, agentID string, tx Transaction) ([]Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.patternFor(agentID)
	if p.totalTransactions < minTransactionsForBaseline {
		return nil, nil
	}

	var alerts []Alert
	threshold := m.sensitivity.threshold()

	if p.stdDevAmount > 0 {
		deviation := math.Abs(float64(tx.AmountMinor)-p.meanAmount) / p.stdDevAmount
		if deviation > threshold {
			alerts = append(alerts, Alert{
				AgentID:     agentID,
				Severity:    severityFor(deviation, threshold),
				AnomalyType: "amount_anomaly",
				Description: fmt.Sprintf("transaction amount %d deviates from typical amount %.0f by %.2f sigma",
					tx.AmountMinor, p.meanAmount, deviation),
				DeviationScore: deviation,
			})
		}
	}

	hour := tx.At.Hour()
	avgHourly := float64(p.totalTransactions) / 24
	if avgHourly > 0 {
		hourlyCount := float64(p.hourlyCounts[hour])
		deviation := math.Abs(hourlyCount-avgHourly) / math.Max(avgHourly, 1)
		if hourlyCount < avgHourly*0.3 && deviation > 1.5 {
			alerts = append(alerts, Alert{
				AgentID:        agentID,
				Severity:       SeverityLow,
				AnomalyType:    "time_anomaly",
				Description:    fmt.Sprintf("transaction at unusual hour %d", hour),
				DeviationScore: deviation,
			})
		}
	}

	if _, seen := p.merchantSeen[tx.Merchant]; !seen && p.totalTransactions > newMerchantAfter {
		alerts = append(alerts, Alert{
			AgentID:        agentID,
			Severity:       SeverityMedium,
			AnomalyType:    "new_merchant",
			Description:    fmt.Sprintf("first transaction with merchant %q", tx.Merchant),
			DeviationScore: 1.0,
		})
	}

	_, tokenSeen := p.tokenSeen[tx.Token]
	_, chainSeen := p.chainSeen[tx.Chain]
	if (!tokenSeen || !chainSeen) && p.totalTransactions > newTokenChainAfter {
		alerts = append(alerts, Alert{
			AgentID:        agentID,
			Severity:       SeverityMedium,
			AnomalyType:    "new_token_or_chain",
			Description:    fmt.Sprintf("first transaction with token/chain combination %s/%s", tx.Token, tx.Chain),
			DeviationScore: 1.0,
		})
	}

	return alerts, nil
}

func (m *Monitor) patternFor(agentID string) *pattern {
	p, ok := m.patterns[agentID]
	if !ok {
		p = newPattern()
		m.patterns[agentID] = p
	}
	return p
}

func amountStatistics(amounts []int64) (mean, stdDev float64) {
	if len(amounts) == 0 {
		return 0, 0
	}
	var sum float64
	for _, a := range amounts {
		sum += float64(a)
	}
	mean = sum / float64(len(amounts))

	if len(amounts) < 2 {
		return mean, 0
	}
	var variance float64
	for _, a := range amounts {
		d := float64(a) - mean
		variance += d * d
	}
	variance /= float64(len(amounts))
	return mean, math.Sqrt(variance)
}

func severityFor(deviation, threshold float64) Severity {
	switch {
	case deviation > threshold*3:
		return SeverityCritical
	case deviation > threshold*2:
		return SeverityHigh
	case deviation > threshold*1.5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
