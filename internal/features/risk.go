package features

import (
	"math"
	"strconv"
	"strings"
)

// SafeCast parses a numeric text field. Missing, empty, non-numeric and
// non-finite ("NaN", "inf") values yield nil; ok is false only when a
// non-empty value was rejected.
func SafeCast(raw *string) (v *float64, ok bool) {
	if raw == nil {
		return nil, true
	}
	s := strings.TrimSpace(*raw)
	if s == "" {
		return nil, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !isFinite(f) {
		return nil, false
	}
	return &f, true
}

// SafeDivide returns num/den, or nil when either side is NULL, the
// denominator is zero, or the quotient is not finite.
func SafeDivide(num, den *float64) *float64 {
	if num == nil || den == nil || *den == 0 {
		return nil
	}
	q := *num / *den
	if !isFinite(q) {
		return nil
	}
	return &q
}

// LogAmount returns ln(amount+1), or nil when amount <= -1 where the log is
// undefined.
func LogAmount(amount float64) *float64 {
	if amount <= -1 {
		return nil
	}
	v := math.Log(amount + 1)
	return &v
}

// AmountZScore standardizes amount with the fixed scoring parameters.
func AmountZScore(amount float64) float64 {
	return (amount - AmountZScoreMean) / AmountZScoreStdDev
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// TransactionRiskScore sums the three anomaly scores, treating NULL as 0.
func TransactionRiskScore(geo, velocity, deviation *float64) float64 {
	return valueOrZero(geo) + valueOrZero(velocity) + valueOrZero(deviation)
}

// RiskSignals are the boolean predicates behind risk_signals_count and
// riesgo_transaccion.
type RiskSignals struct {
	HighAmount bool // amount > HighAmountThreshold
	WebDevice  bool // device_used = web
	NightHour  bool // hour in [0, NightLastHour]
	GeoAnomaly bool // geo_anomaly_score > GeoAnomalyThreshold; NULL is false
}

// EvaluateRiskSignals computes the four signals for one row.
func EvaluateRiskSignals(amount float64, device string, hour int, geo *float64) RiskSignals {
	return RiskSignals{
		HighAmount: amount > HighAmountThreshold,
		WebDevice:  device == DeviceWeb,
		NightHour:  isNightHour(hour),
		GeoAnomaly: geo != nil && *geo > GeoAnomalyThreshold,
	}
}

// Count is risk_signals_count: all four signals.
func (s RiskSignals) Count() int {
	return boolToInt(s.HighAmount) + boolToInt(s.WebDevice) + boolToInt(s.NightHour) + boolToInt(s.GeoAnomaly)
}

// Level is riesgo_transaccion. It sums only the first three signals; the geo
// signal is not part of the level.
func (s RiskSignals) Level() string {
	switch n := boolToInt(s.HighAmount) + boolToInt(s.WebDevice) + boolToInt(s.NightHour); {
	case n >= 3:
		return RiskHigh
	case n == 2:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ChannelDeviceRisk weights payment channel and device, range [0, 4].
func ChannelDeviceRisk(channel, device string) int {
	score := 0
	switch channel {
	case ChannelWireTransfer:
		score += 2
	case ChannelUPI:
		score++
	}
	switch device {
	case DeviceWeb:
		score += 2
	case DeviceMobile:
		score++
	}
	return score
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
