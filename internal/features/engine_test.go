package features

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/fraud-features/internal/domain"
	"github.com/dvloznov/fraud-features/internal/logger"
)

func f64(v float64) *float64 { return &v }
func str(s string) *string   { return &s }

func rawTx(id, account, ts string, amount float64) domain.RawTransaction {
	return domain.RawTransaction{
		TransactionID:    id,
		Timestamp:        ts,
		SenderAccount:    account,
		Amount:           f64(amount),
		TransactionType:  "payment",
		MerchantCategory: "grocery",
		Location:         "Madrid",
		DeviceUsed:       "pos",
		PaymentChannel:   "card",
	}
}

func transform(t *testing.T, raws []domain.RawTransaction) ([]domain.EnrichedTransaction, Stats) {
	t.Helper()
	out, stats, err := NewEngine(WithConcurrency(3)).Transform(context.Background(), raws)
	require.NoError(t, err)
	return out, stats
}

func TestTransform_SundayNightMobileUPI(t *testing.T) {
	raw := rawTx("T1", "ACC1", "2024-01-07T02:15:00Z", 40)
	raw.DeviceUsed = "mobile"
	raw.PaymentChannel = "upi"

	out, _ := transform(t, []domain.RawTransaction{raw})
	require.Len(t, out, 1)
	got := out[0]

	assert.Equal(t, "<50", got.AmountBin)
	assert.Equal(t, 1, got.DayOfWeek)
	assert.Equal(t, 2, got.Hour)
	assert.Equal(t, 1, got.IsNight)
	assert.Equal(t, 1, got.IsWeekend)
	assert.Equal(t, 1, got.IsMobile)
	assert.Equal(t, 1, got.IsUPI)
	assert.Equal(t, 0, got.IsCard)
	assert.Equal(t, "Mobile", got.DeviceTypeCategory)
	assert.Equal(t, "Domingo", got.DayName)
	assert.Equal(t, "Madrugada", got.HourBin)
	assert.Equal(t, "Fin de Semana", got.WeekPart)
	assert.Equal(t, 2, got.ChannelDeviceRisk)
}

func TestTransform_HighRiskWebNight(t *testing.T) {
	raw := rawTx("T1", "ACC1", "2024-03-13T03:00:00Z", 1500)
	raw.DeviceUsed = "web"
	raw.GeoAnomalyScore = str("0.9")

	out, _ := transform(t, []domain.RawTransaction{raw})
	got := out[0]

	assert.Equal(t, "ALTO", got.RiesgoTransaccion)
	assert.Equal(t, 4, got.RiskSignalsCount)
	assert.Equal(t, ">1000", got.AmountBin)
	assert.InDelta(t, 1.6666666, got.AmountZScore, 1e-6)
}

func TestTransform_RiskLevelIgnoresGeoSignal(t *testing.T) {
	// Only web + geo: two of four signals, one of the three level signals.
	raw := rawTx("T1", "ACC1", "2024-03-13T13:00:00Z", 10)
	raw.DeviceUsed = "web"
	raw.GeoAnomalyScore = str("0.95")

	out, _ := transform(t, []domain.RawTransaction{raw})
	assert.Equal(t, 2, out[0].RiskSignalsCount)
	assert.Equal(t, "BAJO", out[0].RiesgoTransaccion)
}

func TestTransform_AmountPerTime(t *testing.T) {
	tests := []struct {
		name string
		tslt *string
		want *float64
	}{
		{name: "zero denominator", tslt: str("0"), want: nil},
		{name: "null denominator", tslt: nil, want: nil},
		{name: "non-numeric denominator", tslt: str("n/a"), want: nil},
		{name: "valid", tslt: str("4"), want: f64(25)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawTx("T1", "ACC1", "2024-03-13T13:00:00Z", 100)
			raw.TimeSinceLastTransaction = tt.tslt

			out, _ := transform(t, []domain.RawTransaction{raw})
			assert.Equal(t, tt.want, out[0].AmountPerTime)
		})
	}
}

func TestTransform_DropsNullAmount(t *testing.T) {
	withNull := rawTx("T2", "ACC1", "2024-03-13T13:00:00Z", 0)
	withNull.Amount = nil

	out, stats := transform(t, []domain.RawTransaction{
		rawTx("T1", "ACC1", "2024-03-13T12:00:00Z", 10),
		withNull,
		rawTx("T3", "ACC1", "2024-03-13T14:00:00Z", 30),
	})

	require.Len(t, out, 2)
	assert.Equal(t, "T1", out[0].TransactionID)
	assert.Equal(t, "T3", out[1].TransactionID)
	assert.Equal(t, Stats{RowsIn: 3, RowsDropped: 1, RowsOut: 2}, stats)
	// The dropped row is not part of any cohort.
	assert.Equal(t, 2, out[1].SenderTxLastHour)
	assert.Equal(t, 2, out[1].DailyDeviceVolume)
}

func TestTransform_MalformedTimestampFailsRun(t *testing.T) {
	_, _, err := NewEngine().Transform(context.Background(), []domain.RawTransaction{
		rawTx("T1", "ACC1", "2024-03-13T12:00:00Z", 10),
		rawTx("T2", "ACC1", "yesterday", 10),
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedTimestamp))

	var rowErr *RowError
	require.True(t, errors.As(err, &rowErr))
	assert.Equal(t, 1, rowErr.Index)
	assert.Equal(t, "T2", rowErr.TransactionID)
}

func TestTransform_NullAmountRowIsNotParsed(t *testing.T) {
	bad := rawTx("T2", "ACC1", "garbage", 0)
	bad.Amount = nil

	out, _ := transform(t, []domain.RawTransaction{rawTx("T1", "ACC1", "2024-03-13T12:00:00Z", 10), bad})
	assert.Len(t, out, 1)
}

func TestTransform_CoercesScores(t *testing.T) {
	raw := rawTx("T1", "ACC1", "2024-03-13T12:00:00Z", 10)
	raw.SpendingDeviationScore = str("abc")
	raw.VelocityScore = str("2.5")
	raw.GeoAnomalyScore = str("")

	out, stats := transform(t, []domain.RawTransaction{raw})
	got := out[0]

	assert.Nil(t, got.SpendingDeviationScore)
	assert.Nil(t, got.GeoAnomalyScore)
	require.NotNil(t, got.VelocityScore)
	assert.Equal(t, 2.5, *got.VelocityScore)
	assert.Equal(t, 2.5, got.TransactionRiskScore)
	assert.Equal(t, 1, stats.CoercedScores)

	require.NotNil(t, got.VelocityAmountRatio)
	assert.InDelta(t, 2.5/math.Log(11), *got.VelocityAmountRatio, 1e-12)
}

func TestTransform_ZeroAmountHasNoVelocityRatio(t *testing.T) {
	raw := rawTx("T1", "ACC1", "2024-03-13T12:00:00Z", 0)
	raw.VelocityScore = str("1")

	out, _ := transform(t, []domain.RawTransaction{raw})
	require.NotNil(t, out[0].LogAmount)
	assert.Equal(t, 0.0, *out[0].LogAmount)
	assert.Nil(t, out[0].VelocityAmountRatio)
}

func TestTransform_NegativeAmountLeavesLogNull(t *testing.T) {
	raw := rawTx("T1", "ACC1", "2024-03-13T12:00:00Z", -5)
	raw.VelocityScore = str("1")

	out, stats := transform(t, []domain.RawTransaction{raw})
	assert.Nil(t, out[0].LogAmount)
	assert.Nil(t, out[0].VelocityAmountRatio)
	assert.Equal(t, 1, stats.InvalidLogAmount)
}

func TestTransform_LowercasesLocation(t *testing.T) {
	raw := rawTx("T1", "ACC1", "2024-03-13T12:00:00Z", 10)
	raw.Location = "New York"

	out, _ := transform(t, []domain.RawTransaction{raw})
	assert.Equal(t, "new york", out[0].Location)
	assert.Equal(t, "Alta", out[0].LocationRiskLevel)
}

func TestTransform_SingletonCohorts(t *testing.T) {
	out, _ := transform(t, []domain.RawTransaction{rawTx("T1", "ACC1", "2024-03-13T12:00:00Z", 10)})

	assert.Equal(t, 0, out[0].AccountAgeDays)
	assert.Equal(t, 1, out[0].SenderTxLastHour)
	assert.Equal(t, 1, out[0].DailyAmountRank)
	assert.Equal(t, 1, out[0].DailyDeviceVolume)
}

func TestTransform_EmptyInput(t *testing.T) {
	out, stats := transform(t, nil)
	assert.Empty(t, out)
	assert.Equal(t, Stats{}, stats)
}

func TestTransform_AccountAgeDays(t *testing.T) {
	out, _ := transform(t, []domain.RawTransaction{
		rawTx("T3", "ACC1", "2024-03-20T08:00:00Z", 10),
		rawTx("T1", "ACC1", "2024-03-10T23:59:00Z", 10),
		rawTx("T2", "ACC1", "2024-03-11T00:01:00Z", 10),
		rawTx("T4", "ACC2", "2024-03-20T08:00:00Z", 10),
	})

	ages := map[string]int{}
	for _, row := range out {
		ages[row.TransactionID] = row.AccountAgeDays
	}
	// Calendar-day difference, not elapsed 24h periods.
	assert.Equal(t, map[string]int{"T1": 0, "T2": 1, "T3": 10, "T4": 0}, ages)
}

func TestTransform_DailyDeviceVolume(t *testing.T) {
	web := func(id, ts string) domain.RawTransaction {
		r := rawTx(id, id, ts, 10)
		r.DeviceUsed = "web"
		return r
	}
	out, _ := transform(t, []domain.RawTransaction{
		web("A", "2024-03-13T01:00:00Z"),
		web("B", "2024-03-13T22:00:00Z"),
		web("C", "2024-03-14T01:00:00Z"),
		rawTx("D", "D", "2024-03-13T05:00:00Z", 10),
	})

	assert.Equal(t, 2, out[0].DailyDeviceVolume)
	assert.Equal(t, 2, out[1].DailyDeviceVolume)
	assert.Equal(t, 1, out[2].DailyDeviceVolume)
	assert.Equal(t, 1, out[3].DailyDeviceVolume)
}

func TestTransform_SenderWindowIsRowBounded(t *testing.T) {
	const n = 150
	raws := make([]domain.RawTransaction, 0, n)
	// Reverse order so the window has to sort by timestamp.
	for i := n - 1; i >= 0; i-- {
		ts := fmt.Sprintf("2024-03-13T%02d:%02d:00Z", i/60, i%60)
		raws = append(raws, rawTx(fmt.Sprintf("T%03d", i), "ACC1", ts, 10))
	}

	out, _ := transform(t, raws)
	counts := map[string]int{}
	for _, row := range out {
		counts[row.TransactionID] = row.SenderTxLastHour
	}

	assert.Equal(t, 1, counts["T000"])
	assert.Equal(t, 50, counts["T049"])
	assert.Equal(t, 101, counts["T100"])
	assert.Equal(t, 101, counts["T149"])
}

func TestTransform_DailyAmountRank(t *testing.T) {
	out, _ := transform(t, []domain.RawTransaction{
		rawTx("A", "X", "2024-03-13T01:00:00Z", 100),
		rawTx("B", "Y", "2024-03-13T02:00:00Z", 300),
		rawTx("C", "Z", "2024-03-13T03:00:00Z", 300),
		rawTx("D", "X", "2024-03-13T04:00:00Z", 50),
		rawTx("E", "X", "2024-03-14T04:00:00Z", 5),
	})

	ranks := map[string]int{}
	for _, row := range out {
		ranks[row.TransactionID] = row.DailyAmountRank
	}
	assert.Equal(t, map[string]int{"A": 3, "B": 1, "C": 1, "D": 4, "E": 1}, ranks)
}

func TestTransform_IsDeterministic(t *testing.T) {
	var raws []domain.RawTransaction
	for i := 0; i < 500; i++ {
		r := rawTx(fmt.Sprintf("T%d", i), fmt.Sprintf("ACC%d", i%7),
			fmt.Sprintf("2024-03-%02dT%02d:%02d:00Z", 1+i%28, i%24, i%60), float64((i*37)%1200))
		r.DeviceUsed = []string{"mobile", "web", "pos", "other"}[i%4]
		r.VelocityScore = str(fmt.Sprintf("%d.5", i%3))
		raws = append(raws, r)
	}

	first, _, err := NewEngine(WithConcurrency(1)).Transform(context.Background(), raws)
	require.NoError(t, err)
	second, _, err := NewEngine(WithConcurrency(8)).Transform(context.Background(), raws)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestTransform_NonFiniteScoresAreCoerced(t *testing.T) {
	for _, v := range []string{"NaN", "inf", "-Infinity", "+Inf"} {
		t.Run(v, func(t *testing.T) {
			raw := rawTx("T1", "ACC1", "2024-03-13T12:00:00Z", 100)
			raw.VelocityScore = str(v)
			raw.TimeSinceLastTransaction = str(v)
			raw.GeoAnomalyScore = str("0.5")

			out, stats := transform(t, []domain.RawTransaction{raw})
			require.Len(t, out, 1)
			got := out[0]

			assert.Equal(t, 2, stats.CoercedScores)
			assert.Nil(t, got.VelocityScore)
			assert.Nil(t, got.TimeSinceLastTransaction)
			assert.Nil(t, got.AmountPerTime)
			assert.Nil(t, got.VelocityAmountRatio)
			assert.Equal(t, 0.5, got.TransactionRiskScore)
		})
	}
}

func TestTransform_DropsNonFiniteAmount(t *testing.T) {
	nan := rawTx("T2", "ACC1", "2024-03-13T13:00:00Z", 0)
	nan.Amount = f64(math.NaN())
	inf := rawTx("T3", "ACC1", "2024-03-13T14:00:00Z", 0)
	inf.Amount = f64(math.Inf(1))

	out, stats := transform(t, []domain.RawTransaction{
		rawTx("T1", "ACC1", "2024-03-13T12:00:00Z", 10),
		nan,
		inf,
	})

	require.Len(t, out, 1)
	assert.Equal(t, "T1", out[0].TransactionID)
	assert.Equal(t, 2, stats.RowsDropped)
}

func TestTransform_LogsRecoveriesWithTransactionID(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(buf).Level(zerolog.DebugLevel))

	raw := rawTx("T9", "ACC1", "2024-03-13T12:00:00Z", -5)
	raw.SpendingDeviationScore = str("abc")

	_, _, err := NewEngine().Transform(ctx, []domain.RawTransaction{raw})
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, `"transaction_id":"T9"`)
	assert.Contains(t, output, `"field":"spending_deviation_score"`)
	assert.Contains(t, output, "log_amount undefined")
}
