// Package features derives the enriched fraud-modeling dataset from a raw
// transaction snapshot.
//
// Transform runs in two phases. The per-row phase (temporal decomposition,
// bucketing, risk scoring) is a pure map and runs concurrently. The cohort
// phase needs every surviving row: it indexes rows by sender, by
// (device, date) and by date, computes each window per cohort and writes the
// values back to the member rows.
package features

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/fraud-features/internal/domain"
	"github.com/dvloznov/fraud-features/internal/logger"
)

// RowError reports the raw row that made a run fail.
type RowError struct {
	Index         int // position in the raw input
	TransactionID string
	Err           error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d (transaction_id=%q): %v", e.Index, e.TransactionID, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Stats summarizes one Transform call.
type Stats struct {
	RowsIn           int
	RowsDropped      int // NULL or non-finite amount
	RowsOut          int
	CoercedScores    int // non-numeric score values turned into NULL
	InvalidLogAmount int // amount <= -1, log_amount left NULL
}

// Engine computes enriched rows. It holds no state between calls.
type Engine struct {
	concurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithConcurrency caps the goroutines used by the per-row phase.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewEngine creates an Engine. Concurrency defaults to GOMAXPROCS.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{concurrency: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transform maps the raw snapshot to the enriched snapshot. Rows with a NULL
// or non-finite amount are dropped; the remaining rows keep their input order. An
// unparseable timestamp fails the whole call and no rows are returned.
func (e *Engine) Transform(ctx context.Context, raws []domain.RawTransaction) ([]domain.EnrichedTransaction, Stats, error) {
	log := logger.FromContext(ctx)
	stats := Stats{RowsIn: len(raws)}

	kept := make([]int, 0, len(raws))
	for i := range raws {
		if raws[i].Amount == nil || !isFinite(*raws[i].Amount) {
			continue
		}
		kept = append(kept, i)
	}
	stats.RowsDropped = len(raws) - len(kept)

	out := make([]domain.EnrichedTransaction, len(kept))
	members := make([]member, len(kept))

	chunks := e.concurrency
	if chunks > len(kept) {
		chunks = len(kept)
	}
	chunkStats := make([]Stats, chunks)

	g, gctx := errgroup.WithContext(ctx)
	for c := 0; c < chunks; c++ {
		c := c
		lo, hi := c*len(kept)/chunks, (c+1)*len(kept)/chunks
		g.Go(func() error {
			for pos := lo; pos < hi; pos++ {
				if (pos-lo)%1024 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				idx := kept[pos]
				row, m, err := enrichRow(&raws[idx], &chunkStats[c], log)
				if err != nil {
					return &RowError{Index: idx, TransactionID: raws[idx].TransactionID, Err: err}
				}
				out[pos] = row
				members[pos] = m
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, fmt.Errorf("Transform: %w", err)
	}
	for _, cs := range chunkStats {
		stats.CoercedScores += cs.CoercedScores
		stats.InvalidLogAmount += cs.InvalidLogAmount
	}

	windows := buildCohorts(members).compute()
	for i := range out {
		out[i].AccountAgeDays = windows.accountAgeDays[i]
		out[i].DailyDeviceVolume = windows.dailyDeviceVolume[i]
		out[i].SenderTxLastHour = windows.senderTxLastHour[i]
		out[i].DailyAmountRank = windows.dailyAmountRank[i]
	}
	stats.RowsOut = len(out)

	if stats.CoercedScores > 0 || stats.InvalidLogAmount > 0 {
		log.Warn().
			Int("coerced_scores", stats.CoercedScores).
			Int("invalid_log_amount", stats.InvalidLogAmount).
			Msg("Data-quality values coerced to NULL")
	}
	log.Info().
		Int("rows_in", stats.RowsIn).
		Int("rows_dropped", stats.RowsDropped).
		Int("rows_out", stats.RowsOut).
		Msg("Feature transformation completed")

	return out, stats, nil
}

// enrichRow computes every per-row feature and the fields the cohort phase
// needs. raw.Amount must be non-nil and finite.
func enrichRow(raw *domain.RawTransaction, stats *Stats, log zerolog.Logger) (domain.EnrichedTransaction, member, error) {
	ts, err := parseTimestamp(raw.Timestamp)
	if err != nil {
		return domain.EnrichedTransaction{}, member{}, err
	}
	tm := decompose(ts)
	amount := *raw.Amount

	cast := func(field string, v *string) *float64 {
		f, ok := SafeCast(v)
		if !ok {
			stats.CoercedScores++
			log.Debug().
				Str("transaction_id", raw.TransactionID).
				Str("field", field).
				Str("value", *v).
				Msg("Score coerced to NULL")
		}
		return f
	}
	tslt := cast("time_since_last_transaction", raw.TimeSinceLastTransaction)
	deviation := cast("spending_deviation_score", raw.SpendingDeviationScore)
	velocity := cast("velocity_score", raw.VelocityScore)
	geo := cast("geo_anomaly_score", raw.GeoAnomalyScore)

	logAmount := LogAmount(amount)
	if logAmount == nil {
		stats.InvalidLogAmount++
		log.Debug().
			Str("transaction_id", raw.TransactionID).
			Float64("amount", amount).
			Msg("log_amount undefined, left NULL")
	}

	signals := EvaluateRiskSignals(amount, raw.DeviceUsed, tm.hour, geo)
	fl := indicatorFlags(raw.PaymentChannel, raw.DeviceUsed)

	row := domain.EnrichedTransaction{
		TransactionID: raw.TransactionID,
		SenderAccount: raw.SenderAccount,
		Timestamp:     ts,
		Date:          tm.date,

		Year:         tm.year,
		Month:        tm.month,
		Day:          tm.day,
		DayOfWeek:    tm.dayOfWeek,
		Hour:         tm.hour,
		DayName:      DayName(tm.dayOfWeek),
		Quarter:      tm.quarter,
		WeekOfMonth:  tm.weekOfMonth,
		IsEndOfMonth: tm.isEndOfMonth,
		HourBin:      HourBin(tm.hour),
		WeekPart:     WeekPart(tm.dayOfWeek),
		IsNight:      boolToInt(isNightHour(tm.hour)),
		IsWeekend:    boolToInt(isWeekend(tm.dayOfWeek)),

		IsFraudNum: boolToInt(raw.IsFraud),

		Amount:           amount,
		TransactionType:  raw.TransactionType,
		MerchantCategory: raw.MerchantCategory,
		Location:         strings.ToLower(raw.Location),
		DeviceUsed:       raw.DeviceUsed,
		PaymentChannel:   raw.PaymentChannel,

		TimeSinceLastTransaction: tslt,
		SpendingDeviationScore:   deviation,
		VelocityScore:            velocity,
		GeoAnomalyScore:          geo,

		AmountBin:             AmountBin(amount),
		DeviceTypeCategory:    DeviceTypeCategory(raw.DeviceUsed),
		MerchantCategoryGroup: MerchantCategoryGroup(raw.MerchantCategory),
		LocationRiskLevel:     LocationRiskLevel(raw.Location),

		IsCard:         fl.isCard,
		IsACH:          fl.isACH,
		IsUPI:          fl.isUPI,
		IsWireTransfer: fl.isWireTransfer,
		IsPOS:          fl.isPOS,
		IsWeb:          fl.isWeb,
		IsMobile:       fl.isMobile,

		RiesgoTransaccion:    signals.Level(),
		LogAmount:            logAmount,
		TransactionRiskScore: TransactionRiskScore(geo, velocity, deviation),
		RiskSignalsCount:     signals.Count(),
		AmountZScore:         AmountZScore(amount),
		AmountPerTime:        SafeDivide(&amount, tslt),
		ChannelDeviceRisk:    ChannelDeviceRisk(raw.PaymentChannel, raw.DeviceUsed),
		VelocityAmountRatio:  SafeDivide(velocity, logAmount),
	}

	m := member{
		transactionID: raw.TransactionID,
		account:       raw.SenderAccount,
		device:        raw.DeviceUsed,
		timestamp:     ts,
		date:          tm.date,
		amount:        amount,
	}
	return row, m, nil
}
