package bigquery

import (
	"context"
	"math"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/fraud-features/internal/domain"
)

// RawTransactionSource reads the current raw snapshot.
type RawTransactionSource interface {
	// ReadRawTransactions returns every row of the raw table.
	ReadRawTransactions(ctx context.Context) ([]domain.RawTransaction, error)
}

// EnrichedTransactionSink replaces the enriched snapshot.
type EnrichedTransactionSink interface {
	// ReplaceEnrichedTransactions overwrites the enriched table with rows in a
	// single job. The previous contents stay in place if the job fails.
	ReplaceEnrichedTransactions(ctx context.Context, rows []domain.EnrichedTransaction) error
}

// RawLoader loads raw CSV files from Cloud Storage into the raw table.
type RawLoader interface {
	// LoadRawFromGCS truncates the raw table and loads the given gs:// URIs
	// (wildcards allowed). Returns the number of rows loaded.
	LoadRawFromGCS(ctx context.Context, uris []string) (int64, error)
}

// RunRepository records transform runs in the run ledger.
type RunRepository interface {
	// StartRun inserts a run with status=RUNNING and returns its run_id.
	StartRun(ctx context.Context) (string, error)

	// MarkRunSucceeded sets status=SUCCESS, finished_ts and the row counts.
	MarkRunSucceeded(ctx context.Context, runID string, counts RunCounts) error

	// MarkRunFailed sets status=FAILED, finished_ts and error_message.
	MarkRunFailed(ctx context.Context, runID string, runErr error)
}

// SummaryReader reads aggregates of the enriched table.
type SummaryReader interface {
	// DailySummary returns per-day counts for the most recent days, newest first.
	DailySummary(ctx context.Context, days int) ([]DailySummaryRow, error)
}

// RunCounts are the row counts stored with a successful run.
type RunCounts struct {
	RowsRead    int64
	RowsDropped int64
	RowsWritten int64
}

// RawTransactionRow is the shape of the normalized raw-table query. Columns
// are read as text where the loader's autodetected type may vary.
type RawTransactionRow struct {
	TransactionID string              `bigquery:"transaction_id"`
	Timestamp     bigquery.NullString `bigquery:"timestamp"`
	SenderAccount bigquery.NullString `bigquery:"sender_account"`

	Amount bigquery.NullFloat64 `bigquery:"amount"`

	TransactionType  bigquery.NullString `bigquery:"transaction_type"`
	MerchantCategory bigquery.NullString `bigquery:"merchant_category"`
	Location         bigquery.NullString `bigquery:"location"`
	DeviceUsed       bigquery.NullString `bigquery:"device_used"`
	PaymentChannel   bigquery.NullString `bigquery:"payment_channel"`

	TimeSinceLastTransaction bigquery.NullString `bigquery:"time_since_last_transaction"`
	SpendingDeviationScore   bigquery.NullString `bigquery:"spending_deviation_score"`
	VelocityScore            bigquery.NullString `bigquery:"velocity_score"`
	GeoAnomalyScore          bigquery.NullString `bigquery:"geo_anomaly_score"`

	IsFraud bigquery.NullBool `bigquery:"is_fraud"`
}

// ToDomain converts the row into the engine's input type.
func (r *RawTransactionRow) ToDomain() domain.RawTransaction {
	raw := domain.RawTransaction{
		TransactionID:            r.TransactionID,
		Timestamp:                r.Timestamp.StringVal,
		SenderAccount:            r.SenderAccount.StringVal,
		TransactionType:          r.TransactionType.StringVal,
		MerchantCategory:         r.MerchantCategory.StringVal,
		Location:                 r.Location.StringVal,
		DeviceUsed:               r.DeviceUsed.StringVal,
		PaymentChannel:           r.PaymentChannel.StringVal,
		TimeSinceLastTransaction: nullStringPtr(r.TimeSinceLastTransaction),
		SpendingDeviationScore:   nullStringPtr(r.SpendingDeviationScore),
		VelocityScore:            nullStringPtr(r.VelocityScore),
		GeoAnomalyScore:          nullStringPtr(r.GeoAnomalyScore),
		IsFraud:                  r.IsFraud.Valid && r.IsFraud.Bool,
	}
	if r.Amount.Valid {
		amount := r.Amount.Float64
		raw.Amount = &amount
	}
	return raw
}

// EnrichedTransactionRow is one row of the enriched table. The json tags are
// used by the newline-delimited JSON load; the bigquery tags drive the schema.
type EnrichedTransactionRow struct {
	TransactionID string     `bigquery:"transaction_id" json:"transaction_id"`
	SenderAccount string     `bigquery:"sender_account" json:"sender_account"`
	Timestamp     time.Time  `bigquery:"timestamp" json:"timestamp"`
	TxDate        civil.Date `bigquery:"tx_date" json:"tx_date"`

	Year         int64  `bigquery:"year" json:"year"`
	Month        int64  `bigquery:"month" json:"month"`
	Day          int64  `bigquery:"day" json:"day"`
	DayOfWeek    int64  `bigquery:"day_of_week" json:"day_of_week"`
	Hour         int64  `bigquery:"hour" json:"hour"`
	DayName      string `bigquery:"day_name" json:"day_name"`
	IsNight      int64  `bigquery:"is_night" json:"is_night"`
	IsWeekend    int64  `bigquery:"is_weekend" json:"is_weekend"`
	IsFraudNum   int64  `bigquery:"is_fraud_num" json:"is_fraud_num"`
	Quarter      int64  `bigquery:"quarter" json:"quarter"`
	WeekOfMonth  int64  `bigquery:"week_of_month" json:"week_of_month"`
	IsEndOfMonth int64  `bigquery:"is_end_of_month" json:"is_end_of_month"`
	HourBin      string `bigquery:"hour_bin" json:"hour_bin"`
	WeekPart     string `bigquery:"week_part" json:"week_part"`

	Amount           float64 `bigquery:"amount" json:"amount"`
	TransactionType  string  `bigquery:"transaction_type" json:"transaction_type"`
	MerchantCategory string  `bigquery:"merchant_category" json:"merchant_category"`
	Location         string  `bigquery:"location" json:"location"`
	DeviceUsed       string  `bigquery:"device_used" json:"device_used"`
	PaymentChannel   string  `bigquery:"payment_channel" json:"payment_channel"`

	TimeSinceLastTransaction bigquery.NullFloat64 `bigquery:"time_since_last_transaction" json:"time_since_last_transaction"`
	SpendingDeviationScore   bigquery.NullFloat64 `bigquery:"spending_deviation_score" json:"spending_deviation_score"`
	VelocityScore            bigquery.NullFloat64 `bigquery:"velocity_score" json:"velocity_score"`
	GeoAnomalyScore          bigquery.NullFloat64 `bigquery:"geo_anomaly_score" json:"geo_anomaly_score"`

	AmountBin             string `bigquery:"amount_bin" json:"amount_bin"`
	DeviceTypeCategory    string `bigquery:"device_type_category" json:"device_type_category"`
	MerchantCategoryGroup string `bigquery:"merchant_category_group" json:"merchant_category_group"`
	RiesgoTransaccion     string `bigquery:"riesgo_transaccion" json:"riesgo_transaccion"`

	LogAmount            bigquery.NullFloat64 `bigquery:"log_amount" json:"log_amount"`
	TransactionRiskScore float64              `bigquery:"transaction_risk_score" json:"transaction_risk_score"`

	IsCard         int64 `bigquery:"is_card" json:"is_card"`
	IsACH          int64 `bigquery:"is_ach" json:"is_ach"`
	IsUPI          int64 `bigquery:"is_upi" json:"is_upi"`
	IsWireTransfer int64 `bigquery:"is_wire_transfer" json:"is_wire_transfer"`
	IsPOS          int64 `bigquery:"is_pos" json:"is_pos"`
	IsWeb          int64 `bigquery:"is_web" json:"is_web"`
	IsMobile       int64 `bigquery:"is_mobile" json:"is_mobile"`

	RiskSignalsCount  int64                `bigquery:"risk_signals_count" json:"risk_signals_count"`
	AmountZScore      float64              `bigquery:"amount_zscore" json:"amount_zscore"`
	AmountPerTime     bigquery.NullFloat64 `bigquery:"amount_per_time" json:"amount_per_time"`
	LocationRiskLevel string               `bigquery:"location_risk_level" json:"location_risk_level"`
	ChannelDeviceRisk int64                `bigquery:"channel_device_risk" json:"channel_device_risk"`

	AccountAgeDays      int64                `bigquery:"account_age_days" json:"account_age_days"`
	DailyDeviceVolume   int64                `bigquery:"daily_device_volume" json:"daily_device_volume"`
	SenderTxLastHour    int64                `bigquery:"sender_tx_last_hour" json:"sender_tx_last_hour"`
	DailyAmountRank     int64                `bigquery:"daily_amount_rank" json:"daily_amount_rank"`
	VelocityAmountRatio bigquery.NullFloat64 `bigquery:"velocity_amount_ratio" json:"velocity_amount_ratio"`
}

// NewEnrichedTransactionRow maps an engine output row to its table row.
func NewEnrichedTransactionRow(e *domain.EnrichedTransaction) *EnrichedTransactionRow {
	return &EnrichedTransactionRow{
		TransactionID: e.TransactionID,
		SenderAccount: e.SenderAccount,
		Timestamp:     e.Timestamp,
		TxDate:        e.Date,

		Year:         int64(e.Year),
		Month:        int64(e.Month),
		Day:          int64(e.Day),
		DayOfWeek:    int64(e.DayOfWeek),
		Hour:         int64(e.Hour),
		DayName:      e.DayName,
		IsNight:      int64(e.IsNight),
		IsWeekend:    int64(e.IsWeekend),
		IsFraudNum:   int64(e.IsFraudNum),
		Quarter:      int64(e.Quarter),
		WeekOfMonth:  int64(e.WeekOfMonth),
		IsEndOfMonth: int64(e.IsEndOfMonth),
		HourBin:      e.HourBin,
		WeekPart:     e.WeekPart,

		Amount:           e.Amount,
		TransactionType:  e.TransactionType,
		MerchantCategory: e.MerchantCategory,
		Location:         e.Location,
		DeviceUsed:       e.DeviceUsed,
		PaymentChannel:   e.PaymentChannel,

		TimeSinceLastTransaction: nullFloat(e.TimeSinceLastTransaction),
		SpendingDeviationScore:   nullFloat(e.SpendingDeviationScore),
		VelocityScore:            nullFloat(e.VelocityScore),
		GeoAnomalyScore:          nullFloat(e.GeoAnomalyScore),

		AmountBin:             e.AmountBin,
		DeviceTypeCategory:    e.DeviceTypeCategory,
		MerchantCategoryGroup: e.MerchantCategoryGroup,
		RiesgoTransaccion:     e.RiesgoTransaccion,

		LogAmount:            nullFloat(e.LogAmount),
		TransactionRiskScore: e.TransactionRiskScore,

		IsCard:         int64(e.IsCard),
		IsACH:          int64(e.IsACH),
		IsUPI:          int64(e.IsUPI),
		IsWireTransfer: int64(e.IsWireTransfer),
		IsPOS:          int64(e.IsPOS),
		IsWeb:          int64(e.IsWeb),
		IsMobile:       int64(e.IsMobile),

		RiskSignalsCount:  int64(e.RiskSignalsCount),
		AmountZScore:      e.AmountZScore,
		AmountPerTime:     nullFloat(e.AmountPerTime),
		LocationRiskLevel: e.LocationRiskLevel,
		ChannelDeviceRisk: int64(e.ChannelDeviceRisk),

		AccountAgeDays:      int64(e.AccountAgeDays),
		DailyDeviceVolume:   int64(e.DailyDeviceVolume),
		SenderTxLastHour:    int64(e.SenderTxLastHour),
		DailyAmountRank:     int64(e.DailyAmountRank),
		VelocityAmountRatio: nullFloat(e.VelocityAmountRatio),
	}
}

// EnrichedSchema is the enriched table schema inferred from
// EnrichedTransactionRow.
func EnrichedSchema() (bigquery.Schema, error) {
	return bigquery.InferSchema(EnrichedTransactionRow{})
}

// TransformRunRow represents one run in the run ledger.
type TransformRunRow struct {
	RunID string `bigquery:"run_id"` // REQUIRED

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Status       string `bigquery:"status"`        // RUNNING, SUCCESS, FAILED
	ErrorMessage string `bigquery:"error_message"` // NULLABLE

	RowsRead    bigquery.NullInt64 `bigquery:"rows_read"`    // NULLABLE
	RowsDropped bigquery.NullInt64 `bigquery:"rows_dropped"` // NULLABLE
	RowsWritten bigquery.NullInt64 `bigquery:"rows_written"` // NULLABLE

	EngineVersion string `bigquery:"engine_version"`
}

// DailySummaryRow is one day of the enriched-table summary used by inspect.
type DailySummaryRow struct {
	TxDate       civil.Date `bigquery:"tx_date"`
	Transactions int64      `bigquery:"transactions"`
	FraudCount   int64      `bigquery:"fraud_count"`
	HighRisk     int64      `bigquery:"high_risk"`
	MaxAmount    float64    `bigquery:"max_amount"`
}

func nullStringPtr(s bigquery.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.StringVal
	return &v
}

// nullFloat maps nil and non-finite values to NULL; JSON has no NaN or Inf.
func nullFloat(v *float64) bigquery.NullFloat64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return bigquery.NullFloat64{}
	}
	return bigquery.NullFloat64{Float64: *v, Valid: true}
}
