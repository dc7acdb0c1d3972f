package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// RawTransaction is one row of the raw snapshot as loaded from the datalake.
// This is a domain struct, not a BigQuery row; the raw reader maps the
// normalized query result into it.
type RawTransaction struct {
	TransactionID string
	Timestamp     string // unparsed; the engine parses it
	SenderAccount string

	Amount *float64 // nil rows are excluded from the enriched set

	TransactionType  string
	MerchantCategory string
	Location         string
	DeviceUsed       string // mobile, web, pos, other
	PaymentChannel   string // card, ach, upi, wire_transfer, other

	// Score columns arrive as text and are safe-cast by the engine.
	TimeSinceLastTransaction *string
	SpendingDeviationScore   *string
	VelocityScore            *string
	GeoAnomalyScore          *string

	IsFraud bool
}

// EnrichedTransaction is one row of the enriched snapshot. Nullable derived
// values are pointers; nil means NULL in the output table.
type EnrichedTransaction struct {
	TransactionID string
	SenderAccount string
	Timestamp     time.Time // UTC
	Date          civil.Date

	// Temporal decomposition
	Year         int
	Month        int
	Day          int
	DayOfWeek    int // 1=Sunday .. 7=Saturday
	Hour         int
	DayName      string
	Quarter      int
	WeekOfMonth  int
	IsEndOfMonth int
	HourBin      string
	WeekPart     string
	IsNight      int
	IsWeekend    int

	IsFraudNum int

	// Passthrough (location lower-cased)
	Amount           float64
	TransactionType  string
	MerchantCategory string
	Location         string
	DeviceUsed       string
	PaymentChannel   string

	TimeSinceLastTransaction *float64
	SpendingDeviationScore   *float64
	VelocityScore            *float64
	GeoAnomalyScore          *float64

	// Categorical bucketing
	AmountBin             string
	DeviceTypeCategory    string
	MerchantCategoryGroup string
	LocationRiskLevel     string

	IsCard         int
	IsACH          int
	IsUPI          int
	IsWireTransfer int
	IsPOS          int
	IsWeb          int
	IsMobile       int

	// Risk scoring
	RiesgoTransaccion    string
	LogAmount            *float64
	TransactionRiskScore float64
	RiskSignalsCount     int
	AmountZScore         float64
	AmountPerTime        *float64
	ChannelDeviceRisk    int
	VelocityAmountRatio  *float64

	// Cohort windows
	AccountAgeDays    int
	DailyDeviceVolume int
	SenderTxLastHour  int
	DailyAmountRank   int
}
