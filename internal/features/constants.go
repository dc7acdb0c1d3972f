package features

// Scoring parameters. These were fit against the historical fraud dataset the
// job was first built for and are not recomputed per run.
const (
	// HighAmountThreshold marks an amount as a risk signal when exceeded.
	HighAmountThreshold = 538.40

	// GeoAnomalyThreshold marks a geo anomaly score as a risk signal when exceeded.
	GeoAnomalyThreshold = 0.7

	// AmountZScoreMean and AmountZScoreStdDev standardize amount_zscore.
	AmountZScoreMean   = 500.0
	AmountZScoreStdDev = 600.0

	// SenderWindowPreceding is the number of preceding rows (per sender, by
	// timestamp) counted together with the current row in sender_tx_last_hour.
	SenderWindowPreceding = 100

	// NightLastHour is the last hour (inclusive) counted as night for is_night
	// and the risk signals. hour_bin uses its own bands.
	NightLastHour = 6

	// EndOfMonthFirstDay is the first day of month flagged by is_end_of_month.
	EndOfMonthFirstDay = 28
)

// Category labels emitted in the enriched table.
const (
	AmountBinUnder50   = "<50"
	AmountBin50To200   = "50-200"
	AmountBin200To1000 = "200-1000"
	AmountBinOver1000  = ">1000"

	DeviceCategoryMobile   = "Mobile"
	DeviceCategoryWeb      = "Web"
	DeviceCategoryPhysical = "Physical"

	MerchantGroupDigital     = "Digital"
	MerchantGroupHybrid      = "Hibrido"
	MerchantGroupTraditional = "Tradicional"

	LocationRiskHigh   = "Alta"
	LocationRiskMedium = "Media"
	LocationRiskLow    = "Baja"

	RiskHigh   = "ALTO"
	RiskMedium = "MEDIO"
	RiskLow    = "BAJO"

	HourBinEarlyMorning = "Madrugada"
	HourBinMorning      = "Mañana"
	HourBinMidday       = "Mediodía"
	HourBinAfternoon    = "Tarde"
	HourBinEvening      = "Noche"
	HourBinLateNight    = "Medianoche"

	WeekPartWeekend = "Fin de Semana"
	WeekPartWeekday = "Entre Semana"
)

// Raw categorical values the rule tables match on. Matching is exact.
const (
	DeviceMobile = "mobile"
	DeviceWeb    = "web"
	DevicePOS    = "pos"

	ChannelCard         = "card"
	ChannelACH          = "ach"
	ChannelUPI          = "upi"
	ChannelWireTransfer = "wire_transfer"
)

// dayNames is indexed by day_of_week (1=Sunday).
var dayNames = [8]string{
	"",
	"Domingo",
	"Lunes",
	"Martes",
	"Miércoles",
	"Jueves",
	"Viernes",
	"Sábado",
}

var (
	digitalMerchants = map[string]bool{"online": true, "travel": true}
	hybridMerchants  = map[string]bool{"entertainment": true, "retail": true}

	highRiskLocations   = map[string]bool{"new york": true, "singapore": true, "tokyo": true}
	mediumRiskLocations = map[string]bool{"dubai": true, "berlin": true, "toronto": true}
)
