package features

import "strings"

// AmountBin buckets an amount. Each band is closed below and open above.
func AmountBin(amount float64) string {
	switch {
	case amount < 50:
		return AmountBinUnder50
	case amount < 200:
		return AmountBin50To200
	case amount < 1000:
		return AmountBin200To1000
	default:
		return AmountBinOver1000
	}
}

// DeviceTypeCategory groups device_used.
func DeviceTypeCategory(device string) string {
	switch device {
	case DeviceMobile:
		return DeviceCategoryMobile
	case DeviceWeb:
		return DeviceCategoryWeb
	default:
		return DeviceCategoryPhysical
	}
}

// MerchantCategoryGroup groups merchant_category.
func MerchantCategoryGroup(category string) string {
	switch {
	case digitalMerchants[category]:
		return MerchantGroupDigital
	case hybridMerchants[category]:
		return MerchantGroupHybrid
	default:
		return MerchantGroupTraditional
	}
}

// LocationRiskLevel maps a location to its tier, ignoring case.
func LocationRiskLevel(location string) string {
	loc := strings.ToLower(location)
	switch {
	case highRiskLocations[loc]:
		return LocationRiskHigh
	case mediumRiskLocations[loc]:
		return LocationRiskMedium
	default:
		return LocationRiskLow
	}
}

// flags holds the one-hot indicators; they are computed independently.
type flags struct {
	isCard, isACH, isUPI, isWireTransfer int
	isPOS, isWeb, isMobile               int
}

func indicatorFlags(channel, device string) flags {
	return flags{
		isCard:         boolToInt(channel == ChannelCard),
		isACH:          boolToInt(channel == ChannelACH),
		isUPI:          boolToInt(channel == ChannelUPI),
		isWireTransfer: boolToInt(channel == ChannelWireTransfer),
		isPOS:          boolToInt(device == DevicePOS),
		isWeb:          boolToInt(device == DeviceWeb),
		isMobile:       boolToInt(device == DeviceMobile),
	}
}
