package lightwave

// Feature types reported by LinkPlus devices.
const (
	FeatureSwitch            = "switch"
	FeatureBulbSetup         = "bulbSetup"
	FeatureButtonPress       = "buttonPress"
	FeatureCurrentTime       = "currentTime"
	FeatureDate              = "date"
	FeatureDawnTime          = "dawnTime"
	FeatureDay               = "day"
	FeatureDiagnostics       = "diagnostics"
	FeatureDimLevel          = "dimLevel"
	FeatureDimSetup          = "dimSetup"
	FeatureDuskTime          = "duskTime"
	FeatureEnergy            = "energy"
	FeatureIdentify          = "identify"
	FeatureLocationLatitude  = "locationLatitude"
	FeatureLocationLongitude = "locationLongitude"
	FeatureMonth             = "month"
	FeatureMonthArray        = "monthArray"
	FeaturePeriodOfBroadcast = "periodOfBroadcast"
	FeaturePower             = "power"
	FeatureProtection        = "protection"
	FeatureReset             = "reset"
	FeatureRGBColor          = "rgbColor"
	FeatureTime              = "time"
	FeatureTimeZone          = "timeZone"
	FeatureUpgrade           = "upgrade"
	FeatureWeekday           = "weekday"
	FeatureWeekdayArray      = "weekdayArray"
	FeatureYear              = "year"
)
