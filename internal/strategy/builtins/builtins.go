package builtins

import "quantgym/internal/strategy"

// Default parameters.
const (
	DefaultShortWindow = 20
	DefaultLongWindow  = 50

	DefaultRSIPeriod = 14
	DefaultRSILow    = 30
	DefaultRSIHigh   = 70

	DefaultPairsWindow = 20
	DefaultEntryZ      = 2.0
	DefaultExitZ       = 0.5
)

// RegisterDefaults registers every builtin with its default parameters.
func RegisterDefaults(reg *strategy.Registry) {
	reg.Register(NewSMACross(DefaultShortWindow, DefaultLongWindow))
	reg.Register(NewRSIMeanRev(DefaultRSIPeriod, DefaultRSILow, DefaultRSIHigh))
	reg.Register(NewPairsZScore(DefaultPairsWindow, DefaultEntryZ, DefaultExitZ))
}
