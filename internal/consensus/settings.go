package consensus

import "time"

// Settings is the read-only configuration surface of the engine.
type Settings struct {
	Thresholds        ThresholdConfig
	Environment       string
	NoneVetoThreshold int
	StrictValidation  bool
	MaxVetoPerMinute  int
	Ranges            RangeLimits

	// Weights overrides the per-provider vote weight; absent providers weigh by confidence.
	Weights          map[string]float64
	ProviderTimeout  time.Duration
	FailureThreshold int
	ProviderCooldown time.Duration
	LogSuccesses     bool
}

// ThresholdConfig holds the deviation thresholds as fractions (0.2 == 20%).
type ThresholdConfig struct {
	Default    float64
	Production float64
	Lab        float64
	Dynamic    DynamicThreshold
}

// DynamicThreshold scales the threshold with atr/price.
type DynamicThreshold struct {
	Enabled    bool
	Multiplier float64
	Min        float64
	Max        float64
}

// RangeLimits bounds provider-supplied numerics.
type RangeLimits struct {
	LeverageMin float64
	LeverageMax float64
}

const (
	defaultDeviationThreshold = 0.20
	defaultNoneVetoThreshold  = 90
	defaultMaxVetoPerMinute   = 10
	defaultLeverageMin        = 3
	defaultLeverageMax        = 75
	defaultDynamicMultiplier  = 2.0
	defaultDynamicMin         = 0.05
	defaultDynamicMax         = 0.50
	defaultProviderTimeout    = 30 * time.Second
	defaultFailureThreshold   = 3
	defaultProviderCooldown   = 60 * time.Second
)

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Thresholds: ThresholdConfig{
			Default: defaultDeviationThreshold,
			Dynamic: DynamicThreshold{
				Multiplier: defaultDynamicMultiplier,
				Min:        defaultDynamicMin,
				Max:        defaultDynamicMax,
			},
		},
		NoneVetoThreshold: defaultNoneVetoThreshold,
		StrictValidation:  true,
		MaxVetoPerMinute:  defaultMaxVetoPerMinute,
		Ranges:            RangeLimits{LeverageMin: defaultLeverageMin, LeverageMax: defaultLeverageMax},
		ProviderTimeout:   defaultProviderTimeout,
		FailureThreshold:  defaultFailureThreshold,
		ProviderCooldown:  defaultProviderCooldown,
	}
}

func (s Settings) clone() Settings {
	if len(s.Weights) > 0 {
		w := make(map[string]float64, len(s.Weights))
		for k, v := range s.Weights {
			w[k] = v
		}
		s.Weights = w
	}
	return s
}
