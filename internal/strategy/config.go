package strategy

import "fmt"

// MinDividendYears is the shortest consecutive dividend history a growth
// rate is computed from.
const MinDividendYears = 3

// Weights of the sub-scores in the composite.
type Weights struct {
	Value    float64 `yaml:"value"`
	Dividend float64 `yaml:"dividend"`
	Health   float64 `yaml:"health"`
}

// Thresholds are the composite cut points of the decision labels.
type Thresholds struct {
	Buy   float64 `yaml:"buy"`
	Watch float64 `yaml:"watch"`
	Sell  float64 `yaml:"sell"`
}

// Band maps a metric linearly onto [0,1]: Best scores 1, Worst scores 0,
// values beyond either end are clipped.
type Band struct {
	Best  float64 `yaml:"best"`
	Worst float64 `yaml:"worst"`
}

// Apply returns the band score of x.
func (b Band) Apply(x float64) float64 {
	if b.Best == b.Worst {
		return 0
	}
	return clamp01((x - b.Worst) / (b.Best - b.Worst))
}

// ScreenConfig holds the dividend value screen limits.
type ScreenConfig struct {
	PBRMax       float64 `yaml:"pbr_max"`
	YieldMin     float64 `yaml:"yield_min"`
	MarketCapMin float64 `yaml:"market_cap_min"`
	NoCutYears   int     `yaml:"no_cut_years"`
}

// Config is the scoring policy. Every threshold and weight lives here.
type Config struct {
	Weights      Weights      `yaml:"weights"`
	Thresholds   Thresholds   `yaml:"thresholds"`
	TargetWeight float64      `yaml:"target_weight"`
	HealthFloor  float64      `yaml:"health_floor"`
	PE           Band         `yaml:"pe"`
	PB           Band         `yaml:"pb"`
	CAGR         Band         `yaml:"cagr"`
	GrowthYears  int          `yaml:"growth_years"`
	CutPenalty   float64      `yaml:"cut_penalty"`
	PayoutWarn   float64      `yaml:"payout_warn"`
	Screen       ScreenConfig `yaml:"screen"`
}

// DefaultConfig returns the policy used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Weights:      Weights{Value: 0.40, Dividend: 0.35, Health: 0.25},
		Thresholds:   Thresholds{Buy: 0.65, Watch: 0.45, Sell: 0.35},
		TargetWeight: 0.10,
		HealthFloor:  0.5,
		PE:           Band{Best: 8, Worst: 25},
		PB:           Band{Best: 0.6, Worst: 2.5},
		CAGR:         Band{Best: 0.10, Worst: -0.05},
		GrowthYears:  5,
		CutPenalty:   0.15,
		PayoutWarn:   0.80,
		Screen: ScreenConfig{
			PBRMax:       1.5,
			YieldMin:     0.025,
			MarketCapMin: 10e9,
			NoCutYears:   3,
		},
	}
}

// WithDefaults returns DefaultConfig for the zero Config and c otherwise.
// Partial policies are completed at load time, where an explicit zero can
// still be told apart from an absent key.
func (c Config) WithDefaults() Config {
	if c == (Config{}) {
		return DefaultConfig()
	}
	return c
}

// Validate checks that the thresholds are ordered and the weights usable.
func (c Config) Validate() error {
	t := c.Thresholds
	if !(t.Sell <= t.Watch && t.Watch <= t.Buy) {
		return fmt.Errorf("scoring thresholds must satisfy sell <= watch <= buy, got %.2f/%.2f/%.2f", t.Sell, t.Watch, t.Buy)
	}
	w := c.Weights
	if w.Value < 0 || w.Dividend < 0 || w.Health < 0 || w.Value+w.Dividend+w.Health == 0 {
		return fmt.Errorf("scoring weights must be non-negative with a positive sum")
	}
	if c.HealthFloor < 0 || c.HealthFloor > 1 {
		return fmt.Errorf("health_floor must be within [0,1], got %.2f", c.HealthFloor)
	}
	if c.TargetWeight <= 0 || c.TargetWeight > 1 {
		return fmt.Errorf("target_weight must be within (0,1], got %.2f", c.TargetWeight)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
