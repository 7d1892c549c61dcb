package cost

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Tariff operation categories. Research categories are suffixed with the
// processor tier, e.g. "research/core".
const (
	CategoryExtract   = "extract"
	CategoryDiscovery = "discovery"
	CategoryEnrich    = "enrich"
	CategoryStatus    = "status"
	CategoryResult    = "result"
	CategorySynthesis = "synthesis"
)

// ResearchCategory returns the tariff category for a deep research call
// with the given processor tier.
func ResearchCategory(processor string) string {
	return "research/" + processor
}

// Tariff maps an operation category to a per-call USD estimate.
type Tariff struct {
	Rates       map[string]float64 `yaml:"rates"`
	DefaultRate float64            `yaml:"default_rate"`
}

// DefaultTariff returns the built-in per-call estimates.
func DefaultTariff() Tariff {
	return Tariff{
		Rates: map[string]float64{
			CategoryExtract:           0.015,
			ResearchCategory("lite"):  0.005,
			ResearchCategory("base"):  0.02,
			ResearchCategory("core"):  0.09,
			ResearchCategory("pro"):   0.45,
			ResearchCategory("ultra"): 2.25,
			CategoryDiscovery:         0.50,
			CategoryEnrich:            0.02,
			CategoryStatus:            0,
			CategoryResult:            0,
		},
		DefaultRate: 0.01,
	}
}

// Estimate returns the per-call estimate for a category. Unknown categories
// fall back to the default rate rather than erroring.
func (t Tariff) Estimate(category string) float64 {
	if rate, ok := t.Rates[category]; ok {
		return rate
	}
	return t.DefaultRate
}

// LoadTariff reads tariff overrides from a YAML file and merges them over
// the defaults. Categories absent from the file keep their built-in rates.
func LoadTariff(path string) (Tariff, error) {
	t := DefaultTariff()

	data, err := os.ReadFile(path)
	if err != nil {
		return t, eris.Wrapf(err, "cost: read tariff %s", path)
	}

	var override Tariff
	if err := yaml.Unmarshal(data, &override); err != nil {
		return t, eris.Wrap(err, "cost: parse tariff")
	}

	for category, rate := range override.Rates {
		t.Rates[category] = rate
	}
	if override.DefaultRate > 0 {
		t.DefaultRate = override.DefaultRate
	}
	return t, nil
}
