package eventstudy

import (
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultEstimationPeriod      = 250
	DefaultGapPeriod             = 10
	DefaultMinObservations       = 30
	DefaultSignificanceThreshold = 0.05
	DefaultConcurrency           = 4
)

// DefaultWidths are the symmetric event-window half-widths in trading days
var DefaultWidths = []int{1, 3, 5, 10}

// Config is the immutable engine configuration. Engines and stage functions take it by value.
type Config struct {
	Widths                []int     `json:"widths" validate:"required,min=1,unique,dive,gt=0"`
	EstimationPeriod      int       `json:"estimation_period" validate:"gt=0"`
	GapPeriod             int       `json:"gap_period" validate:"gte=0"`
	MinObservations       int       `json:"min_observations" validate:"gte=3"`
	SignificanceThreshold float64   `json:"significance_threshold" validate:"gt=0,lt=1"`
	Weighting             Weighting `json:"weighting" validate:"oneof=auto supplied value equal"`
	DateMode              DateMode  `json:"date_mode" validate:"oneof=auto calendar trading"`
	Concurrency           int       `json:"concurrency" validate:"gte=1"`
	TestMethods           []Method  `json:"test_methods" validate:"required,min=1,unique,dive,gte=0,lte=2"`
}

// DefaultConfig returns the configuration used by the reference research design
func DefaultConfig() Config {
	return Config{
		Widths:                slices.Clone(DefaultWidths),
		EstimationPeriod:      DefaultEstimationPeriod,
		GapPeriod:             DefaultGapPeriod,
		MinObservations:       DefaultMinObservations,
		SignificanceThreshold: DefaultSignificanceThreshold,
		Weighting:             WeightingAuto,
		DateMode:              DateModeAuto,
		Concurrency:           DefaultConcurrency,
		TestMethods:           []Method{MarketModel},
	}
}

var configValidator = validator.New()

// Validate checks field ranges and the cross-field constraints the windows rely on
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return &ValidationError{Field: "Config", Message: "invalid engine configuration", Value: err.Error()}
	}
	if c.GapPeriod < c.MaxWidth() {
		return &ValidationError{
			Field:   "GapPeriod",
			Message: fmt.Sprintf("gap period %d overlaps the widest event window %d", c.GapPeriod, c.MaxWidth()),
			Value:   c.GapPeriod,
		}
	}
	if c.MinObservations > c.EstimationPeriod {
		return &ValidationError{
			Field:   "MinObservations",
			Message: "minimum observations exceed the estimation period",
			Value:   c.MinObservations,
		}
	}
	return nil
}

// normalized returns a copy with sorted, privately owned slices
func (c Config) normalized() Config {
	c.Widths = slices.Clone(c.Widths)
	slices.Sort(c.Widths)
	c.TestMethods = slices.Clone(c.TestMethods)
	slices.Sort(c.TestMethods)
	return c
}

// MaxWidth returns the widest configured event window
func (c Config) MaxWidth() int {
	if len(c.Widths) == 0 {
		return 0
	}
	return slices.Max(c.Widths)
}

// EstimationBounds returns the inclusive offset range of the estimation window
func (c Config) EstimationBounds() (first, last int) {
	return -(c.EstimationPeriod + c.GapPeriod), -(c.GapPeriod + 1)
}

// Offsets returns every offset the window builder emits, in ascending order
func (c Config) Offsets() []int {
	first, last := c.EstimationBounds()
	maxW := c.MaxWidth()
	offsets := make([]int, 0, c.EstimationPeriod+2*maxW+1)
	for o := first; o <= last; o++ {
		offsets = append(offsets, o)
	}
	for o := -maxW; o <= maxW; o++ {
		offsets = append(offsets, o)
	}
	return offsets
}
