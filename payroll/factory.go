/*
factory.go - Strategy selection

PURPOSE:
  The strategy variant is a closed sum type resolved in exactly one
  place. Callers name a variant; anything unknown (including the retired
  "optimized" name) maps to Enhanced with a deprecation log line.

SEE ALSO:
  - strategy.go: the two variants' behavior
*/
package payroll

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/shiftwise/payroll-engine/config"
)

// Variant is the closed set of strategy selections.
type Variant string

const (
	VariantEnhanced Variant = "enhanced"
	VariantLegacy   Variant = "legacy"
)

// NewStrategy resolves a variant. Unknown names fall back to Enhanced.
func NewStrategy(v Variant, catalog DayCatalog, cfg config.Config, log zerolog.Logger) Strategy {
	loc := catalog.Location()
	switch v {
	case VariantEnhanced:
		return newEnhanced(catalog, cfg, loc)
	case VariantLegacy:
		return newLegacy(catalog, cfg, loc)
	default:
		log.Warn().Str("variant", string(v)).Msg("unknown payroll strategy variant, using enhanced")
		return newEnhanced(catalog, cfg, loc)
	}
}

// newEnhanced: full rest-window overtime layering plus compliance
// warnings. The default for every new computation.
func newEnhanced(catalog DayCatalog, cfg config.Config, loc *time.Location) *strategy {
	return &strategy{
		splitter:          NewSplitter(catalog, cfg),
		cfg:               cfg,
		loc:               loc,
		layerRestOvertime: true,
		emitCompliance:    true,
	}
}

// newLegacy reproduces the pre-layering scheme: rest-window hours pay a
// flat window multiplier and no compliance warnings are emitted. Kept for
// recomputing historical months under their original rules.
func newLegacy(catalog DayCatalog, cfg config.Config, loc *time.Location) *strategy {
	return &strategy{
		splitter:          NewSplitter(catalog, cfg),
		cfg:               cfg,
		loc:               loc,
		layerRestOvertime: false,
		emitCompliance:    false,
	}
}
