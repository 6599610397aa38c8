// Package validate checks a cleaned frame against the configured schema.
package validate

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/gbforecast/frame"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
)

// Column kinds accepted by Rule.Kind.
const (
	KindDatetime = "datetime"
	KindFloat    = "float"
	KindText     = "text"
)

// Rule describes one required column.
type Rule struct {
	Name     string
	Kind     string
	Nullable bool
	Min      *float64
	Max      *float64
}

// Schema is the full set of checks.
type Schema struct {
	Columns     []Rule
	Monotonic   bool
	UniqueIndex bool
}

// Validator checks frames against a Schema.
type Validator struct {
	schema Schema
	logger log.Logger
}

// New creates a Validator.
func New(schema Schema) *Validator {
	return &Validator{schema: schema, logger: log.GetLoggerWithName("validate")}
}

// Validate returns a ValidationError naming the first violated column and rule.
// An empty frame is valid.
func (v *Validator) Validate(f *frame.Frame) error {
	if f.Len() == 0 {
		v.logger.Warn("Validating empty frame")
		return nil
	}
	for _, rule := range v.schema.Columns {
		if err := v.checkColumn(f, rule); err != nil {
			v.logger.Error("Validation failed", err, log.ColumnKey, rule.Name)
			return err
		}
	}
	if f.HasIndex() && (v.schema.Monotonic || v.schema.UniqueIndex) {
		idx := f.Index()
		for i := 1; i < len(idx); i++ {
			if v.schema.UniqueIndex && idx[i].Equal(idx[i-1]) {
				return errors.NewValidationError(f.IndexName(), "duplicate timestamp", idx[i])
			}
			if v.schema.Monotonic && idx[i].Before(idx[i-1]) {
				return errors.NewValidationError(f.IndexName(), "timestamps are not monotonic increasing", fmt.Sprintf("row %d", i))
			}
		}
	}
	v.logger.Info("Validation passed", log.SamplesKey, f.Len(), log.ColumnsKey, f.Names())
	return nil
}

func (v *Validator) checkColumn(f *frame.Frame, rule Rule) error {
	switch rule.Kind {
	case KindDatetime:
		if f.HasIndex() && f.IndexName() == rule.Name {
			if !rule.Nullable {
				for i, t := range f.Index() {
					if t.IsZero() {
						return errors.NewValidationError(rule.Name, "missing timestamp", fmt.Sprintf("row %d", i))
					}
				}
			}
			return nil
		}
		if f.Has(rule.Name) {
			return errors.NewValidationError(rule.Name, "expected a parsed datetime index", f.Kind(rule.Name).String())
		}
		return errors.NewValidationError(rule.Name, "required column is missing", nil)
	case KindFloat:
		vals, ok := f.Float(rule.Name)
		if !ok {
			if f.Has(rule.Name) {
				return errors.NewValidationError(rule.Name, "expected float column", f.Kind(rule.Name).String())
			}
			return errors.NewValidationError(rule.Name, "required column is missing", nil)
		}
		for i, x := range vals {
			if math.IsNaN(x) {
				if !rule.Nullable {
					return errors.NewValidationError(rule.Name, "null value in non-nullable column", fmt.Sprintf("row %d", i))
				}
				continue
			}
			if rule.Min != nil && x < *rule.Min {
				return errors.NewValidationError(rule.Name, fmt.Sprintf("value below minimum %g", *rule.Min), x)
			}
			if rule.Max != nil && x > *rule.Max {
				return errors.NewValidationError(rule.Name, fmt.Sprintf("value above maximum %g", *rule.Max), x)
			}
		}
		return nil
	case KindText:
		vals, ok := f.Text(rule.Name)
		if !ok {
			if f.Has(rule.Name) {
				return errors.NewValidationError(rule.Name, "expected text column", f.Kind(rule.Name).String())
			}
			return errors.NewValidationError(rule.Name, "required column is missing", nil)
		}
		if !rule.Nullable {
			for i, s := range vals {
				if s == "" {
					return errors.NewValidationError(rule.Name, "null value in non-nullable column", fmt.Sprintf("row %d", i))
				}
			}
		}
		return nil
	default:
		return errors.NewValidationError(rule.Name, "unknown column kind", rule.Kind)
	}
}
