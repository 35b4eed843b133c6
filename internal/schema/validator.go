package schema

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validator checks response records before they are persisted.
type Validator struct {
	validate  *validator.Validate
	maxFuture time.Duration
}

// ValidatorConfig holds configuration for the validator.
type ValidatorConfig struct {
	MaxFuture time.Duration
}

// DefaultValidatorConfig returns the default validator configuration.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxFuture: 5 * time.Minute,
	}
}

// NewValidator creates a new Validator with default configuration.
func NewValidator() *Validator {
	return NewValidatorWithConfig(DefaultValidatorConfig())
}

// NewValidatorWithConfig creates a new Validator with the specified configuration.
func NewValidatorWithConfig(cfg ValidatorConfig) *Validator {
	v := validator.New()

	v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return Category(fl.Field().String()).IsValid()
	})

	return &Validator{
		validate:  v,
		maxFuture: cfg.MaxFuture,
	}
}

// Validate validates a record. Confidence must lie in [0,1] and both
// descriptions must be present.
func (v *Validator) Validate(rec *ResponseRecord) error {
	if err := v.validate.Struct(rec); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if rec.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	if rec.Timestamp.After(time.Now().UTC().Add(v.maxFuture)) {
		return fmt.Errorf("timestamp in future: %v (max future: %v)", rec.Timestamp, v.maxFuture)
	}

	return nil
}

// ValidateEvent checks a detection event produced by a detector.
func (v *Validator) ValidateEvent(ev DetectionEvent) error {
	if !ev.Category.IsValid() {
		return fmt.Errorf("unknown category %q", ev.Category)
	}
	if ev.Confidence < 0 || ev.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range [0,1]", ev.Confidence)
	}
	if ev.Source == "" {
		return fmt.Errorf("source identifier is required")
	}
	return nil
}
