package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a scenario validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate validates the entire scenario configuration.
//
// Returns nil if valid, or a ValidationErrors containing all validation
// errors. Run ApplyDefaults first; unset optional fields fail otherwise.
func (c *ScenarioConfig) Validate() error {
	errs := &ValidationErrors{}

	validateLink(&c.Link, errs)

	if len(c.Streams) == 0 {
		errs.Add("streams", "at least one stream is required")
	}
	for name, stream := range c.Streams {
		validateStream(name, stream, errs)
	}

	if c.Duration < 0 {
		errs.Add("duration", "duration cannot be negative")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// validateLink validates the shared link configuration.
func validateLink(link *LinkConfig, errs *ValidationErrors) {
	if link.Rate != nil && *link.Rate < 0 {
		errs.Add("link.rate", "rate cannot be negative")
	}
	if link.Resolution <= 0 {
		errs.Add("link.resolution", "resolution must be greater than 0")
	} else if link.Resolution > 1000 {
		errs.Add("link.resolution", "resolution must be at most 1000 ticks per second")
	}
	if link.HighWater <= 0 {
		errs.Add("link.highWater", "highWater must be greater than 0")
	}
}

// validateStream validates a single stream configuration.
func validateStream(name string, stream *StreamConfig, errs *ValidationErrors) {
	prefix := fmt.Sprintf("streams.%s", name)

	if name == "" {
		errs.Add("streams", "stream names cannot be empty")
	}
	if stream == nil {
		errs.Add(prefix, "stream configuration is required")
		return
	}

	if stream.Bytes <= 0 {
		errs.Add(prefix+".bytes", "bytes must be greater than 0")
	}
	if stream.Chunk <= 0 {
		errs.Add(prefix+".chunk", "chunk must be greater than 0")
	}
	if stream.ProduceRate < 0 {
		errs.Add(prefix+".produceRate", "produceRate cannot be negative")
	}
	if stream.StartAfter < 0 {
		errs.Add(prefix+".startAfter", "startAfter cannot be negative")
	}
	if stream.AbortAfter < 0 {
		errs.Add(prefix+".abortAfter", "abortAfter cannot be negative")
	} else if stream.AbortAfter > stream.Bytes {
		errs.Add(prefix+".abortAfter", "abortAfter cannot exceed bytes")
	}
}
