package simulation

import (
	"fmt"
	"time"
)

// DataIntegrityError reports feed data the engine refuses to simulate over.
// It aborts the run; output emitted for earlier bar groups stays valid.
type DataIntegrityError struct {
	Timestamp  time.Time
	Instrument string
	Reason     string
}

func (e *DataIntegrityError) Error() string {
	if e.Instrument == "" {
		return fmt.Sprintf("data integrity: %s at %s", e.Reason, e.Timestamp.Format(time.RFC3339))
	}
	return fmt.Sprintf("data integrity: %s for %s at %s", e.Reason, e.Instrument, e.Timestamp.Format(time.RFC3339))
}

// ConfigurationError reports invalid run parameters. Raised before any bar is processed.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s %s", e.Field, e.Reason)
}

func integrityErr(ts time.Time, instrument, format string, a ...any) error {
	return &DataIntegrityError{Timestamp: ts, Instrument: instrument, Reason: fmt.Sprintf(format, a...)}
}
