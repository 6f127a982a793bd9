package pipeline

import (
	"errors"

	"riskwatch/pkg/models"
)

// AlertWriter writes alert outputs.
type AlertWriter interface {
	WriteAlerts(alerts []*models.Alert) error
	Close() error
}

// FanOut writes every batch to each writer in order. A failed batch is
// retried as a whole, so writers that already accepted it may see it twice.
type FanOut []AlertWriter

// WriteAlerts writes the batch to all writers and joins their errors.
func (f FanOut) WriteAlerts(alerts []*models.Alert) error {
	var errs []error
	for _, w := range f {
		if w == nil {
			continue
		}
		if err := w.WriteAlerts(alerts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all writers.
func (f FanOut) Close() error {
	var errs []error
	for _, w := range f {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
