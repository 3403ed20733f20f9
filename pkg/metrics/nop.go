package metrics

import "CoinFlow/internal/domain/models"

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordFetch(string, string, float64)             {}
func (Nop) RecordCache(bool)                                {}
func (Nop) RecordAggregation(string, float64, float64, int) {}
func (Nop) RecordBreakerState(string, bool)                 {}
func (Nop) RecordForecast(string, models.ModelType)         {}
func (Nop) RecordForecastError(models.ModelType, float64)   {}
func (Nop) RecordAlertTriggered(string)                     {}
func (Nop) RecordNotifyFailure(string)                      {}
func (Nop) RecordLatency(string, float64)                   {}
