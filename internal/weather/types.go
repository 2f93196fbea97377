package weather

import (
	"context"
	"time"
)

type Provider interface {
	Get(ctx context.Context) (*Data, error)
}

// Data is a single observation from a weather provider. Sunrise and Sunset
// carry the location's UTC offset. Condition, ConditionID and Clouds may be
// zero when the provider did not report them; callers treat that as unknown.
type Data struct {
	Provider       string    `json:"provider"`
	Condition      string    `json:"condition"`
	Description    string    `json:"description"`
	ConditionID    int       `json:"condition_id"`
	Clouds         int       `json:"clouds"`
	Sunrise        time.Time `json:"sunrise"`
	Sunset         time.Time `json:"sunset"`
	TimezoneOffset int       `json:"timezone_offset"`
	ObservedAt     time.Time `json:"observed_at"`
}

func (d *Data) HasSunTimes() bool {
	return d != nil && !d.Sunrise.IsZero() && !d.Sunset.IsZero()
}
