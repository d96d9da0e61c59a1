package model

import (
	"math"
	"time"
)

const (
	UnitCelsius       = "°C"
	UnitPercent       = "%"
	UnitWatt          = "W"
	UnitKiloWattHour  = "kWh"
	UnitMegaWattHour  = "MWh"
	StateClassMeasure = "measurement"
	StateClassTotal   = "total"
	StateClassTotalUp = "total_increasing"
)

// Reading is an entity value prepared for display.
type Reading struct {
	Entity      Entity     `json:"entity"`
	Value       *Value     `json:"value"`
	Unit        string     `json:"unit_of_measurement,omitempty"`
	DeviceClass string     `json:"device_class,omitempty"`
	StateClass  string     `json:"state_class,omitempty"`
	Precision   *int       `json:"precision,omitempty"`
	LastReset   *time.Time `json:"last_reset,omitempty"`
}

// Render turns the entity's entry in values into a Reading. Value is nil when
// the mapping holds nothing for the entity.
func Render(e Entity, values ValueMapping, now time.Time) Reading {
	r := Reading{Entity: e}
	if v, ok := values[e.LocalID]; ok {
		r.Value = &v
	}

	switch e.Kind {
	case KindTemperature:
		r.Unit = UnitCelsius
		r.DeviceClass = "temperature"
		r.StateClass = StateClassMeasure
	case KindPercentage:
		r.Unit = UnitPercent
		r.StateClass = StateClassMeasure
		r.Precision = precision(0)
	case KindOnOff:
		r.DeviceClass = "running"
	case KindPower:
		r.Unit = UnitWatt
		r.DeviceClass = "power"
		r.StateClass = StateClassMeasure
		r.Precision = precision(0)
	case KindEnergy:
		renderEnergy(&r, now)
	}
	return r
}

func renderEnergy(r *Reading, now time.Time) {
	r.DeviceClass = "energy"
	r.Precision = precision(3)
	r.Unit = UnitKiloWattHour
	r.StateClass = StateClassTotal

	switch r.Entity.Period {
	case PeriodTotal:
		r.StateClass = StateClassTotalUp
		r.Unit = UnitMegaWattHour
	case PeriodYear:
		r.Unit = UnitMegaWattHour
	}

	if r.Unit == UnitMegaWattHour && r.Value != nil {
		if f, ok := r.Value.Float(); ok {
			v := Number(math.Round(f) / 1000)
			r.Value = &v
		}
	}

	if anchor, ok := LastReset(r.Entity.Period, now); ok {
		r.LastReset = &anchor
	}
}

// LastReset returns the start of the accumulation window of an energy period.
// Total has no window.
func LastReset(p Period, now time.Time) (time.Time, bool) {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	switch p {
	case PeriodDay:
		return today, true
	case PeriodWeek:
		// Monday
		offset := (int(today.Weekday()) + 6) % 7
		return today.AddDate(0, 0, -offset), true
	case PeriodMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, now.Location()), true
	case PeriodYear:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, now.Location()), true
	}
	return time.Time{}, false
}

func precision(p int) *int {
	return &p
}
