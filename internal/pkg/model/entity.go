package model

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
)

type Kind string

func (k Kind) String() string {
	return string(k)
}

const (
	KindTemperature Kind = "temperature"
	KindPercentage  Kind = "percent"
	KindOnOff       Kind = "on_off"
	KindPower       Kind = "power"
	KindEnergy      Kind = "energy"
)

// Kinds lists every entity kind in catalog iteration order.
var Kinds = []Kind{
	KindTemperature,
	KindPercentage,
	KindOnOff,
	KindPower,
	KindEnergy,
}

type Period string

func (p Period) String() string {
	return string(p)
}

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
	PeriodTotal Period = "total"
)

// Resource is the portal endpoint family an entity is read from.
type Resource string

const (
	ResourceSensors Resource = "sensors"
	ResourceHeat    Resource = "heat"
	ResourceRelays  Resource = "relays"
)

type Source struct {
	Resource Resource `json:"resource"`
	ID       int      `json:"id"`
}

// Entity is a discovered monitoring point. Period is only set for energy entities.
type Entity struct {
	UniqueID string `json:"unique_id"`
	Kind     Kind   `json:"kind"`
	LocalID  string `json:"local_id"`
	Name     string `json:"name"`
	Period   Period `json:"period,omitempty"`
	Source   Source `json:"source"`
}

func NewEntity(installationID string, kind Kind, localID, name string, source Source) Entity {
	return Entity{
		UniqueID: fmt.Sprintf("%s.%s", installationID, localID),
		Kind:     kind,
		LocalID:  localID,
		Name:     name,
		Source:   source,
	}
}

func NewEnergyEntity(installationID, localID, name string, period Period, source Source) Entity {
	e := NewEntity(installationID, KindEnergy, localID, name, source)
	e.Period = period
	return e
}

// Catalog groups discovered entities by kind and local id.
// Kinds with no discovered entity are absent from the map.
type Catalog map[Kind]map[string]Entity

// Add stores the entity, replacing any entity of the same kind and local id.
func (c Catalog) Add(e Entity) {
	if _, ok := c[e.Kind]; !ok {
		c[e.Kind] = make(map[string]Entity)
	}
	c[e.Kind][e.LocalID] = e
}

func (c Catalog) Get(localID string) (Entity, bool) {
	for _, entities := range c {
		if e, ok := entities[localID]; ok {
			return e, true
		}
	}
	return Entity{}, false
}

func (c Catalog) Len() int {
	return lo.SumBy(lo.Values(c), func(entities map[string]Entity) int {
		return len(entities)
	})
}

// Entities returns every entity ordered by kind, then by source id.
func (c Catalog) Entities() []Entity {
	out := make([]Entity, 0, c.Len())
	for _, kind := range Kinds {
		entities := lo.Values(c[kind])
		slices.SortFunc(entities, func(a, b Entity) int {
			if a.Source.ID != b.Source.ID {
				return a.Source.ID - b.Source.ID
			}
			return strings.Compare(a.LocalID, b.LocalID)
		})
		out = append(out, entities...)
	}
	return out
}

