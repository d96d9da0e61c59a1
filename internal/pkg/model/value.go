package model

import (
	"encoding/json"
	"errors"
	"strconv"
)

type State string

const (
	StateOn  State = "on"
	StateOff State = "off"
)

// Value is either a number or an on/off state.
type Value struct {
	number float64
	state  State
}

func Number(f float64) Value {
	return Value{number: f}
}

func StateValue(s State) Value {
	return Value{state: s}
}

func (v Value) Float() (float64, bool) {
	if v.state != "" {
		return 0, false
	}
	return v.number, true
}

func (v Value) State() (State, bool) {
	return v.state, v.state != ""
}

func (v Value) IsOn() bool {
	return v.state == StateOn
}

func (v Value) String() string {
	if v.state != "" {
		return string(v.state)
	}
	return strconv.FormatFloat(v.number, 'f', -1, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.state != "" {
		return json.Marshal(string(v.state))
	}
	return json.Marshal(v.number)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch State(s) {
		case StateOn, StateOff:
			*v = StateValue(State(s))
			return nil
		}
		return errors.New("invalid state " + strconv.Quote(s))
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Number(f)
	return nil
}

// ValueMapping holds the latest value of each entity keyed by local id.
// A missing key means the entity produced no value this cycle.
type ValueMapping map[string]Value

func (m ValueMapping) Clone() ValueMapping {
	out := make(ValueMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
