package sorel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/anicoll/sorel-connect/internal/pkg/model"
)

// disabledValue is what the portal reports for a disabled channel.
const disabledValue = "--"

var (
	temperatureRe = regexp.MustCompile(`^(-?\d+)°C$`)
	relayOnOffRe  = regexp.MustCompile(`^\d+_(OFF|ON)$`)
	relayPercent  = regexp.MustCompile(`^\d+_(\d+)%$`)
	powerRe       = regexp.MustCompile(`^(\d+(?:\.\d+)?)(k)?W$`)
	energyRe      = regexp.MustCompile(`^(\d+(?:\.\d+)?)([kM])?Wh$`)
)

type RawStatus int

const (
	RawPresent RawStatus = iota
	// RawDisabled means the channel reported "--".
	RawDisabled
	// RawMissing means the payload had no response.val field.
	RawMissing
)

type RawValue struct {
	Value  string
	Status RawStatus
}

func (r RawValue) Present() bool {
	return r.Status == RawPresent
}

// ExtractRawValue reads response.val from a JSON payload. The content type
// of portal responses is text/html, so only the body is looked at. Any JSON
// without an object at response.val is reported as RawMissing.
func ExtractRawValue(body []byte) (RawValue, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return RawValue{}, fmt.Errorf("decoding value payload: %w", err)
	}
	root, _ := payload.(map[string]any)
	response, _ := root["response"].(map[string]any)
	v, ok := response["val"]
	if !ok || v == nil {
		return RawValue{Status: RawMissing}, nil
	}

	var val string
	switch v := v.(type) {
	case string:
		val = v
	case json.Number:
		val = v.String()
	default:
		// other values are kept in their JSON form.
		data, err := json.Marshal(v)
		if err != nil {
			return RawValue{}, fmt.Errorf("encoding value: %w", err)
		}
		val = string(data)
	}
	if val == disabledValue {
		return RawValue{Status: RawDisabled}, nil
	}
	return RawValue{Value: val, Status: RawPresent}, nil
}

// ParseTemperature parses "<int>°C". Sensor values have a fixed shape, so a
// mismatch is reported as an error.
func ParseTemperature(raw string) (float64, error) {
	match := temperatureRe.FindStringSubmatch(raw)
	if match == nil {
		return 0, fmt.Errorf("%w: temperature %q", ErrMalformedValue, raw)
	}
	v, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: temperature %q", ErrMalformedValue, raw)
	}
	return v, nil
}

// ParseRelayState classifies a relay value as on/off ("<n>_ON") or a
// percentage ("<n>_<pct>%"). ok is false for any other shape.
func ParseRelayState(raw string) (model.Value, model.Kind, bool) {
	if match := relayOnOffRe.FindStringSubmatch(raw); match != nil {
		if match[1] == "ON" {
			return model.StateValue(model.StateOn), model.KindOnOff, true
		}
		return model.StateValue(model.StateOff), model.KindOnOff, true
	}
	if match := relayPercent.FindStringSubmatch(raw); match != nil {
		v, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			return model.Value{}, "", false
		}
		return model.Number(v), model.KindPercentage, true
	}
	return model.Value{}, "", false
}

// ParsePower parses "<num>W" or "<num>kW" into watts.
func ParsePower(raw string) (float64, bool) {
	match := powerRe.FindStringSubmatch(raw)
	if match == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	if match[2] == "k" {
		return v * 1000, true
	}
	return v, true
}

// ParseEnergy parses "<num>Wh", "<num>kWh" or "<num>MWh" into kWh.
func ParseEnergy(raw string) (float64, bool) {
	match := energyRe.FindStringSubmatch(raw)
	if match == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	switch match[2] {
	case "":
		return roundTo(v/1000, 3), true
	case "M":
		return v * 1000, true
	}
	return v, true
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
