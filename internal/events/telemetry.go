package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TelemetrySample is one metric reading from the "ns.instances.trans" topic.
type TelemetrySample struct {
	MetricName string
	Value      float64
	VduID      string
}

type telemetryBody struct {
	Metric *struct {
		Name  string          `json:"name"`
		Value json.RawMessage `json:"value"`
	} `json:"metric"`
	Mano *struct {
		Vdu *struct {
			ID string `json:"id"`
		} `json:"vdu"`
	} `json:"mano"`
}

// ParseTelemetry decodes a telemetry message. Values may be numbers or numeric strings.
func ParseTelemetry(value []byte) (TelemetrySample, error) {
	var body telemetryBody
	if err := json.Unmarshal(value, &body); err != nil {
		return TelemetrySample{}, fmt.Errorf("%w: telemetry body: %w", ErrMalformed, err)
	}
	if body.Metric == nil || body.Metric.Name == "" {
		return TelemetrySample{}, fmt.Errorf("%w: telemetry without metric.name", ErrMalformed)
	}
	if body.Mano == nil || body.Mano.Vdu == nil || body.Mano.Vdu.ID == "" {
		return TelemetrySample{}, fmt.Errorf("%w: telemetry without mano.vdu.id", ErrMalformed)
	}

	v, err := parseNumber(body.Metric.Value)
	if err != nil {
		return TelemetrySample{}, fmt.Errorf("%w: metric %s: %w", ErrMalformed, body.Metric.Name, err)
	}

	return TelemetrySample{
		MetricName: body.Metric.Name,
		Value:      v,
		VduID:      body.Mano.Vdu.ID,
	}, nil
}

func parseNumber(raw json.RawMessage) (float64, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, fmt.Errorf("missing value")
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, err
		}
		s = strings.TrimSpace(str)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	return v, nil
}
