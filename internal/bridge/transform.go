package bridge

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/websocket"
)

// Reading is one numeric value produced by a transform.
type Reading struct {
	Key   string
	Value float64
}

// unitMap renames units before the generic clean-up.
var unitMap = map[string]string{
	"°C": "C",
	"°F": "F",
	"%":  "pct",
}

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// NormalizeUnit turns a unit of measurement into a key suffix:
// mapped names first, then every non-alphanumeric run becomes "_", and
// leading or trailing underscores are trimmed.
func NormalizeUnit(unit string) string {
	if unit == "" {
		return ""
	}
	if mapped, ok := unitMap[unit]; ok {
		unit = mapped
	}
	return strings.Trim(nonAlphanumeric.ReplaceAllString(unit, "_"), "_")
}

// transform rewrites a payload for a route. ok is false when the message
// should be dropped without being reported as unroutable.
func transform(name string, payload []byte) (out []byte, readings []Reading, ok bool, err error) {
	switch name {
	case config.TransformNone:
		return payload, nil, true, nil
	case config.TransformHAState:
		return haState(payload)
	default:
		return nil, nil, false, fmt.Errorf("unknown transform %q", name)
	}
}

// haState converts a Home Assistant state_changed event with a numeric
// state into {"<entity_id>_<unit>": value}. Anything else is skipped.
func haState(payload []byte) ([]byte, []Reading, bool, error) {
	sc, ok := websocket.ParseStateChange(payload)
	if !ok {
		return nil, nil, false, nil
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(sc.State), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, nil, false, nil
	}

	key := sc.EntityID
	if unit := NormalizeUnit(sc.Unit); unit != "" {
		key += "_" + unit
	}

	out, err := json.Marshal(map[string]float64{key: value})
	if err != nil {
		return nil, nil, false, err
	}
	return out, []Reading{{Key: key, Value: value}}, true, nil
}

// HeartbeatPayload builds the gateway heartbeat message.
func HeartbeatPayload(gatewayID string, counter uint64) []byte {
	//nolint:errcheck // map[string]uint64 always marshals
	out, _ := json.Marshal(map[string]uint64{"heartbeat.gateway." + gatewayID: counter})
	return out
}
