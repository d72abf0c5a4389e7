package mqtt

import (
	"fmt"
	"strings"
)

// ValidateTopic checks a publish topic: non-empty and free of wildcards.
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, "+#\x00") {
		return fmt.Errorf("%w: %q contains wildcard or NUL characters", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks a subscription filter. '+' must occupy a whole
// level, '#' must occupy the whole last level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if strings.ContainsRune(filter, '\x00') {
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidTopic, filter)
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return fmt.Errorf("%w: '#' must be the last level in %q", ErrInvalidTopic, filter)
			}
		case level == "+":
		case strings.ContainsAny(level, "+#"):
			return fmt.Errorf("%w: wildcard must occupy a whole level in %q", ErrInvalidTopic, filter)
		}
	}
	return nil
}

// MatchFilter reports whether topic matches the subscription filter.
//
// Examples:
//
//	MatchFilter("sensors/+/state", "sensors/kitchen/state") // true
//	MatchFilter("sensors/#", "sensors")                     // true
//	MatchFilter("#", "$SYS/broker/uptime")                  // false
func MatchFilter(filter, topic string) bool {
	if filter == topic {
		return true
	}
	// Wildcards never match topics beginning with '$'.
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, "+") || strings.HasPrefix(filter, "#")) {
		return false
	}

	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, level := range f {
		if level == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}
