// Package health aggregates link connection states into one relay status.
//
// The monitor is purely observational: it samples every link on a fixed
// interval and on every state change, keeps the latest Snapshot for the
// HTTP API, and optionally publishes it as a retained MQTT message through
// the broker's queue. It never influences reconnect behaviour.
package health

import (
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/link"
)

// Status is the aggregate health of the relay.
type Status string

const (
	// StatusHealthy means every link is Connected.
	StatusHealthy Status = "healthy"

	// StatusDegraded means some links are Connected, or none have been
	// for less than unhealthy_after.
	StatusDegraded Status = "degraded"

	// StatusUnhealthy means no link has been Connected for longer than
	// unhealthy_after.
	StatusUnhealthy Status = "unhealthy"
)

// Level returns the numeric level used by metrics (0 healthy, 1 degraded,
// 2 unhealthy).
func (s Status) Level() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// LinkHealth is one link's state in a snapshot.
type LinkHealth struct {
	Name  string    `json:"name"`
	State string    `json:"state"`
	Since time.Time `json:"since"`
}

// Snapshot is the aggregate health at one sample.
type Snapshot struct {
	Gateway       string       `json:"gateway"`
	Version       string       `json:"version,omitempty"`
	Status        Status       `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Links         []LinkHealth `json:"links"`
	Timestamp     time.Time    `json:"timestamp"`
	UptimeSeconds int64        `json:"uptime_seconds"`
}

// Evaluate computes the aggregate status.
//
// Parameters:
//   - links: the sampled link states
//   - noneSince: when the relay last had zero Connected links (zero if
//     some link is Connected)
//   - now: sample time
//   - unhealthyAfter: how long zero Connected links is tolerated
//
// Returns:
//   - Status and a reason naming the links that are not Connected
func Evaluate(links []LinkHealth, noneSince, now time.Time, unhealthyAfter time.Duration) (Status, string) {
	var down []string
	for _, l := range links {
		if l.State != link.StateConnected.String() {
			down = append(down, l.Name)
		}
	}

	switch {
	case len(down) == 0:
		return StatusHealthy, ""
	case len(down) < len(links):
		return StatusDegraded, "not connected: " + strings.Join(down, ", ")
	case !noneSince.IsZero() && now.Sub(noneSince) > unhealthyAfter:
		return StatusUnhealthy, "no link connected since " + noneSince.UTC().Format(time.RFC3339)
	default:
		return StatusDegraded, "not connected: " + strings.Join(down, ", ")
	}
}
