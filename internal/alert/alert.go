// Package alert decides which live predictions warrant notifying a user
// and runs the periodic sweep that dispatches those notifications.
//
// Pipeline per tick: list users → nearest stop → fetch predictions →
// match against favorites and threshold → dispatch SMS. Failures degrade
// to "this user produced no alert this tick"; nothing propagates past the
// sweep boundary.
package alert

import (
	"fmt"

	"github.com/mfigueroa/linealert/internal/stops"
	"github.com/mfigueroa/linealert/internal/transit"
)

// Alert is the unit handed to the messaging sender. Transient — built,
// dispatched, and dropped within one tick.
type Alert struct {
	Phone          string
	Carrier        string
	Line           string
	Stop           stops.Stop
	ArrivalMinutes int
}

// Subject is the message subject for gateway-style senders.
func (a Alert) Subject() string { return "Transit alert" }

// Body renders the SMS text.
func (a Alert) Body() string {
	return fmt.Sprintf("%s line arriving at %s in %d min", a.Line, a.Stop.Name, a.ArrivalMinutes)
}

// Match filters predictions down to those worth alerting on: the line is
// one of the user's favorites and the arrival is within the threshold.
// Pure function; input order is preserved.
func Match(favorites []string, thresholdMinutes int, predictions []transit.Prediction) []transit.Prediction {
	if len(favorites) == 0 {
		return nil
	}
	favSet := make(map[string]struct{}, len(favorites))
	for _, f := range favorites {
		favSet[f] = struct{}{}
	}

	var matched []transit.Prediction
	for _, p := range predictions {
		if _, ok := favSet[p.Line]; !ok {
			continue
		}
		if p.ArrivalMinutes > thresholdMinutes {
			continue
		}
		matched = append(matched, p)
	}
	return matched
}
