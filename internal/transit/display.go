package transit

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// NoTimePlaceholder is shown when a departure time cannot be determined.
const NoTimePlaceholder = "--"

// TimeUntilDeparture formats the countdown from now to the event's departure.
func TimeUntilDeparture(e *Event, now time.Time) string {
	if e == nil || !e.HasDepartureTime() {
		return NoTimePlaceholder
	}

	minutes := int(math.Floor(e.DepartureTime.Sub(now).Minutes()))

	switch {
	case minutes < 0:
		return "Due"
	case minutes == 0:
		return "Now"
	case minutes == 1:
		return "1 Min"
	case minutes < 60:
		return fmt.Sprintf("%d Mins", minutes)
	default:
		return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
	}
}

// DelayStatus classifies how far the estimate is from the schedule.
// A rounded delay of -1 or 0 minutes counts as on time unless upstream
// explicitly reports the service as late.
func DelayStatus(e *Event) (string, bool) {
	if e == nil || e.ScheduledDeparture.IsZero() {
		return "", false
	}

	actual := e.EstimatedDeparture
	if actual.IsZero() {
		actual = e.ScheduledDeparture
	}

	delay := int(math.Round(actual.Sub(e.ScheduledDeparture).Minutes()))

	switch {
	case delay > 0:
		return fmt.Sprintf("Late %d mins", delay), true
	case delay < -1:
		return fmt.Sprintf("Early %d mins", -delay), true
	case strings.EqualFold(e.Status, "late"):
		return "Running late", true
	}

	return "", false
}
