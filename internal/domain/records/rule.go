package records

import "time"

// OverdueScheduled returns the ids of incidents still marked Scheduled
// whose appointment time lies before now. Pure; evaluated on each
// admin-facing read rather than by a background timer, so applying the
// returned transitions twice is a no-op the second time.
func OverdueScheduled(incidents []Incident, now time.Time) []string {
	var ids []string
	for _, inc := range incidents {
		if inc.Status == StatusScheduled && inc.AppointmentDate.Before(now) {
			ids = append(ids, inc.ID)
		}
	}
	return ids
}
