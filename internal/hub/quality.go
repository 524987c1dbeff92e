package hub

import "github.com/XavierBriggs/fortuna/services/arena/pkg/models"

// lowQualityEvents are the only events a low-quality spectator receives
var lowQualityEvents = map[string]bool{
	models.EventTypeScore:   true,
	models.EventTypeDeath:   true,
	models.EventTypeVictory: true,
}

// adaptFrame returns a copy of frame reduced for the given quality.
// State and delta are never reduced.
func adaptFrame(frame models.BroadcastFrame, q models.Quality) models.BroadcastFrame {
	out := frame.Clone()

	switch q {
	case models.QualityLow:
		events := out.Events[:0]
		for _, e := range out.Events {
			if lowQualityEvents[e.Type] {
				events = append(events, e)
			}
		}
		out.Events = events
		out.Highlights = nil
	case models.QualityMedium:
		out.Highlights = nil
	}

	return out
}
