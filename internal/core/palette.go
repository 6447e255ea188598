package core

import (
	"math/rand/v2"

	"github.com/samber/lo"

	"github.com/dkeye/Atelier/internal/domain"
)

// ghibliColors is the fixed cursor palette.
var ghibliColors = []string{
	"#7CA9E6", // Sky Blue
	"#D56D5A", // Forest Red
	"#8BC28A", // Totoro Pasture
	"#E6A4B4", // Chihiro Rose
	"#F0A868", // Calcifer's Ember
	"#5D9B9B", // Ponyo Ocean
	"#A893C0", // Wind Lavender
	"#D8B44A", // Kiki Yellow
	"#7D9367", // Forest Moss
	"#C67D5E", // Kaguya Clay
}

// colorAssigner hands out stable colors. An assignment survives disconnects
// so a participant keeps their color across reconnects. Not safe for
// concurrent use; RoomState serializes access.
type colorAssigner struct {
	assigned map[domain.ParticipantID]string
}

func newColorAssigner(assigned map[domain.ParticipantID]string) *colorAssigner {
	if assigned == nil {
		assigned = make(map[domain.ParticipantID]string)
	}
	return &colorAssigner{assigned: assigned}
}

// ColorFor returns the participant's color, assigning one on first sight.
// While unused palette entries remain, no two participants share a color;
// once the palette is exhausted a color is reused at random.
func (a *colorAssigner) ColorFor(id domain.ParticipantID) (color string, created bool) {
	if c, ok := a.assigned[id]; ok {
		return c, false
	}
	used := lo.SliceToMap(lo.Values(a.assigned), func(c string) (string, struct{}) {
		return c, struct{}{}
	})
	available := lo.Filter(ghibliColors, func(c string, _ int) bool {
		_, taken := used[c]
		return !taken
	})
	if len(available) > 0 {
		color = available[rand.IntN(len(available))]
	} else {
		color = ghibliColors[rand.IntN(len(ghibliColors))]
	}
	a.assigned[id] = color
	return color, true
}

func (a *colorAssigner) snapshot() map[domain.ParticipantID]string {
	out := make(map[domain.ParticipantID]string, len(a.assigned))
	for id, c := range a.assigned {
		out[id] = c
	}
	return out
}
