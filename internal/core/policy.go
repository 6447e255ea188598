package core

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	Disconnect
)

// BackpressurePolicy decides what happens to a connection whose send buffer
// keeps overflowing. consecutive is the current drop streak of that session.
type BackpressurePolicy interface {
	OnBackpressure(consecutive int) BackpressureAction
}

// KickAfter drops frames until a connection has missed N in a row, then
// disconnects it. A consumer that far behind is not coming back.
type KickAfter struct {
	N int
}

func (p KickAfter) OnBackpressure(consecutive int) BackpressureAction {
	if consecutive >= p.N {
		return Disconnect
	}
	return DropFrame
}
