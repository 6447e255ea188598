package domain

// Cursor is one participant's pointer. X/Y are viewport-relative,
// CanvasX/CanvasY are absolute canvas coordinates.
type Cursor struct {
	ID      ParticipantID `json:"id"`
	X       float64       `json:"x"`
	Y       float64       `json:"y"`
	CanvasX float64       `json:"canvasX"`
	CanvasY float64       `json:"canvasY"`
	Color   string        `json:"color"`
}
