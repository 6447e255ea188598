package domain

type NodePosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is the durable projection of one canvas node. The relational node
// store owns the full record; the room only mirrors what it rebroadcasts.
type Node struct {
	ID   string  `json:"id"`
	Type string  `json:"type"`
	PosX float64 `json:"posX"`
	PosY float64 `json:"posY"`
	Name string  `json:"name,omitempty"`
}
