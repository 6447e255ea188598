package domain

// RoomConfig is a free-form key->value map. A config frame replaces the whole
// map, last writer wins.
type RoomConfig map[string]any

func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		"model":       "openai:o3-mini",
		"temperature": 0.5,
		"maxTokens":   1000,
		"prompt":      "",
	}
}

func (c RoomConfig) str(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

func (c RoomConfig) Model() string  { return c.str("model") }
func (c RoomConfig) Prompt() string { return c.str("prompt") }

func (c RoomConfig) Temperature() float64 {
	switch v := c["temperature"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0.5
}

func (c RoomConfig) MaxTokens() int {
	switch v := c["maxTokens"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 1000
}

// Strings flattens the config into the text map a GenerationRun records.
func (c RoomConfig) Strings() map[string]string {
	out := make(map[string]string, len(c))
	for k, v := range c {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
