package domain

import (
	"strings"

	"github.com/google/uuid"
)

// GenerationRun is one image-generation invocation. Output stays empty until
// the external job resolves; runs are append-only for the room's lifetime.
type GenerationRun struct {
	ID         string            `json:"id"`
	ModelID    string            `json:"modelId"`
	Parameters map[string]string `json:"parameters"`
	Output     string            `json:"output,omitempty"`
}

// NewRunID returns a short random code for a run.
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

type ImageModel struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Options map[string]string `json:"options"`
}

// AvailableImageModels is the catalog sent to every joiner.
func AvailableImageModels() []ImageModel {
	return []ImageModel{
		{
			ID:   "fal-ai/flux-pro/v1.1-ultra",
			Name: "Flux Pro Ultra",
			Options: map[string]string{
				"aspect_ratio": "21:9, 16:9, 4:3, 3:2, 1:1, 2:3, 3:4, 9:16, 9:21",
			},
		},
		{
			ID:   "fal-ai/recraft-v3",
			Name: "Recraft v3",
			Options: map[string]string{
				"style":      "any, realistic_image, digital_illustration, vector_illustration",
				"image_size": "square_hd, square, portrait_4_3, portrait_16_9, landscape_4_3, landscape_16_9",
			},
		},
	}
}
