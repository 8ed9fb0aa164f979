package service

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/framebeat/api/internal/client"
	"github.com/framebeat/api/internal/metrics"
	"github.com/framebeat/api/internal/model"
)

// RecognitionPrompt asks for a JSON-only answer naming a real song and where to start it.
const RecognitionPrompt = `You are a music-savvy assistant. Look at this image (a 3x3 contact sheet of frames from a video).

Return JSON ONLY (no backticks, no commentary) with: {
  "song_artist": string,  // Format EXACTLY: "Song Title - Artist Name" (single hyphen with spaces).
  "start_seconds": number // Integer seconds to begin playback (>= 0).
}
Constraints:
- The song must be real (music), not podcasts/interviews/livestreams.
- Use Title Case for both song and artist.
Example: { "song_artist": "Blinding Lights - The Weeknd", "start_seconds": 42 }`

// RecognitionService turns a contact sheet into a song identity. It never
// fails: anything unusable becomes the unknown identity.
type RecognitionService struct {
	vision client.VisionClient
}

func NewRecognitionService(vision client.VisionClient) *RecognitionService {
	return &RecognitionService{vision: vision}
}

func (s *RecognitionService) Recognize(ctx context.Context, imagePath string) model.Identity {
	if s.vision == nil || !s.vision.IsConfigured() {
		log.Warn().Msg("recognition provider not configured, using unknown identity")
		return fallbackIdentity()
	}

	image, err := os.ReadFile(imagePath)
	if err != nil {
		log.Warn().Err(err).Str("image", imagePath).Msg("cannot read contact sheet")
		return fallbackIdentity()
	}

	text, err := s.vision.DescribeImage(ctx, RecognitionPrompt, image, "image/png")
	if err != nil {
		log.Warn().Err(err).Msg("recognition request failed")
		return fallbackIdentity()
	}
	log.Debug().Str("raw", text).Msg("recognition raw response")

	identity, ok := ParseIdentity(text)
	if !ok {
		log.Warn().Msg("recognition response unusable, using unknown identity")
		metrics.RecognitionFallbacks.Inc()
	}
	return identity
}

func fallbackIdentity() model.Identity {
	metrics.RecognitionFallbacks.Inc()
	return model.UnknownIdentity()
}

// ParseIdentity extracts the identity from a model answer that may carry
// code fences or surrounding prose. ok is false when the sentinel was used.
func ParseIdentity(text string) (model.Identity, bool) {
	obj, found := decodeObject(stripFences(strings.TrimSpace(text)))
	if !found {
		return model.UnknownIdentity(), false
	}

	sa, isString := obj["song_artist"].(string)
	sa = strings.TrimSpace(sa)
	if !isString || sa == "" {
		return model.UnknownIdentity(), false
	}

	start := 0
	switch v := obj["start_seconds"].(type) {
	case nil:
	case float64:
		start = clampSeconds(v)
	default:
		return model.UnknownIdentity(), false
	}

	return model.Identity{SongArtist: sa, StartSeconds: start}, true
}

func clampSeconds(v float64) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	v = math.Floor(v)
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

func decodeObject(text string) (map[string]any, bool) {
	candidates := []string{text, extractJSON(text), firstBalancedObject(text)}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(c), &obj); err == nil && obj != nil {
			return obj, true
		}
	}
	return nil, false
}

// stripFences removes a surrounding markdown code block.
func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 && !strings.Contains(text[:nl], "{") {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// extractJSON attempts to extract JSON from a response that may contain extra text
func extractJSON(s string) string {
	// Find the first { and last }
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")

	if start != -1 && end != -1 && end > start {
		return s[start : end+1]
	}
	return ""
}

// firstBalancedObject returns the first {...} whose braces balance outside
// string literals.
func firstBalancedObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
