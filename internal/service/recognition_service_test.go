package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framebeat/api/internal/model"
)

func TestParseIdentity(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  model.Identity
		known bool
	}{
		{"plain", `{"song_artist":"Blinding Lights - The Weeknd","start_seconds":42}`, model.Identity{SongArtist: "Blinding Lights - The Weeknd", StartSeconds: 42}, true},
		{"fenced", "```json\n{\"song_artist\": \"Golden - Huntrix\", \"start_seconds\": 10}\n```", model.Identity{SongArtist: "Golden - Huntrix", StartSeconds: 10}, true},
		{"prose around", `Sure! Here it is: {"song_artist":"Song - Artist","start_seconds":7} Hope that helps.`, model.Identity{SongArtist: "Song - Artist", StartSeconds: 7}, true},
		{"fractional floors", `{"song_artist":"A - B","start_seconds":12.9}`, model.Identity{SongArtist: "A - B", StartSeconds: 12}, true},
		{"negative clamps", `{"song_artist":"A - B","start_seconds":-5}`, model.Identity{SongArtist: "A - B", StartSeconds: 0}, true},
		{"missing start", `{"song_artist":"A - B"}`, model.Identity{SongArtist: "A - B", StartSeconds: 0}, true},
		{"null start", `{"song_artist":"A - B","start_seconds":null}`, model.Identity{SongArtist: "A - B", StartSeconds: 0}, true},
		{"trims artist", `{"song_artist":"  A - B  ","start_seconds":1}`, model.Identity{SongArtist: "A - B", StartSeconds: 1}, true},
		{"two objects", `first {"song_artist":"A - B","start_seconds":3} then {"note":"x"}`, model.Identity{SongArtist: "A - B", StartSeconds: 3}, true},
		{"string start", `{"song_artist":"A - B","start_seconds":"42"}`, model.UnknownIdentity(), false},
		{"empty artist", `{"song_artist":"   ","start_seconds":4}`, model.UnknownIdentity(), false},
		{"numeric artist", `{"song_artist":5,"start_seconds":4}`, model.UnknownIdentity(), false},
		{"not json", `I cannot identify a song from these frames.`, model.UnknownIdentity(), false},
		{"empty", ``, model.UnknownIdentity(), false},
		{"array", `[{"song_artist":"A - B"}]`, model.Identity{SongArtist: "A - B", StartSeconds: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseIdentity(tt.text)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.known, ok)
		})
	}
}

func TestParseIdentity_NeverNegativeOrEmpty(t *testing.T) {
	inputs := []string{"", "{", "}", "{}", `{"start_seconds":1e30,"song_artist":"x"}`, "```", "```\n```", `{"song_artist":"a","start_seconds":-1e30}`}
	for _, in := range inputs {
		got, _ := ParseIdentity(in)
		assert.NotEmpty(t, got.SongArtist, in)
		assert.GreaterOrEqual(t, got.StartSeconds, 0, in)
	}
}

type fakeVision struct {
	configured bool
	answer     string
	err        error
	gotMIME    string
	gotBytes   int
}

func (f *fakeVision) DescribeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	f.gotMIME = mimeType
	f.gotBytes = len(image)
	return f.answer, f.err
}
func (f *fakeVision) IsConfigured() bool { return f.configured }
func (f *fakeVision) Close() error       { return nil }

func writeSheet(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "sheet.png")
	require.NoError(t, os.WriteFile(p, []byte("png-bytes"), 0o644))
	return p
}

func TestRecognitionService_Recognize(t *testing.T) {
	vision := &fakeVision{configured: true, answer: `{"song_artist":"Golden - Huntrix","start_seconds":10}`}
	svc := NewRecognitionService(vision)

	got := svc.Recognize(context.Background(), writeSheet(t))
	assert.Equal(t, model.Identity{SongArtist: "Golden - Huntrix", StartSeconds: 10}, got)
	assert.False(t, got.IsUnknown())
	assert.Equal(t, "image/png", vision.gotMIME)
	assert.Equal(t, len("png-bytes"), vision.gotBytes)
}

func TestRecognitionService_FallsBackToUnknown(t *testing.T) {
	sheet := writeSheet(t)
	cases := map[string]*RecognitionService{
		"nil client":     NewRecognitionService(nil),
		"unconfigured":   NewRecognitionService(&fakeVision{}),
		"transport":      NewRecognitionService(&fakeVision{configured: true, err: errors.New("503")}),
		"garbage answer": NewRecognitionService(&fakeVision{configured: true, answer: "no idea"}),
	}
	for name, svc := range cases {
		assert.Equal(t, model.UnknownIdentity(), svc.Recognize(context.Background(), sheet), name)
		assert.True(t, svc.Recognize(context.Background(), sheet).IsUnknown(), name)
	}

	svc := NewRecognitionService(&fakeVision{configured: true, answer: `{"song_artist":"A - B"}`})
	assert.Equal(t, model.UnknownIdentity(), svc.Recognize(context.Background(), "/nonexistent/sheet.png"))
}

func TestFirstBalancedObject(t *testing.T) {
	assert.Equal(t, `{"a":"}{"}`, firstBalancedObject(`x {"a":"}{"} y {"b":1}`))
	assert.Equal(t, `{"a":{"b":1}}`, firstBalancedObject(`{"a":{"b":1}} trailing }`))
	assert.Equal(t, "", firstBalancedObject(`{"unterminated":`))
}
