package model

// UnknownSongArtist is the identity used whenever recognition yields nothing usable.
const UnknownSongArtist = "Unknown - Unknown"

// Identity is the recognized "Title - Artist" plus the audio offset to start from.
type Identity struct {
	SongArtist   string `json:"song_artist"`
	StartSeconds int    `json:"start_seconds"`
}

func UnknownIdentity() Identity {
	return Identity{SongArtist: UnknownSongArtist, StartSeconds: 0}
}

func (i Identity) IsUnknown() bool {
	return i.SongArtist == UnknownSongArtist
}
