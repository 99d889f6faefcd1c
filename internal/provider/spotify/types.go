package spotify

type image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

type simpleArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type simpleTrack struct {
	Name        string `json:"name"`
	TrackNumber int    `json:"track_number"`
	DiscNumber  int    `json:"disc_number"`
	DurationMs  int    `json:"duration_ms"`
	PreviewURL  string `json:"preview_url"`
}

type trackPage struct {
	Items []simpleTrack `json:"items"`
	Next  string        `json:"next"`
	Total int           `json:"total"`
}

// albumResponse is the GET /albums/{id} payload.
type albumResponse struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	AlbumType            string         `json:"album_type"`
	Images               []image        `json:"images"`
	Genres               []string       `json:"genres"`
	Label                string         `json:"label"`
	ReleaseDate          string         `json:"release_date"`
	ReleaseDatePrecision string         `json:"release_date_precision"`
	TotalTracks          int            `json:"total_tracks"`
	Artists              []simpleArtist `json:"artists"`
	Tracks               trackPage      `json:"tracks"`
	ExternalURLs         externalURLs   `json:"external_urls"`
}

// artistResponse is the GET /artists/{id} payload.
type artistResponse struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
}

// playlistTracksResponse is one page of GET /playlists/{id}/tracks.
type playlistTracksResponse struct {
	Items []struct {
		Track *struct {
			Album struct {
				ID           string       `json:"id"`
				ExternalURLs externalURLs `json:"external_urls"`
			} `json:"album"`
		} `json:"track"`
	} `json:"items"`
	Next string `json:"next"`
}
