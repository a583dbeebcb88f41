package provider

// Playback is the subset of GET /me/player the relay renders.
type Playback struct {
	IsPlaying            bool   `json:"is_playing"`
	ProgressMs           int    `json:"progress_ms"`
	CurrentlyPlayingType string `json:"currently_playing_type"`
	Item                 *Item  `json:"item"`
}

// Item is either a track or a podcast episode.
type Item struct {
	Type       string   `json:"type"`
	Name       string   `json:"name"`
	DurationMs int      `json:"duration_ms"`
	Artists    []Artist `json:"artists"`
	Album      *Album   `json:"album"`
	Show       *Show    `json:"show"`
}

type Artist struct {
	Name string `json:"name"`
}

type Album struct {
	Name string `json:"name"`
}

type Show struct {
	Name      string `json:"name"`
	Publisher string `json:"publisher"`
}

const (
	ItemTypeTrack   = "track"
	ItemTypeEpisode = "episode"
	ItemTypeAd      = "ad"
)

// ArtistNames lists the artists of a track in order, falling back to the
// album for tracks without artists and to the show for episodes.
func (i *Item) ArtistNames() []string {
	if i == nil {
		return nil
	}

	names := make([]string, 0, len(i.Artists))
	for _, a := range i.Artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	if len(names) > 0 {
		return names
	}

	switch {
	case i.Show != nil && i.Show.Name != "":
		return []string{i.Show.Name}
	case i.Album != nil && i.Album.Name != "":
		return []string{i.Album.Name}
	}
	return nil
}

// Action is a transport command.
type Action string

const (
	ActionPlay     Action = "play"
	ActionPause    Action = "pause"
	ActionNext     Action = "next"
	ActionPrevious Action = "previous"
)

// ParseAction accepts the four transport commands and nothing else.
func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionPlay, ActionPause, ActionNext, ActionPrevious:
		return a, true
	}
	return "", false
}
