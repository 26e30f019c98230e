package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

type TMDBGenre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type TMDBCastMember struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Character   string `json:"character,omitempty"`
	ProfilePath string `json:"profile_path,omitempty"`
	Order       int    `json:"order"`
}

type TMDBCrewMember struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Job        string `json:"job,omitempty"`
	Department string `json:"department,omitempty"`
}

type TMDBCredits struct {
	Cast []TMDBCastMember `json:"cast,omitempty"`
	Crew []TMDBCrewMember `json:"crew,omitempty"`
}

type TMDBImage struct {
	FilePath    string  `json:"file_path"`
	Width       int     `json:"width,omitempty"`
	Height      int     `json:"height,omitempty"`
	VoteAverage float64 `json:"vote_average,omitempty"`
}

type TMDBImages struct {
	Backdrops []TMDBImage `json:"backdrops,omitempty"`
	Posters   []TMDBImage `json:"posters,omitempty"`
}

type TMDBVideo struct {
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
	Site string `json:"site,omitempty"`
	Type string `json:"type,omitempty"`
}

type TMDBVideos struct {
	Results []TMDBVideo `json:"results,omitempty"`
}

type TMDBMovie struct {
	ID            int          `json:"id"`
	IMDBID        string       `json:"imdb_id,omitempty"`
	Title         string       `json:"title"`
	OriginalTitle string       `json:"original_title,omitempty"`
	Tagline       string       `json:"tagline,omitempty"`
	Overview      string       `json:"overview,omitempty"`
	ReleaseDate   string       `json:"release_date,omitempty"`
	Runtime       int          `json:"runtime,omitempty"`
	VoteAverage   float64      `json:"vote_average,omitempty"`
	VoteCount     int          `json:"vote_count,omitempty"`
	PosterPath    string       `json:"poster_path,omitempty"`
	BackdropPath  string       `json:"backdrop_path,omitempty"`
	Genres        []TMDBGenre  `json:"genres,omitempty"`
	Credits       *TMDBCredits `json:"credits,omitempty"`
	Images        *TMDBImages  `json:"images,omitempty"`
	Videos        *TMDBVideos  `json:"videos,omitempty"`
}

// ReleaseYear returns the four-digit year of the release date, or "".
func (m *TMDBMovie) ReleaseYear() string {
	if m == nil || len(m.ReleaseDate) < 4 {
		return ""
	}
	year := m.ReleaseDate[:4]
	if _, err := strconv.Atoi(year); err != nil {
		return ""
	}
	return year
}

type DoubanRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Year        string `json:"year,omitempty"`
	URL         string `json:"url"`
	Rating      string `json:"rating,omitempty"`
	RatingCount int64  `json:"rating_count,omitempty"`
	Poster      string `json:"poster,omitempty"`
}

// FlexInt decodes integers that upstream APIs sometimes encode as strings.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*f = 0
		return nil
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return err
		}
		raw = []byte(strings.TrimSpace(text))
		if len(raw) == 0 {
			*f = 0
			return nil
		}
	}
	value, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = FlexInt(value)
	return nil
}
