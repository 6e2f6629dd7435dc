package tmdb

import (
	"strings"
)

type Kind string

const (
	KindMovie Kind = "movie"
	KindTV    Kind = "tv"
)

func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindMovie:
		return KindMovie, true
	case KindTV:
		return KindTV, true
	}
	return "", false
}

// Label is the human name of the kind.
func (k Kind) Label() string {
	if k == KindTV {
		return "TV Show"
	}
	return "Movie"
}

// Media is the canonical summary every provider payload is normalized into.
type Media struct {
	Kind     Kind   `json:"kind"`
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Year     string `json:"year,omitempty"`
	Poster   string `json:"poster,omitempty"`
	Overview string `json:"overview,omitempty"`
}

type Page struct {
	Page       int
	TotalPages int
	Results    []Media
}

// rawMedia covers both movie and tv payloads; movies carry title/release_date,
// shows carry name/first_air_date.
type rawMedia struct {
	ID            int    `json:"id"`
	MediaType     string `json:"media_type"`
	Title         string `json:"title"`
	Name          string `json:"name"`
	OriginalTitle string `json:"original_title"`
	OriginalName  string `json:"original_name"`
	ReleaseDate   string `json:"release_date"`
	FirstAirDate  string `json:"first_air_date"`
	PosterPath    string `json:"poster_path"`
	Overview      string `json:"overview"`
}

type rawPage struct {
	Page       int        `json:"page"`
	Results    []rawMedia `json:"results"`
	TotalPages int        `json:"total_pages"`
}

type rawFind struct {
	MovieResults []rawMedia `json:"movie_results"`
	TVResults    []rawMedia `json:"tv_results"`
}

// normalize maps a payload into Media. fallback is used when the payload has
// no media_type (kind-specific endpoints). ok is false for unrecognized kinds
// (people, collections) and items without a usable title.
func (r rawMedia) normalize(fallback Kind) (Media, bool) {
	kind := fallback
	if r.MediaType != "" {
		k, ok := ParseKind(r.MediaType)
		if !ok {
			return Media{}, false
		}
		kind = k
	}
	if kind == "" {
		return Media{}, false
	}
	title := firstNonEmpty(r.Title, r.Name, r.OriginalTitle, r.OriginalName)
	if title == "" || r.ID <= 0 {
		return Media{}, false
	}
	return Media{
		Kind:     kind,
		ID:       r.ID,
		Title:    title,
		Year:     year(firstNonEmpty(r.ReleaseDate, r.FirstAirDate)),
		Poster:   strings.TrimSpace(r.PosterPath),
		Overview: strings.TrimSpace(r.Overview),
	}, true
}

func year(date string) string {
	if len(date) < 4 {
		return ""
	}
	return date[:4]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}
