package release

import "fmt"

const (
	// MediaTypeMovie and MediaTypeTV are the two catalog media types.
	MediaTypeMovie = "movie"
	MediaTypeTV    = "tv"

	posterBaseURL     = "https://image.tmdb.org/t/p/w500"
	posterPlaceholder = "https://via.placeholder.com/500x750"
	tmdbSiteURL       = "https://www.themoviedb.org"
)

// Release is one dashboard entry: a recently released movie or show on a
// tracked streaming service, enriched with external ratings where available.
type Release struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	ReleaseDate     string  `json:"release_date"`
	MediaType       string  `json:"media_type"`
	VoteAverage     float64 `json:"vote_average"`
	VoteCount       int64   `json:"vote_count"`
	PosterURL       string  `json:"poster_url"`
	TMDBURL         string  `json:"tmdb_url"`
	Overview        string  `json:"overview"`
	NumberOfSeasons int     `json:"number_of_seasons,omitempty"`
	IMDBRating      string  `json:"imdb_rating,omitempty"`
	Metascore       string  `json:"metascore,omitempty"`
	RottenTomatoes  string  `json:"rotten_tomatoes,omitempty"`
}

// Catalog is the assembled release list plus its assembly time.
type Catalog struct {
	Releases  []Release `json:"releases"`
	UpdatedAt string    `json:"updated_at"`
}

// tmdbDiscoverResponse is the shared shape of /discover/movie and
// /discover/tv. Movie and TV results name their title and date fields
// differently; both pairs are declared and the populated one wins.
type tmdbDiscoverResponse struct {
	Results []tmdbResult `json:"results"`
}

type tmdbResult struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	VoteAverage  float64 `json:"vote_average"`
	VoteCount    int64   `json:"vote_count"`
	PosterPath   string  `json:"poster_path"`
	Overview     string  `json:"overview"`
}

func (r tmdbResult) title() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Name
}

func (r tmdbResult) releaseDate() string {
	if r.ReleaseDate != "" {
		return r.ReleaseDate
	}
	return r.FirstAirDate
}

type tmdbTVDetails struct {
	NumberOfSeasons int `json:"number_of_seasons"`
}

// omdbResponse carries the rating fields the dashboard surfaces. OMDB
// reports absent values as the literal string "N/A".
type omdbResponse struct {
	Response   string       `json:"Response"`
	IMDBRating string       `json:"imdbRating"`
	Metascore  string       `json:"Metascore"`
	Ratings    []omdbRating `json:"Ratings"`
}

type omdbRating struct {
	Source string `json:"Source"`
	Value  string `json:"Value"`
}

// rottenTomatoes extracts the Rotten Tomatoes score from the Ratings
// array; OMDB has no dedicated field for it.
func (r omdbResponse) rottenTomatoes() string {
	for _, rating := range r.Ratings {
		if rating.Source == "Rotten Tomatoes" {
			return cleanRating(rating.Value)
		}
	}
	return ""
}

func cleanRating(v string) string {
	if v == "N/A" {
		return ""
	}
	return v
}

type jellyseerrRequestList struct {
	Results []jellyseerrRequest `json:"results"`
}

type jellyseerrRequest struct {
	Media jellyseerrMedia `json:"media"`
}

type jellyseerrMedia struct {
	TMDBID    int64  `json:"tmdbId"`
	MediaType string `json:"mediaType"`
}

func mediaKey(mediaType string, id int64) string {
	return fmt.Sprintf("%s:%d", mediaType, id)
}

func (r tmdbResult) toRelease(mediaType string) Release {
	poster := posterPlaceholder
	if r.PosterPath != "" {
		poster = posterBaseURL + r.PosterPath
	}
	return Release{
		ID:          r.ID,
		Title:       r.title(),
		ReleaseDate: r.releaseDate(),
		MediaType:   mediaType,
		VoteAverage: r.VoteAverage,
		VoteCount:   r.VoteCount,
		PosterURL:   poster,
		TMDBURL:     fmt.Sprintf("%s/%s/%d", tmdbSiteURL, mediaType, r.ID),
		Overview:    r.Overview,
	}
}
