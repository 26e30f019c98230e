package apihttp

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"auroramag/detailservice/internal/domain"
)

//go:embed templates/detail.html
var templateFS embed.FS

const (
	tmdbImageBase   = "https://image.tmdb.org/t/p/"
	maxPageCast     = 12
	maxPageGallery  = 12
	maxPageTrailers = 3
)

var detailTemplate = template.Must(template.New("detail.html").Funcs(template.FuncMap{
	"humanSize": humanSize,
	"date":      formatDate,
}).ParseFS(templateFS, "templates/detail.html"))

type detailPage struct {
	Detail   domain.EnrichedDetail
	Magnet   template.URL
	Poster   string
	Backdrop string
	Overview string
	Released string
	Rating   string
	Cast     []castCard
	Gallery  []string
	Trailers []domain.TMDBVideo
}

type castCard struct {
	Name      string
	Character string
	Photo     string
}

func renderDetailPage(w io.Writer, record domain.EnrichedDetail) error {
	return detailTemplate.Execute(w, newDetailPage(record))
}

func newDetailPage(record domain.EnrichedDetail) detailPage {
	page := detailPage{Detail: record}
	if strings.HasPrefix(record.MagnetURL, "magnet:?") {
		// html/template rejects non-http schemes unless marked safe.
		page.Magnet = template.URL(record.MagnetURL)
	}
	if movie := record.TMDB; movie != nil {
		if movie.PosterPath != "" {
			page.Poster = tmdbImageBase + "w500" + movie.PosterPath
		}
		if movie.BackdropPath != "" {
			page.Backdrop = tmdbImageBase + "original" + movie.BackdropPath
		}
		page.Overview = movie.Overview
		page.Released = movie.ReleaseDate
		if movie.VoteAverage > 0 {
			page.Rating = fmt.Sprintf("%.1f", movie.VoteAverage)
		}
		if movie.Credits != nil {
			for _, member := range movie.Credits.Cast {
				card := castCard{Name: member.Name, Character: member.Character}
				if member.ProfilePath != "" {
					card.Photo = tmdbImageBase + "w185" + member.ProfilePath
				}
				page.Cast = append(page.Cast, card)
				if len(page.Cast) == maxPageCast {
					break
				}
			}
		}
		if movie.Images != nil {
			images := movie.Images.Backdrops
			if len(images) == 0 {
				images = movie.Images.Posters
			}
			for _, image := range images {
				page.Gallery = append(page.Gallery, tmdbImageBase+"w780"+image.FilePath)
				if len(page.Gallery) == maxPageGallery {
					break
				}
			}
		}
		if movie.Videos != nil {
			for _, video := range movie.Videos.Results {
				if !strings.EqualFold(video.Site, "YouTube") || video.Key == "" {
					continue
				}
				page.Trailers = append(page.Trailers, video)
				if len(page.Trailers) == maxPageTrailers {
					break
				}
			}
		}
	}
	if page.Poster == "" && record.Douban != nil {
		page.Poster = record.Douban.Poster
	}
	return page
}

func humanSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit && exp < 4; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(size)/float64(div), "KMGTP"[exp])
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
