package enrich

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/moistari/rls"

	"auroramag/detailservice/internal/domain"
)

var (
	imdbIDPattern     = regexp.MustCompile(`(?i)tt\d{7,8}`)
	bracketedPattern  = regexp.MustCompile(`\[.*?\]`)
	parenthesePattern = regexp.MustCompile(`\(.*?\)`)
)

// AlternativeImages lists external places where artwork for the torrent can
// be looked up.
func AlternativeImages(title, infoHash string) []domain.ImageLink {
	images := []domain.ImageLink{{
		Type:   "torrent_preview",
		URL:    "https://btdig.com/search?q=" + url.QueryEscape(infoHash),
		Source: "BTDig",
	}}

	if imdbID := imdbIDPattern.FindString(title); imdbID != "" {
		images = append(images, domain.ImageLink{
			Type:   "imdb",
			URL:    "https://www.imdb.com/title/" + strings.ToLower(imdbID) + "/",
			Source: "IMDB",
		})
	}

	cleaned := parenthesePattern.ReplaceAllString(bracketedPattern.ReplaceAllString(title, ""), "")
	if cleaned = strings.TrimSpace(cleaned); cleaned != "" {
		images = append(images, domain.ImageLink{
			Type:   "search",
			URL:    "https://www.google.com/search?tbm=isch&q=" + escapeComponent(cleaned),
			Source: "Google Images",
		})
	}
	return images
}

// escapeComponent percent-encodes a query value with spaces as %20 rather
// than the form-style '+'.
func escapeComponent(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}

// ParseRelease extracts scene-style release attributes from a title. It
// returns nil when nothing beyond a bare title was recognised.
func ParseRelease(title string) *domain.ReleaseInfo {
	if strings.TrimSpace(title) == "" {
		return nil
	}
	release := rls.ParseString(title)
	info := &domain.ReleaseInfo{
		Title:      release.Title,
		Year:       release.Year,
		Season:     release.Series,
		Episode:    release.Episode,
		Resolution: release.Resolution,
		Source:     release.Source,
		Codec:      release.Codec,
		Audio:      release.Audio,
		HDR:        release.HDR,
		Group:      release.Group,
	}
	if release.Type != rls.Unknown {
		info.Type = release.Type.String()
	}
	if info.Year == 0 && info.Resolution == "" && info.Source == "" && len(info.Codec) == 0 && info.Group == "" {
		return nil
	}
	return info
}
