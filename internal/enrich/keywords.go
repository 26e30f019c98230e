package enrich

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/width"

	"auroramag/detailservice/internal/domain"
)

const (
	maxKeywords       = 8
	maxTitleWords     = 4
	maxGameWords      = 4
	maxSoftwareWords  = 3
	maxGenericWords   = 4
	minKeywordRunes   = 2
	maxTokenRunes     = 30
	minTitleWordRunes = 3
)

var (
	yearPattern = regexp.MustCompile(`\b(?:19\d{2}|20\d{2})\b`)

	noisePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\[.*?\]`),
		regexp.MustCompile(`\(.*?\)`),
		regexp.MustCompile(`【.*?】`),
		regexp.MustCompile(`(?i)\d{3,4}p`),
		regexp.MustCompile(`(?i)\b(?:HEVC|x264|x265|H\.264|H\.265|AVC|X264|XVID|DIVX)\b`),
		regexp.MustCompile(`(?i)\b(?:BluRay|BRRip|WEB-DL|WEBRip|HDTV|DVDRip|BDRip|BD\d+P)\b`),
		regexp.MustCompile(`(?i)\b(?:AAC|DTS|AC3|MP3|FLAC|TrueHD|Atmos|DTS-HD\.MA|MA)\b`),
		regexp.MustCompile(`(?i)\b(?:PROPER|REPACK|INTERNAL|LIMITED|UNRATED|EXTENDED|SDR|HDR)\b`),
		regexp.MustCompile(`(?i)\b(?:English|Mandarin|CHS|CHT|ENG|中英|字幕|特效)\b`),
		regexp.MustCompile(`&`),
	}

	titleSplitPattern   = regexp.MustCompile(`[\s.\-_,:：]+`)
	genericSplitPattern = regexp.MustCompile(`[\s.\-_]+`)
	titleWordPattern    = regexp.MustCompile(`^[A-Z][A-Za-z]*$`)
	groupNoisePattern   = regexp.MustCompile(`(?i)^(?:FFans|星星|Fans)$`)
	phraseStopPattern   = regexp.MustCompile(`(?i)^(?:The|And)$`)
	stopwordPattern     = regexp.MustCompile(`(?i)^(?:The|And|For|With|From|Of|In|On|At|By)$`)

	sequelPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:Part|Vol|Volume|Chapter|Episode|Season|Series)\s*(?:\d+|[IVX]+)\b`),
		regexp.MustCompile(`\b(?:II|III|IV|V|VI|VII|VIII|IX|X)\b`),
		regexp.MustCompile(`第\s*[一二三四五六七八九十\d]+\s*[季部集]`),
	}

	editionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:GOTY|Game of the Year|Deluxe|Ultimate|Complete|Definitive|Enhanced)\b`),
		regexp.MustCompile(`(?i)\b(?:v\d+\.\d+|\d+\.\d+\.\d+)\b`),
		regexp.MustCompile(`(?i)\b(?:DLC|Expansion|Update)\b`),
	}

	softwareVersionPattern = regexp.MustCompile(`(?i)\bv?\d+\.\d+[.\d]*\b`)
)

// ExtractKeywords derives up to 8 distinct search terms from a torrent title.
// A release year comes first when present; the rest depends on category.
func ExtractKeywords(title string, category domain.Category) []string {
	folded := width.Fold.String(title)

	var keywords []string
	if year := ExtractYear(folded); year != "" {
		keywords = append(keywords, year)
	}

	cleaned := cleanTitle(folded)
	switch {
	case category.IsVideo():
		keywords = append(keywords, videoKeywords(folded, cleaned)...)
	case category.IsGame():
		keywords = append(keywords, gameKeywords(cleaned)...)
	case category.IsSoftware():
		keywords = append(keywords, softwareKeywords(cleaned)...)
	default:
		keywords = append(keywords, genericKeywords(cleaned)...)
	}

	return finalizeKeywords(keywords)
}

// ExtractYear returns the first 19xx or 20xx token of title.
func ExtractYear(title string) string {
	return yearPattern.FindString(title)
}

func cleanTitle(title string) string {
	cleaned := title
	for _, pattern := range noisePatterns {
		cleaned = pattern.ReplaceAllString(cleaned, " ")
	}
	return cleaned
}

// videoKeywords picks capitalised English words as the likely title and adds
// sequel markers found in the unstripped title.
func videoKeywords(original, cleaned string) []string {
	words := make([]string, 0, 8)
	for _, token := range titleSplitPattern.Split(cleaned, -1) {
		if len(token) < minTitleWordRunes || !titleWordPattern.MatchString(token) {
			continue
		}
		if groupNoisePattern.MatchString(token) {
			continue
		}
		words = append(words, token)
	}

	var out []string
	switch {
	case len(words) >= 2:
		head := words[:min(maxTitleWords, len(words))]
		out = append(out, strings.Join(head, " "))
		for _, word := range head {
			if phraseStopPattern.MatchString(word) {
				continue
			}
			out = append(out, word)
		}
	case len(words) == 1:
		out = append(out, words[0])
	}

	for _, pattern := range sequelPatterns {
		out = append(out, pattern.FindAllString(original, -1)...)
	}
	return out
}

func gameKeywords(cleaned string) []string {
	var out []string
	for _, pattern := range editionPatterns {
		out = append(out, pattern.FindAllString(cleaned, -1)...)
	}
	return append(out, pickTokens(cleaned, 3, maxGameWords)...)
}

func softwareKeywords(cleaned string) []string {
	var out []string
	if version := softwareVersionPattern.FindString(cleaned); version != "" {
		out = append(out, version)
	}
	return append(out, pickTokens(cleaned, 2, maxSoftwareWords)...)
}

func genericKeywords(cleaned string) []string {
	return pickTokens(cleaned, 3, maxGenericWords)
}

// pickTokens returns the first limit tokens whose length is within
// [minRunes, 30] and which contain at least one ASCII letter.
func pickTokens(cleaned string, minRunes, limit int) []string {
	out := make([]string, 0, limit)
	for _, token := range genericSplitPattern.Split(cleaned, -1) {
		if len(out) >= limit {
			break
		}
		n := utf8.RuneCountInString(token)
		if n < minRunes || n > maxTokenRunes || !hasASCIILetter(token) {
			continue
		}
		out = append(out, token)
	}
	return out
}

func hasASCIILetter(value string) bool {
	for _, r := range value {
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// finalizeKeywords trims, drops short tokens and stopwords, removes
// duplicates keeping the first occurrence, and caps the result.
func finalizeKeywords(raw []string) []string {
	out := make([]string, 0, maxKeywords)
	seen := make(map[string]struct{}, len(raw))
	for _, keyword := range raw {
		value := strings.TrimSpace(keyword)
		if utf8.RuneCountInString(value) < minKeywordRunes {
			continue
		}
		if stopwordPattern.MatchString(value) {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
		if len(out) >= maxKeywords {
			break
		}
	}
	return out
}
