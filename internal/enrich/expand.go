package enrich

import (
	"regexp"
	"strconv"
	"strings"

	"auroramag/detailservice/internal/domain"
)

const maxExpandedKeywords = 10

type franchise struct {
	trigger string
	related []string
}

var yearKeywordPattern = regexp.MustCompile(`^(?:19|20)\d{2}$`)

var screenFranchises = []franchise{
	{trigger: "Marvel", related: []string{"MCU", "Avengers", "Spider", "Iron Man", "Captain"}},
	{trigger: "DC", related: []string{"Batman", "Superman", "Justice League", "Wonder Woman"}},
	{trigger: "Star Wars", related: []string{"Skywalker", "Mandalorian", "Jedi", "Sith"}},
	{trigger: "Star Trek", related: []string{"Enterprise", "Voyager", "Discovery", "Picard"}},
	{trigger: "Harry Potter", related: []string{"Wizarding", "Fantastic Beasts", "Hogwarts"}},
	{trigger: "Lord of the Rings", related: []string{"Hobbit", "Middle Earth", "LOTR"}},
	{trigger: "Fast", related: []string{"Furious", "Fast and Furious"}},
	{trigger: "Mission Impossible", related: []string{"MI", "Impossible"}},
}

var gameFranchises = []franchise{
	{trigger: "Call of Duty", related: []string{"COD", "Modern Warfare", "Black Ops", "Warzone"}},
	{trigger: "Assassin", related: []string{"AC", "Creed", "Ubisoft"}},
	{trigger: "Grand Theft Auto", related: []string{"GTA", "Rockstar"}},
	{trigger: "Elder Scrolls", related: []string{"Skyrim", "Oblivion", "Morrowind", "TES"}},
	{trigger: "Fallout", related: []string{"Bethesda", "Wasteland"}},
	{trigger: "Witcher", related: []string{"Geralt", "CD Projekt"}},
	{trigger: "Dark Souls", related: []string{"Elden Ring", "Bloodborne", "Sekiro", "FromSoftware"}},
	{trigger: "Final Fantasy", related: []string{"FF", "Square Enix"}},
}

// ExpandKeywords appends adjacent years and franchise associations to the
// extracted keywords. The result keeps input order first and holds at most 10
// distinct terms.
func ExpandKeywords(keywords []string, category domain.Category, title string) []string {
	expanded := append([]string(nil), keywords...)
	lowerTitle := strings.ToLower(title)

	switch {
	case category.IsVideo():
		for _, keyword := range keywords {
			if !yearKeywordPattern.MatchString(keyword) {
				continue
			}
			year, _ := strconv.Atoi(keyword)
			expanded = append(expanded, strconv.Itoa(year-1), strconv.Itoa(year+1))
			break
		}
		expanded = appendFranchiseTerms(expanded, screenFranchises, lowerTitle)
	case category.IsGame():
		expanded = appendFranchiseTerms(expanded, gameFranchises, lowerTitle)
	}

	return dedupe(expanded, maxExpandedKeywords)
}

func appendFranchiseTerms(dst []string, table []franchise, lowerTitle string) []string {
	for _, entry := range table {
		if strings.Contains(lowerTitle, strings.ToLower(entry.trigger)) {
			dst = append(dst, entry.related...)
		}
	}
	return dst
}

func dedupe(values []string, limit int) []string {
	out := make([]string, 0, min(len(values), limit))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
		if len(out) >= limit {
			break
		}
	}
	return out
}
