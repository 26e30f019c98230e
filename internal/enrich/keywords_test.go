package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auroramag/detailservice/internal/domain"
)

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		category domain.Category
		want     []string
	}{
		{
			name:     "movie with single title word",
			title:    "Inception 2010 1080p BluRay x264",
			category: domain.CategoryMovie,
			want:     []string{"2010", "Inception"},
		},
		{
			name:     "movie phrase drops leading article as single word",
			title:    "The Dark Knight 2008 1080p BluRay",
			category: domain.CategoryMovie,
			want:     []string{"2008", "The Dark Knight", "Dark", "Knight"},
		},
		{
			name:     "volume marker from original title",
			title:    "Kill Bill Vol 2 2004",
			category: domain.CategoryMovie,
			want:     []string{"2004", "Kill Bill Vol", "Kill", "Bill", "Vol", "Vol 2"},
		},
		{
			name:     "roman numeral sequel",
			title:    "Rocky II 1979",
			category: domain.CategoryMovie,
			want:     []string{"1979", "Rocky", "II"},
		},
		{
			name:     "cjk season marker",
			title:    "权力的游戏 第八季 Game of Thrones S08",
			category: domain.CategoryTV,
			want:     []string{"Game Thrones", "Game", "Thrones", "第八季"},
		},
		{
			name:     "game edition and version",
			title:    "Cyberpunk 2077 v2.1 GOTY Edition-GOG",
			category: domain.CategoryPCGames,
			want:     []string{"2077", "GOTY", "v2.1", "Cyberpunk", "Edition", "GOG"},
		},
		{
			name:     "software version",
			title:    "Adobe Photoshop 2024 v25.1.0 x64",
			category: domain.CategoryPC,
			want:     []string{"2024", "v25.1.0", "Adobe", "Photoshop", "v25"},
		},
		{
			name:     "other category strips audio tags",
			title:    "Some.Random_Album-FLAC",
			category: domain.CategoryOther,
			want:     []string{"Some", "Random", "Album"},
		},
		{
			name:     "stopwords only",
			title:    "The The The And",
			category: domain.CategoryOther,
			want:     []string{},
		},
		{
			name:     "empty title",
			title:    "",
			category: domain.CategoryMovie,
			want:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractKeywords(tt.title, tt.category)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestExtractKeywordsNeverRepeatsOrExceedsLimit(t *testing.T) {
	titles := []string{
		"Alpha Alpha Alpha Beta Beta Gamma Delta Epsilon 1999 Part 2 Part 2 II II",
		"Star Wars Episode IV A New Hope 1977 Remastered",
		"Foo.Bar.Baz.Qux.Quux.Corge.Grault.Garply.Waldo.Fred",
		"   ",
	}
	categories := []domain.Category{
		domain.CategoryMovie, domain.CategoryTV, domain.CategoryPCGames,
		domain.CategoryConsoleGames, domain.CategoryPC0Day, domain.CategoryPC, domain.CategoryOther,
	}

	for _, title := range titles {
		for _, category := range categories {
			got := ExtractKeywords(title, category)
			assert.LessOrEqual(t, len(got), 8, "title %q category %s", title, category)
			seen := map[string]struct{}{}
			for _, keyword := range got {
				_, dup := seen[keyword]
				assert.False(t, dup, "duplicate %q for title %q category %s", keyword, title, category)
				seen[keyword] = struct{}{}
				assert.GreaterOrEqual(t, len([]rune(keyword)), 2)
			}
		}
	}
}

func TestExtractKeywordsFoldsFullWidthText(t *testing.T) {
	got := ExtractKeywords("Ｉｎｃｅｐｔｉｏｎ　２０１０", domain.CategoryMovie)
	require.Equal(t, []string{"2010", "Inception"}, got)
}

func TestExpandKeywords(t *testing.T) {
	tests := []struct {
		name     string
		keywords []string
		category domain.Category
		title    string
		want     []string
	}{
		{
			name:     "adjacent years",
			keywords: []string{"2010", "Inception"},
			category: domain.CategoryMovie,
			title:    "Inception 2010",
			want:     []string{"2010", "Inception", "2009", "2011"},
		},
		{
			name:     "screen franchise",
			keywords: []string{"1977", "Star Wars"},
			category: domain.CategoryMovie,
			title:    "Star Wars Episode IV 1977",
			want:     []string{"1977", "Star Wars", "1976", "1978", "Skywalker", "Mandalorian", "Jedi", "Sith"},
		},
		{
			name:     "game franchise",
			keywords: []string{"Fallout"},
			category: domain.CategoryPCGames,
			title:    "Fallout 4 GOTY",
			want:     []string{"Fallout", "Bethesda", "Wasteland"},
		},
		{
			name:     "game table ignored for movies",
			keywords: []string{"Fallout"},
			category: domain.CategoryMovie,
			title:    "Fallout",
			want:     []string{"Fallout"},
		},
		{
			name:     "other category unchanged",
			keywords: []string{"2001", "Album"},
			category: domain.CategoryOther,
			title:    "Marvel Album 2001",
			want:     []string{"2001", "Album"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ExpandKeywords(tt.keywords, tt.category, tt.title))
		})
	}
}

func TestExpandKeywordsCapsAtTen(t *testing.T) {
	got := ExpandKeywords([]string{"2019", "Marvel Fast", "Marvel", "Fast"}, domain.CategoryMovie, "Marvel Fast 2019")
	require.Len(t, got, 10)
	assert.Equal(t, "Iron Man", got[9])
	assert.NotContains(t, got, "Furious")
}
