package enrich

import (
	"math"
	"time"

	"auroramag/detailservice/internal/domain"
)

const (
	gib = int64(1) << 30

	hoursPerDay        = 24.0
	defaultAgeDays     = 365.0
	recencyDaysPerUnit = 3.65
)

// ClassifyQuality maps a byte size to a tier using binary gigabytes.
// Negative sizes only come from malformed upstream data and fall into SD.
func ClassifyQuality(size int64) domain.QualityInfo {
	switch {
	case size < 1*gib:
		return domain.QualityInfo{Quality: domain.QualitySD, Label: "标清", Color: "#94a3b8"}
	case size < 3*gib:
		return domain.QualityInfo{Quality: domain.QualityHD, Label: "高清", Color: "#3b82f6"}
	case size < 8*gib:
		return domain.QualityInfo{Quality: domain.QualityFHD, Label: "全高清", Color: "#8b5cf6"}
	default:
		return domain.QualityInfo{Quality: domain.Quality4K, Label: "超高清", Color: "#f59e0b"}
	}
}

// RecommendationScore combines quality tier, swarm health and recency:
//
//	tier*10 + (2*seeders+leechers)/10 + max(0, 100-days/3.65)/10
//
// A missing publish date counts as a year old, which zeroes recency.
func RecommendationScore(item domain.RelatedItem, now time.Time) float64 {
	tier := float64(ClassifyQuality(item.Size).Quality.Score())
	health := float64(2*max(item.Seeders, 0) + max(item.Leechers, 0))

	days := defaultAgeDays
	if item.PublishedAt != nil && !item.PublishedAt.IsZero() {
		days = math.Max(0, now.Sub(*item.PublishedAt).Hours()/hoursPerDay)
	}
	recency := math.Max(0, 100-days/recencyDaysPerUnit)

	return tier*10 + health/10 + recency/10
}
