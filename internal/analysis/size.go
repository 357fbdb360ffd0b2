package analysis

// Size categories.
const (
	SizeSmall     = "small"
	SizeMedium    = "medium"
	SizeLarge     = "large"
	SizeVeryLarge = "very_large"
	SizeMassive   = "massive"
)

var sizeRank = map[string]int{
	SizeSmall: 0, SizeMedium: 1, SizeLarge: 2, SizeVeryLarge: 3, SizeMassive: 4,
}

// SizeAnalysis classifies a PR by volume of change.
type SizeAnalysis struct {
	TotalChanges  int    `json:"total_changes"`
	Additions     int    `json:"additions"`
	Deletions     int    `json:"deletions"`
	ChangedFiles  int    `json:"changed_files"`
	Category      string `json:"category"`
	AsyncSuitable bool   `json:"async_suitable"`
}

// AnalyzeSize categorizes p by changed lines, raised by the number of
// changed files.
func AnalyzeSize(p PRData) SizeAnalysis {
	total := p.TotalChanges()

	var category string
	switch {
	case total < 200:
		category = SizeSmall
	case total < 1000:
		category = SizeMedium
	case total < 5000:
		category = SizeLarge
	case total < 20000:
		category = SizeVeryLarge
	default:
		category = SizeMassive
	}

	switch {
	case p.ChangedFiles > 100:
		category = atLeast(category, SizeMassive)
	case p.ChangedFiles > 50:
		category = atLeast(category, SizeVeryLarge)
	case p.ChangedFiles > 20:
		category = atLeast(category, SizeLarge)
	}

	return SizeAnalysis{
		TotalChanges:  total,
		Additions:     p.Additions,
		Deletions:     p.Deletions,
		ChangedFiles:  p.ChangedFiles,
		Category:      category,
		AsyncSuitable: sizeRank[category] >= sizeRank[SizeLarge],
	}
}

func atLeast(category, floor string) string {
	if sizeRank[category] < sizeRank[floor] {
		return floor
	}
	return category
}
