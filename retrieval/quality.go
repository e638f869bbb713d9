package retrieval

import "github.com/wikigr/wikigr/store"

// qualityScore rates a section's usefulness as answer context on [0, 1].
// Length contributes up to 0.8, saturating at 200 words; keyword overlap
// with the question contributes up to 0.2. Stubs score zero outright.
func qualityScore(sec store.SectionMatch, keywords []string, stubCutoff int) float64 {
	if sec.WordCount < stubCutoff {
		return 0
	}

	lengthScore := 0.2 + float64(sec.WordCount)/200.0*0.6
	if lengthScore > 0.8 {
		lengthScore = 0.8
	}

	keywordScore := 0.0
	if len(keywords) > 0 {
		words := wordSet(sec.Content)
		hits := 0
		for _, k := range keywords {
			if words[k] {
				hits++
			}
		}
		keywordScore = float64(hits) / float64(len(keywords)) * 0.2
		if keywordScore > 0.2 {
			keywordScore = 0.2
		}
	}

	return lengthScore + keywordScore
}

// filterQuality drops sections scoring below threshold. If every section
// of an article is dropped the caller falls back to the full article, so
// a retrieved source never silently vanishes from the context.
func filterQuality(sections []store.SectionMatch, keywords []string, threshold float64, stubCutoff int) []store.SectionMatch {
	var kept []store.SectionMatch
	for _, sec := range sections {
		if qualityScore(sec, keywords, stubCutoff) >= threshold {
			kept = append(kept, sec)
		}
	}
	return kept
}
