// detail_level.go holds the verbosity levels and footers shared by the
// memory tools.
package memory

import "fmt"

// Detail level constants.
const (
	DetailSummary  = "summary"
	DetailStandard = "standard"
	DetailFull     = "full"
)

// DetailLevelValues returns the enum values for MCP tool definitions.
func DetailLevelValues() []string {
	return []string{DetailSummary, DetailStandard, DetailFull}
}

// ParseDetailLevel normalizes a detail_level string, defaulting to "standard"
// for empty or unrecognized values.
func ParseDetailLevel(s string) string {
	switch s {
	case DetailSummary, DetailFull:
		return s
	default:
		return DetailStandard
	}
}

// SnippetLength is the content length shown per entry at a detail level.
// Zero hides the content and a negative length means untruncated.
func SnippetLength(level string) int {
	switch level {
	case DetailSummary:
		return 0
	case DetailFull:
		return -1
	default:
		return 300
	}
}

// NavigationHint returns a one-line footer when results are capped by a limit.
// Returns an empty string when all results fit or total is 0.
func NavigationHint(showing, total int, hint string) string {
	if total <= 0 || showing >= total {
		return ""
	}
	if hint != "" {
		return fmt.Sprintf("\nShowing %d of %d. %s", showing, total, hint)
	}
	return fmt.Sprintf("\nShowing %d of %d.", showing, total)
}

// EstimateTokens approximates the token count of text with the chars/4
// heuristic. Returns 0 for empty strings, at least 1 otherwise.
func EstimateTokens(text string) int {
	n := len(text)
	if n == 0 {
		return 0
	}
	if n/4 == 0 {
		return 1
	}
	return n / 4
}

// TokenFooter returns a one-line footer with the estimated token count.
func TokenFooter(estimatedTokens int) string {
	return fmt.Sprintf("\n~%s tokens", formatNumber(estimatedTokens))
}

func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if n < 1000 {
		return s
	}
	var result []byte
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	return string(result)
}
