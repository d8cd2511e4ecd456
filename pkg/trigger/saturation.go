package trigger

import (
	"strings"

	"github.com/zhy0216/offramp/pkg/types"
)

// DetectSaturation reports whether the user keeps asking for more after the
// assistant has already given enough to act on.
//
// Once AssistantResponseThreshold substantive assistant replies (at least
// MinAssistantLength long) have been given, every later user message that
// contains one of RequestPatterns counts as a follow-up request. Two or more
// follow-ups fire the detector.
func DetectSaturation(conv []types.Message, opts SaturationOptions) bool {
	st := opts.resolve()

	var substantive []types.Message
	for _, m := range conv {
		if m.Role == types.RoleAssistant && contentLength(m) >= st.minLength {
			substantive = append(substantive, m)
		}
	}
	if len(substantive) < st.responses {
		return false
	}
	saturatedAt := substantive[st.responses-1].Timestamp

	patterns := make([]string, len(st.patterns))
	for i, p := range st.patterns {
		patterns[i] = strings.ToLower(p)
	}

	requests := 0
	for _, m := range conv {
		if m.Role != types.RoleUser || m.Timestamp <= saturatedAt {
			continue
		}
		if containsAny(strings.ToLower(m.Content), patterns) {
			requests++
		}
	}
	return requests >= saturationMinRequests
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
