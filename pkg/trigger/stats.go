package trigger

import (
	"strings"
	"unicode/utf8"

	"github.com/zhy0216/offramp/pkg/types"
)

// byRole returns the messages authored by role, in conversation order.
func byRole(conv []types.Message, role types.Role) []types.Message {
	var out []types.Message
	for _, m := range conv {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

// contentLength is the length of a message in code points.
func contentLength(m types.Message) int {
	return utf8.RuneCountInString(m.Content)
}

// meanLength is the average content length of msgs, or 0 when empty.
func meanLength(msgs []types.Message) float64 {
	if len(msgs) == 0 {
		return 0
	}
	total := 0
	for _, m := range msgs {
		total += contentLength(m)
	}
	return float64(total) / float64(len(msgs))
}

// timestampGaps returns the differences between consecutive timestamps.
func timestampGaps(msgs []types.Message) []float64 {
	if len(msgs) < 2 {
		return nil
	}
	gaps := make([]float64, 0, len(msgs)-1)
	for i := 1; i < len(msgs); i++ {
		gaps = append(gaps, float64(msgs[i].Timestamp-msgs[i-1].Timestamp))
	}
	return gaps
}

// mean is the arithmetic mean of xs, or 0 when empty.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// countQuestions counts messages containing a question mark.
func countQuestions(msgs []types.Message) int {
	n := 0
	for _, m := range msgs {
		if strings.Contains(m.Content, "?") {
			n++
		}
	}
	return n
}
