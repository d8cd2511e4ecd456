package trigger

import "github.com/zhy0216/offramp/pkg/types"

// DetectLoop reports whether the trailing user messages are a run of
// near-duplicate requests: the last Threshold user messages, with every
// consecutive pair at or above SimilarityFloor.
func DetectLoop(conv []types.Message, opts LoopOptions) bool {
	st := opts.resolve()

	users := byRole(conv, types.RoleUser)
	if len(users) < st.threshold {
		return false
	}

	window := users[len(users)-st.threshold:]
	tokens := make([][]string, len(window))
	for i, m := range window {
		tokens[i] = Tokenize(m.Content)
	}

	for i := 1; i < len(tokens); i++ {
		if CosineSimilarity(tokens[i-1], tokens[i]) < st.floor {
			return false
		}
	}
	return true
}
