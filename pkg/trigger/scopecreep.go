package trigger

import "github.com/zhy0216/offramp/pkg/types"

// DetectScopeCreep reports whether the user's requests are growing instead
// of converging. It compares the last WindowSize user messages with the
// WindowSize before them and fires only when the recent ones are both longer
// by GrowthRatio and ask at least as many questions.
func DetectScopeCreep(conv []types.Message, opts ScopeCreepOptions) bool {
	st := opts.resolve()

	users := byRole(conv, types.RoleUser)
	w := st.window
	if w > len(users)/2 {
		return false
	}

	recent := users[len(users)-w:]
	earlier := users[len(users)-2*w : len(users)-w]

	growing := meanLength(recent) >= st.growth*meanLength(earlier)
	asking := countQuestions(recent) >= countQuestions(earlier)
	return growing && asking
}
