package trigger

import "github.com/zhy0216/offramp/pkg/types"

// DetectVelocityCollapse reports whether the user's recent messages got much
// shorter, or arrive much more slowly, than their earlier ones.
//
// The last WindowSize user messages form the recent group and everything
// before them the earlier group. Timestamp gaps are measured within each
// group, never across the boundary.
func DetectVelocityCollapse(conv []types.Message, opts VelocityOptions) bool {
	st := opts.resolve()

	users := byRole(conv, types.RoleUser)
	// both groups need a full window; st.window*2 could overflow
	if st.window > len(users)/2 {
		return false
	}

	split := len(users) - st.window
	earlier, recent := users[:split], users[split:]

	if earlierMean := meanLength(earlier); earlierMean > 0 {
		if meanLength(recent)/earlierMean <= st.lengthDrop {
			return true
		}
	}

	earlierGaps := timestampGaps(earlier)
	recentGaps := timestampGaps(recent)
	if len(earlierGaps) == 0 || len(recentGaps) == 0 {
		return false
	}
	earlierGap := mean(earlierGaps)
	if earlierGap <= 0 {
		return false
	}
	return mean(recentGaps)/earlierGap >= st.frequencyDrop
}
