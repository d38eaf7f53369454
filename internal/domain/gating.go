package domain

// IsStepEnabled reports whether a workflow step may be edited while the
// project is in stage. Stage 1 (data preparation) unlocks the company,
// specification, payment method and requisites steps; stages 2 and 3
// unlock everything. Unknown stages and steps are never enabled.
func IsStepEnabled(step, stage int) bool {
	if !ValidStep(step) {
		return false
	}
	switch stage {
	case 1:
		switch step {
		case 1, 2, 4, 5:
			return true
		default:
			return false
		}
	case 2, 3:
		return true
	default:
		return false
	}
}

// EnabledSteps lists the enabled steps for stage in ascending order.
func EnabledSteps(stage int) []int {
	out := make([]int, 0, MaxStep)
	for step := MinStep; step <= MaxStep; step++ {
		if IsStepEnabled(step, stage) {
			out = append(out, step)
		}
	}
	return out
}
