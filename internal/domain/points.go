package domain

// Eco-point awards by lifecycle milestone
const (
	PointsReportCreated  = 10
	PointsReportVerified = 20
	PointsReportResolved = 50
)

// Milestones are the fixed eco-point totals that trigger a one-time
// celebratory notification, checked in ascending order.
var Milestones = []int{10, 50, 100, 250, 500}

// CrossedMilestone returns the lowest milestone t with old < t <= new, and
// whether one was crossed. A single award that jumps several thresholds only
// reports the lowest newly crossed one.
func CrossedMilestone(oldTotal, newTotal int) (int, bool) {
	for _, m := range Milestones {
		if oldTotal < m && newTotal >= m {
			return m, true
		}
	}
	return 0, false
}
