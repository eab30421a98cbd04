package triage

// WaitRangeFor estimates the wait in minutes as "min-max".
func WaitRangeFor(route Route, score int) string {
	switch route {
	case RouteER:
		if score >= 4 {
			return "10-30"
		}
		return "20-60"
	case RouteUrgentCare:
		if score >= 3 {
			return "20-60"
		}
		return "30-90"
	default:
		return "5-20"
	}
}
