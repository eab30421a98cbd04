package triage

var routePriority = map[Route]int{
	RouteER:         3,
	RouteUrgentCare: 2,
	RouteTelehealth: 1,
}

// Valid reports whether r is one of the known care routes.
func (r Route) Valid() bool {
	_, ok := routePriority[r]
	return ok
}

// Priority ranks routes by urgency, 0 for unknown routes.
func (r Route) Priority() int {
	return routePriority[r]
}

// RouteFromSeverity is the route a severity deserves on its own.
func RouteFromSeverity(score int) Route {
	switch {
	case score >= 4:
		return RouteER
	case score == 3:
		return RouteUrgentCare
	default:
		return RouteTelehealth
	}
}

// MergeCareRoute reconciles a model-suggested route with the severity route.
// The model may keep or raise urgency but never lower it below what the
// severity alone implies. Unknown suggestions yield the severity route.
func MergeCareRoute(suggested any, score int) Route {
	severityRoute := RouteFromSeverity(score)
	r, ok := asRoute(suggested)
	if !ok {
		return severityRoute
	}
	if r.Priority() >= severityRoute.Priority() {
		return r
	}
	return severityRoute
}

func asRoute(v any) (Route, bool) {
	var r Route
	switch s := v.(type) {
	case Route:
		r = s
	case string:
		r = Route(s)
	default:
		return "", false
	}
	return r, r.Valid()
}
