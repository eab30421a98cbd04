package triage

import "math/rand/v2"

// Forecast is a coarse predicted patient load per route for the next hour.
type Forecast struct {
	PredictedLoadNextHour map[Route]int `json:"predictedLoadNextHour"`
}

type loadBand struct{ lo, hi int }

var loadBands = map[Route]loadBand{
	RouteER:         {8, 14},
	RouteUrgentCare: {6, 12},
	RouteTelehealth: {3, 9},
}

// BuildForecast draws a load per route from its band and counts the patient
// just routed. intn returns a value in [0, n); nil uses math/rand/v2.
func BuildForecast(route Route, intn func(n int) int) Forecast {
	if intn == nil {
		intn = rand.IntN
	}
	load := make(map[Route]int, len(loadBands))
	for r, b := range loadBands {
		load[r] = b.lo + intn(b.hi-b.lo+1)
	}
	if _, ok := load[route]; ok {
		load[route]++
	}
	return Forecast{PredictedLoadNextHour: load}
}
