package core

// SeriesPoint is one point of a chart series.
type SeriesPoint struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// Series is a named chart line.
type Series struct {
	Code   string        `json:"code"`
	Name   string        `json:"name"`
	Unit   string        `json:"unit"`
	Points []SeriesPoint `json:"points"`
}

// Headline is the latest value of a series next to its previous value.
type Headline struct {
	Name     string
	Unit     string
	Time     string
	Value    float64
	Previous float64
}

// Change returns the relative change to the previous value in percent.
func (h Headline) Change() float64 {
	if h.Previous == 0 {
		return 0
	}
	return (h.Value - h.Previous) / h.Previous * 100
}

// Overview is what the dashboard home page shows.
type Overview struct {
	Headlines []Headline
	LastFlow  *InvestorFlow
}
