package score

// Query filters and orders a bulk read of aggregates
type Query struct {
	MinPercentage float64   `json:"min_percentage,omitempty"`
	MinSources    int       `json:"min_sources,omitempty"`
	Tier          Tier      `json:"tier,omitempty"`
	Group         Group     `json:"group,omitempty"`
	Sort          SortField `json:"sort,omitempty"`
	Ascending     bool      `json:"ascending,omitempty"`
	Limit         int       `json:"limit,omitempty"`
	Offset        int       `json:"offset,omitempty"`
}

// Page is one window of a filtered listing
type Page struct {
	Items      []GeneScoreAggregate `json:"items"`
	Total      int                  `json:"total"`
	Generation uint64               `json:"generation"`
}

// Matches reports whether an aggregate passes the filters
func (q Query) Matches(agg GeneScoreAggregate) bool {
	if agg.PercentageScore < q.MinPercentage {
		return false
	}
	if agg.SourceCount < q.MinSources {
		return false
	}
	if q.Tier != "" && agg.Tier != q.Tier {
		return false
	}
	if q.Group != "" && agg.Group != q.Group {
		return false
	}
	return true
}

// Apply runs the query against a snapshot without touching it
func (q Query) Apply(s *Snapshot) Page {
	matched := make([]GeneScoreAggregate, 0, len(s.ordered))
	for _, agg := range s.ordered {
		if q.Matches(agg) {
			matched = append(matched, agg)
		}
	}

	field := q.Sort
	if field == "" {
		field = SortByPercentage
	}
	if field != SortByPercentage || q.Ascending {
		SortAggregates(matched, field, !q.Ascending)
	}

	total := len(matched)
	start := q.Offset
	if start > total {
		start = total
	}
	if start < 0 {
		start = 0
	}
	end := total
	if q.Limit > 0 && start+q.Limit < total {
		end = start + q.Limit
	}

	return Page{
		Items:      matched[start:end],
		Total:      total,
		Generation: s.Generation,
	}
}
