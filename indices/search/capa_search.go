package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"foodsafe/client/es"
	"foodsafe/domain"
	"foodsafe/indices"
	"foodsafe/session"
)

var (
	SearchCapasFunc = SearchCapas
)

// SearchCapas runs the query against the capa index. Visibility is enforced
// the same way as the database path: admins see everything, everyone else is
// confined to the departments their roles name.
func SearchCapas(q *domain.CapaQuery, s *session.Session) ([]domain.Capa, error) {
	visibleDepartments := s.VisibleDepartments()
	if visibleDepartments != nil && len(visibleDepartments) == 0 {
		return []domain.Capa{}, nil
	}

	filters := make([]es.H, 0, 5)
	if visibleDepartments != nil {
		filters = append(filters, es.H{"terms": es.H{"department": visibleDepartments}})
	}
	if q.Department != "" {
		filters = append(filters, es.H{"term": es.H{"department": q.Department}})
	}
	if len(q.Statuses) > 0 {
		filters = append(filters, es.H{"terms": es.H{"status": q.Statuses}})
	}
	if len(q.Priorities) > 0 {
		filters = append(filters, es.H{"terms": es.H{"priority": q.Priorities}})
	}
	if q.Keyword != "" {
		filters = append(filters, es.H{"match": es.H{"title": es.H{"query": q.Keyword, "operator": "AND"}}})
	}

	sorts := []es.H{{"createTime": es.H{"order": "desc"}}}

	root := es.H{"bool": es.H{"filter": filters}}
	r, err := es.SearchFunc(indices.CapaIndexName, es.H{"size": 10000, "query": root, "sort": sorts}, s)
	if err != nil {
		return nil, err
	}

	records := make([]domain.Capa, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		record := domain.Capa{}
		if err := json.NewDecoder(strings.NewReader(string(hit.Source))).Decode(&record); err != nil {
			return nil, fmt.Errorf(string(hit.Source))
		}
		records = append(records, record)
	}
	return records, nil
}
