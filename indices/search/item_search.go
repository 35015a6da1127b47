package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"leadflow/client/es"
	"leadflow/domain/work"
	"leadflow/indices"
	"leadflow/session"
)

var (
	SearchItemsFunc = SearchItems
)

// SearchItems answers the same query shape as the database listing, but out
// of elasticsearch; name matching is full text instead of a LIKE scan.
func SearchItems(q work.WorkItemQuery, s *session.Session) ([]work.WorkItem, error) {
	/*
		{
			"query": {
				"bool": {
					"filter": [
						{"term": {"config": "xxx"}},
						{"match": {"name": {"query": "xxx", "operator": "AND"}}},
						{"term": {"currentStage": "xxx"}},
						{"term": {"status": "xxx"}},
						{"term": {"assignees": "xxx"}}
					]
				}
			},
			"size": 10000,
			"sort": [{"createTime": {"order": "desc"}}]
		}
	*/
	filters := make([]es.H, 0, 6)
	filters = append(filters, es.H{"term": es.H{"config": q.ConfigUID}})

	if q.Name != "" {
		filters = append(filters, es.H{"match": es.H{"name": es.H{"query": q.Name, "operator": "AND"}}})
	}
	if q.Stage != "" {
		filters = append(filters, es.H{"term": es.H{"currentStage": q.Stage}})
	}
	if q.Status != "" {
		filters = append(filters, es.H{"term": es.H{"status": string(q.Status)}})
	}
	if q.Assignee != "" {
		filters = append(filters, es.H{"term": es.H{"assignees": q.Assignee}})
	}

	sorts := []es.H{{"createTime": es.H{"order": "desc"}}}

	root := es.H{"bool": es.H{"filter": filters}}
	r, err := es.SearchFunc(indices.ItemIndexName, es.H{"size": 10000, "query": root, "sort": sorts}, s)
	if err != nil {
		return nil, err
	}

	items := make([]work.WorkItem, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		item := work.WorkItem{}
		if err := json.NewDecoder(strings.NewReader(string(hit.Source))).Decode(&item); err != nil {
			return nil, fmt.Errorf(string(hit.Source))
		}
		if item.ArchiveTime.Time().IsZero() == q.Archived {
			continue
		}
		items = append(items, item)
	}

	return items, nil
}
