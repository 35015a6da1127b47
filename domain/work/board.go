package work

import (
	"sort"

	"leadflow/domain/flow"
	"leadflow/persistence"
	"leadflow/session"

	"github.com/fundwit/go-commons/types"
)

var BoardColumnsFunc = BoardColumns

type BoardColumn struct {
	StageUID  string `json:"stageUid"`
	StageName string `json:"stageName"`
	Color     string `json:"color"`
	Order     int    `json:"order"`

	Items []WorkItem `json:"items"`
}

// BoardColumns renders one column per active stage of the config, ordered by
// (order, uid), with the config's unarchived items partitioned by their
// current stage. A stage without items still yields its empty column. Items
// parked on an inactive stage are not shown.
func BoardColumns(configUID string, s *session.Session) ([]BoardColumn, error) {
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)

	graph, err := flow.LoadStageGraphFunc(configUID, db)
	if err != nil {
		return nil, err
	}

	items := []WorkItem{}
	if err := db.Where("config_uid = ? AND archive_time = ?", configUID, types.Timestamp{}).
		Find(&items).Error; err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreateTime.Time().Before(items[j].CreateTime.Time())
	})

	byStage := map[string][]WorkItem{}
	for _, item := range items {
		byStage[item.CurrentStage] = append(byStage[item.CurrentStage], item)
	}

	columns := []BoardColumn{}
	for _, stage := range graph.ActiveStagesOrdered() {
		column := BoardColumn{StageUID: stage.UID, StageName: stage.Name, Color: stage.Color, Order: stage.Order,
			Items: []WorkItem{}}
		if stageItems, found := byStage[stage.UID]; found {
			column.Items = stageItems
		}
		columns = append(columns, column)
	}
	return columns, nil
}
