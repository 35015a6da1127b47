package flow

import (
	"sort"

	"leadflow/bizerror"

	"github.com/jinzhu/gorm"
)

var LoadStageGraphFunc = LoadStageGraph

// StageGraph is a stateless view over one config's stages, just used for
// transition computing. Edges are the stages' allowed-next sets; the graph
// may contain cycles.
type StageGraph struct {
	Stages []Stage `json:"stages"`
}

func NewStageGraph(stages []Stage) *StageGraph {
	return &StageGraph{Stages: stages}
}

// LoadStageGraph reads all stages of one config within the caller's
// transaction, so transition decisions see the same snapshot as the write.
func LoadStageGraph(configUID string, tx *gorm.DB) (*StageGraph, error) {
	stages := []Stage{}
	if err := tx.Where(&Stage{ConfigUID: configUID}).Order("ord ASC, uid ASC").Find(&stages).Error; err != nil {
		return nil, err
	}
	return NewStageGraph(stages), nil
}

func (g *StageGraph) FindStage(uid string) (Stage, bool) {
	for _, s := range g.Stages {
		if s.UID == uid {
			return s, true
		}
	}
	return Stage{}, false
}

// InitialStage resolves the entry stage: the explicit uid when given, the
// active stage with the lowest (order, uid) otherwise.
func (g *StageGraph) InitialStage(explicitUID string) (Stage, error) {
	if explicitUID != "" {
		stage, found := g.FindStage(explicitUID)
		if !found {
			return Stage{}, bizerror.ErrUnknownStage
		}
		if !stage.IsActive {
			return Stage{}, bizerror.ErrStageInactive
		}
		return stage, nil
	}

	actives := g.ActiveStagesOrdered()
	if len(actives) == 0 {
		return Stage{}, bizerror.ErrNoInitialStage
	}
	return actives[0], nil
}

func (g *StageGraph) TransitionAllowed(fromUID, toUID string) bool {
	from, found := g.FindStage(fromUID)
	if !found {
		return false
	}
	if _, found := g.FindStage(toUID); !found {
		return false
	}
	return from.AllowedNextStages.Contains(toUID)
}

// IsTerminal reports whether a stage has no outgoing edge.
func (g *StageGraph) IsTerminal(uid string) bool {
	stage, found := g.FindStage(uid)
	if !found {
		return false
	}
	return len(stage.AllowedNextStages) == 0
}

func (g *StageGraph) ActiveStagesOrdered() []Stage {
	actives := make([]Stage, 0, len(g.Stages))
	for _, s := range g.Stages {
		if s.IsActive {
			actives = append(actives, s)
		}
	}
	sort.SliceStable(actives, func(i, j int) bool {
		if actives[i].Order != actives[j].Order {
			return actives[i].Order < actives[j].Order
		}
		return actives[i].UID < actives[j].UID
	})
	return actives
}
