package flow

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"leadflow/bizerror"
	"leadflow/domain/fields"
	"leadflow/idgen"
	"leadflow/persistence"
	"leadflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

var (
	stageIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	CreateStageFunc            = CreateStage
	DetailStageFunc            = DetailStage
	ListStagesFunc             = ListStages
	UpdateStageFunc            = UpdateStage
	UpdateStageRangeOrdersFunc = UpdateStageRangeOrders
	DeleteStageFunc            = DeleteStage
)

// StageTask is the template of a task to collect when an item occupies the
// stage; instances are seeded per work item.
type StageTask struct {
	UID         string `json:"uid"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`

	Required bool `json:"required"`
	Order    int  `json:"order"`
	IsActive bool `json:"isActive"`

	TaskFields fields.FieldDefinitions `json:"taskFields"`
}

type StageTasks []StageTask

func (t StageTasks) Value() (driver.Value, error) {
	jsonBytes, err := json.Marshal(&t)
	if err != nil {
		return nil, err
	}
	return string(jsonBytes), nil
}

func (c *StageTasks) Scan(v interface{}) error {
	jsonString, ok := v.(string)
	if !ok {
		jsonByte, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("type is neither string nor []byte: %T %v", v, v)
		}
		jsonString = string(jsonByte)
	}
	return json.Unmarshal([]byte(jsonString), c)
}

type StageUIDs []string

func (t StageUIDs) Value() (driver.Value, error) {
	jsonBytes, err := json.Marshal(&t)
	if err != nil {
		return nil, err
	}
	return string(jsonBytes), nil
}

func (c *StageUIDs) Scan(v interface{}) error {
	jsonString, ok := v.(string)
	if !ok {
		jsonByte, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("type is neither string nor []byte: %T %v", v, v)
		}
		jsonString = string(jsonByte)
	}
	return json.Unmarshal([]byte(jsonString), c)
}

func (t StageUIDs) Contains(uid string) bool {
	for _, s := range t {
		if s == uid {
			return true
		}
	}
	return false
}

type Stage struct {
	ID types.ID `json:"id" gorm:"primary_key"`

	ConfigUID string `json:"config" gorm:"unique_index:uni_config_stage"`
	UID       string `json:"uid" gorm:"unique_index:uni_config_stage"`

	Name  string `json:"name"`
	Color string `json:"color"`

	Order    int  `json:"order" gorm:"column:ord"`
	IsActive bool `json:"isActive"`

	AllowedNextStages StageUIDs  `json:"allowedNextStages" sql:"type:TEXT"`
	StageTasks        StageTasks `json:"stageTasks" sql:"type:TEXT"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
	UpdateTime types.Timestamp `json:"updateTime" sql:"type:DATETIME(6) NOT NULL"`
}

func (r *Stage) TableName() string {
	return "work_stages"
}

type StageCreation struct {
	ConfigUID string `json:"config" binding:"required"`
	UID       string `json:"uid"`
	Name      string `json:"name" binding:"required"`
	Color     string `json:"color"`
	Order     int    `json:"order"`

	AllowedNextStages StageUIDs  `json:"allowedNextStages"`
	StageTasks        StageTasks `json:"stageTasks"`
}

type StageUpdating struct {
	Name  string `json:"name"`
	Color string `json:"color"`

	IsActive          *bool       `json:"isActive"`
	AllowedNextStages *StageUIDs  `json:"allowedNextStages"`
	StageTasks        *StageTasks `json:"stageTasks"`
}

type StageOrderRangeUpdating struct {
	UID      string `json:"uid" binding:"required"`
	NewOrder int    `json:"newOrder"`
}

const defaultStageColor = "#6B7280"

func CreateStage(c *StageCreation, s *session.Session) (*Stage, error) {
	for i := range c.StageTasks {
		if c.StageTasks[i].UID == "" {
			c.StageTasks[i].UID = uuid.New().String()
		}
		for _, def := range c.StageTasks[i].TaskFields {
			if err := def.ValidateDefinition(); err != nil {
				return nil, err
			}
		}
	}

	now := types.CurrentTimestamp()
	record := Stage{
		ID:        idgen.NextID(stageIdWorker),
		ConfigUID: c.ConfigUID, UID: c.UID,
		Name: c.Name, Color: c.Color,
		Order: c.Order, IsActive: true,
		AllowedNextStages: c.AllowedNextStages,
		StageTasks:        c.StageTasks,
		CreateTime:        now, UpdateTime: now,
	}
	if record.UID == "" {
		record.UID = uuid.New().String()
	}
	if record.Color == "" {
		record.Color = defaultStageColor
	}
	if record.AllowedNextStages == nil {
		record.AllowedNextStages = StageUIDs{}
	}
	if record.StageTasks == nil {
		record.StageTasks = StageTasks{}
	}

	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	err := db.Transaction(func(tx *gorm.DB) error {
		config := WorkflowConfig{}
		if err := tx.Where(&WorkflowConfig{UID: c.ConfigUID}).First(&config).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return bizerror.ErrNotFound
			}
			return err
		}
		if !config.IsActive {
			return bizerror.ErrConfigInactive
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func DetailStage(configUID, uid string, s *session.Session) (*Stage, error) {
	record := Stage{}
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	if err := db.Where(&Stage{ConfigUID: configUID, UID: uid}).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bizerror.ErrUnknownStage
		}
		return nil, err
	}
	return &record, nil
}

// ListStages returns every stage of the config ordered by (order, uid); the
// uid tiebreak keeps the output deterministic.
func ListStages(configUID string, s *session.Session) ([]Stage, error) {
	var records []Stage
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	if err := db.Where(&Stage{ConfigUID: configUID}).Order("ord ASC, uid ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func UpdateStage(configUID, uid string, u *StageUpdating, s *session.Session) (*Stage, error) {
	if u.StageTasks != nil {
		for i := range *u.StageTasks {
			if (*u.StageTasks)[i].UID == "" {
				(*u.StageTasks)[i].UID = uuid.New().String()
			}
			for _, def := range (*u.StageTasks)[i].TaskFields {
				if err := def.ValidateDefinition(); err != nil {
					return nil, err
				}
			}
		}
	}

	updated := Stage{}
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	err := db.Transaction(func(tx *gorm.DB) error {
		origin := Stage{}
		if err := tx.Where(&Stage{ConfigUID: configUID, UID: uid}).First(&origin).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return bizerror.ErrUnknownStage
			}
			return err
		}

		changes := map[string]interface{}{"update_time": types.CurrentTimestamp()}
		if u.Name != "" {
			changes["name"] = u.Name
		}
		if u.Color != "" {
			changes["color"] = u.Color
		}
		if u.IsActive != nil {
			changes["is_active"] = *u.IsActive
		}
		if u.AllowedNextStages != nil {
			value, err := u.AllowedNextStages.Value()
			if err != nil {
				return err
			}
			changes["allowed_next_stages"] = value
		}
		if u.StageTasks != nil {
			value, err := u.StageTasks.Value()
			if err != nil {
				return err
			}
			changes["stage_tasks"] = value
		}

		if err := tx.Model(&Stage{}).Where(&Stage{ConfigUID: configUID, UID: uid}).Update(changes).Error; err != nil {
			return err
		}
		return tx.Where(&Stage{ConfigUID: configUID, UID: uid}).First(&updated).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func UpdateStageRangeOrders(configUID string, wantedOrders *[]StageOrderRangeUpdating, s *session.Session) error {
	if wantedOrders == nil || len(*wantedOrders) == 0 {
		return nil
	}

	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	return db.Transaction(func(tx *gorm.DB) error {
		for _, orderUpdating := range *wantedOrders {
			ret := tx.Model(&Stage{}).Where(&Stage{ConfigUID: configUID, UID: orderUpdating.UID}).
				Update(map[string]interface{}{"ord": orderUpdating.NewOrder, "update_time": types.CurrentTimestamp()})
			if err := ret.Error; err != nil {
				return err
			}
			if ret.RowsAffected != 1 {
				return errors.New("expected affected row is 1, but actual is " + strconv.FormatInt(ret.RowsAffected, 10))
			}
		}
		return nil
	})
}

// DeleteStage removes a stage that no work item currently occupies.
func DeleteStage(configUID, uid string, s *session.Session) error {
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	return db.Transaction(func(tx *gorm.DB) error {
		stage := Stage{}
		if err := tx.Where(&Stage{ConfigUID: configUID, UID: uid}).First(&stage).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return bizerror.ErrUnknownStage
			}
			return err
		}

		occupied := 0
		if err := tx.Table("work_items").
			Where("config_uid = ? AND current_stage = ?", configUID, uid).Count(&occupied).Error; err != nil {
			return err
		}
		if occupied > 0 {
			return bizerror.ErrStageIsReferenced
		}

		return tx.Delete(&Stage{}, "config_uid = ? AND uid = ?", configUID, uid).Error
	})
}
