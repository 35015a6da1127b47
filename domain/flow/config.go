package flow

import (
	"errors"
	"time"

	"leadflow/bizerror"
	"leadflow/domain/fields"
	"leadflow/idgen"
	"leadflow/persistence"
	"leadflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/patrickmn/go-cache"
	"github.com/sony/sonyflake"
)

var (
	configIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	DetailConfigFunc          = DetailConfig
	GetOrCreateConfigFunc     = GetOrCreateConfig
	ListConfigsFunc           = ListConfigs
	UpdateConfigVariablesFunc = UpdateConfigVariables

	// set by the work package on bootstrap, flow must not import work
	CheckFieldDefinitionReferencedFunc func(configUID, fieldKey string, tx *gorm.DB) error

	configCache = cache.New(30*time.Second, time.Minute)
)

const DefaultItemPrefix = "LEAD"

type WorkflowConfig struct {
	ID  types.ID `json:"id" gorm:"primary_key"`
	UID string   `json:"uid" gorm:"unique_index:uni_config_uid"`

	WorkflowName string `json:"workflowName"`
	ItemPrefix   string `json:"itemPrefix"`
	IsActive     bool   `json:"isActive"`

	Variables fields.FieldDefinitions `json:"variables" sql:"type:TEXT"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
	UpdateTime types.Timestamp `json:"updateTime" sql:"type:DATETIME(6) NOT NULL"`
}

func (r *WorkflowConfig) TableName() string {
	return "workflow_configs"
}

type ConfigUpdating struct {
	WorkflowName string                  `json:"workflowName"`
	Variables    fields.FieldDefinitions `json:"variables"`
}

func DetailConfig(uid string, s *session.Session) (*WorkflowConfig, error) {
	if cached, found := configCache.Get(uid); found {
		c := cached.(WorkflowConfig)
		return &c, nil
	}

	c := WorkflowConfig{}
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	if err := db.Where(&WorkflowConfig{UID: uid}).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bizerror.ErrNotFound
		}
		return nil, err
	}

	configCache.SetDefault(uid, c)
	return &c, nil
}

func GetOrCreateConfig(uid string, s *session.Session) (*WorkflowConfig, error) {
	c, err := DetailConfig(uid, s)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, bizerror.ErrNotFound) {
		return nil, err
	}

	now := types.CurrentTimestamp()
	created := WorkflowConfig{
		ID: idgen.NextID(configIdWorker), UID: uid,
		WorkflowName: "Workflow " + uid, ItemPrefix: DefaultItemPrefix, IsActive: true,
		Variables:  fields.FieldDefinitions{},
		CreateTime: now, UpdateTime: now,
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	if err := db.Create(&created).Error; err != nil {
		// lost a creation race, the winner's record is the valid one
		existing := WorkflowConfig{}
		if err2 := db.Where(&WorkflowConfig{UID: uid}).First(&existing).Error; err2 == nil {
			return &existing, nil
		}
		return nil, err
	}
	return &created, nil
}

func ListConfigs(s *session.Session) ([]WorkflowConfig, error) {
	var records []WorkflowConfig
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	if err := db.Order("uid ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// UpdateConfigVariables replaces the config's field definitions. Removing a
// definition that stored work item values still reference is rejected.
func UpdateConfigVariables(uid string, u *ConfigUpdating, s *session.Session) (*WorkflowConfig, error) {
	for _, def := range u.Variables {
		if err := def.ValidateDefinition(); err != nil {
			return nil, err
		}
	}

	updated := WorkflowConfig{}
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	err := db.Transaction(func(tx *gorm.DB) error {
		origin := WorkflowConfig{}
		if err := tx.Where(&WorkflowConfig{UID: uid}).First(&origin).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return bizerror.ErrNotFound
			}
			return err
		}

		for _, originDef := range origin.Variables {
			if _, kept := u.Variables.Find(originDef.Key); kept {
				continue
			}
			if CheckFieldDefinitionReferencedFunc != nil {
				if err := CheckFieldDefinitionReferencedFunc(uid, originDef.Key, tx); err != nil {
					return err
				}
			}
		}

		changes := WorkflowConfig{Variables: u.Variables, UpdateTime: types.CurrentTimestamp()}
		if u.WorkflowName != "" {
			changes.WorkflowName = u.WorkflowName
		}
		if err := tx.Model(&WorkflowConfig{}).Where(&WorkflowConfig{UID: uid}).Update(changes).Error; err != nil {
			return err
		}
		return tx.Where(&WorkflowConfig{UID: uid}).First(&updated).Error
	})
	if err != nil {
		return nil, err
	}

	configCache.Delete(uid)
	return &updated, nil
}
