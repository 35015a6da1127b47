package account

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"

	"leadflow/idgen"
	"leadflow/persistence"

	"github.com/fundwit/go-commons/types"
	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
	"github.com/sony/sonyflake"
)

var (
	idWorker = sonyflake.NewSonyflake(sonyflake.Settings{})
)

type User struct {
	ID     types.ID `json:"id" gorm:"primary_key"`
	Name   string   `json:"name" gorm:"unique_index:uni_user_name"`
	Secret string   `json:"-"`

	Nickname string `json:"nickname"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
}

func (r *User) TableName() string {
	return "users"
}

func HashSha256(raw string) string {
	h := sha256.New()
	h.Write([]byte(raw))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Bootstrap makes sure an admin user exists. A fresh database gets one with
// the ADMIN_PASSWORD env value, or a generated password printed once to the
// log.
func Bootstrap() error {
	db := persistence.ActiveDataSourceManager.GormDB(nil)

	existing := User{}
	err := db.Where(&User{Name: "admin"}).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	password := os.Getenv("ADMIN_PASSWORD")
	generated := false
	if password == "" {
		password = uuid.New().String()
		generated = true
	}

	admin := User{
		ID: idgen.NextID(idWorker), Name: "admin", Nickname: "Administrator",
		Secret:     HashSha256(password),
		CreateTime: types.CurrentTimestamp(),
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}
	if generated {
		logrus.Infof("admin user created with generated password: %s", password)
	} else {
		logrus.Infoln("admin user created")
	}
	return nil
}
