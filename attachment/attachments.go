package attachment

import (
	"errors"
	"io"

	"leadflow/bizerror"
	"leadflow/client/s3"
	"leadflow/domain/work"
	"leadflow/idgen"
	"leadflow/persistence"
	"leadflow/session"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/fundwit/go-commons/types"
	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

var (
	idWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	CreateAttachmentFunc = CreateAttachment
	DetailAttachmentFunc = DetailAttachment
	ListAttachmentsFunc  = ListAttachments
)

// Attachment is the metadata record of one uploaded object; the content
// itself lives in the object store under ObjectKey. The record's UID is what
// a file_upload field value carries.
type Attachment struct {
	ID  types.ID `json:"id" gorm:"primary_key"`
	UID string   `json:"uid" gorm:"unique_index:uni_attachment_uid"`

	ItemUID string `json:"itemUid" gorm:"index:idx_attachment_item"`

	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	ObjectKey   string `json:"objectKey"`

	CreateTime  types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
	CreatorID   types.ID        `json:"creatorId"`
	CreatorName string          `json:"creatorName"`
}

func (r *Attachment) TableName() string {
	return "attachments"
}

func CreateAttachment(itemUID, fileName, contentType string, r io.Reader, s *session.Session) (*Attachment, error) {
	if _, err := work.DetailWorkItemFunc(itemUID, s); err != nil {
		return nil, err
	}

	record := Attachment{
		ID:  idgen.NextID(idWorker),
		UID: uuid.New().String(),

		ItemUID: itemUID,

		FileName:    fileName,
		ContentType: contentType,

		CreateTime:  types.CurrentTimestamp(),
		CreatorID:   s.Identity.ID,
		CreatorName: s.Identity.Name,
	}
	record.ObjectKey = "attachments/" + itemUID + "/" + record.UID

	if err := s3.PutObjectFunc(record.ObjectKey, r, s); err != nil {
		return nil, err
	}

	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	if err := db.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func DetailAttachment(uid string, s *session.Session) (*Attachment, io.ReadCloser, error) {
	record := Attachment{}
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	if err := db.Where(&Attachment{UID: uid}).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, bizerror.ErrNotFound
		}
		return nil, nil, err
	}

	r, err := s3.GetObjectFunc(record.ObjectKey, s)
	if err != nil {
		if serErr, ok := err.(oss.ServiceError); ok && serErr.Code == "NoSuchKey" {
			return nil, nil, bizerror.ErrNotFound
		}
		return nil, nil, err
	}
	return &record, r, nil
}

func ListAttachments(itemUID string, s *session.Session) ([]Attachment, error) {
	records := []Attachment{}
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	if err := db.Where(&Attachment{ItemUID: itemUID}).Order("create_time ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
