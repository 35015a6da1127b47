package attachment_test

import (
	"context"
	"io"
	"io/ioutil"
	"strings"
	"testing"

	"leadflow/attachment"
	"leadflow/bizerror"
	"leadflow/client/s3"
	"leadflow/domain/work"
	"leadflow/persistence"
	"leadflow/session"
	"leadflow/testinfra"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
)

func setup(t *testing.T, testDatabase **testinfra.TestDatabase) {
	db := testinfra.StartMysqlTestDatabase("leadflow")
	assert.Nil(t, db.DS.GormDB(context.Background()).AutoMigrate(&attachment.Attachment{}).Error)
	persistence.ActiveDataSourceManager = db.DS
	*testDatabase = db
}

func teardown(t *testing.T, testDatabase *testinfra.TestDatabase) {
	if testDatabase != nil {
		testinfra.StopMysqlTestDatabase(testDatabase)
	}
}

func TestCreateAttachment(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should store the object and keep the metadata record", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		work.DetailWorkItemFunc = func(identifier string, s *session.Session) (*work.WorkItem, error) {
			Expect(identifier).To(Equal("i-10"))
			return &work.WorkItem{ID: 10, UID: identifier}, nil
		}
		stored := map[string]string{}
		s3.PutObjectFunc = func(key string, r io.Reader, s *session.Session, opts ...oss.Option) error {
			content, _ := ioutil.ReadAll(r)
			stored[key] = string(content)
			return nil
		}

		s := testinfra.BuildSession(100, "ann")
		record, err := attachment.CreateAttachment("i-10", "quote.pdf", "application/pdf",
			strings.NewReader("pdf-bytes"), s)
		Expect(err).To(BeNil())

		Expect(record.UID).ToNot(BeEmpty())
		Expect(record.ObjectKey).To(Equal("attachments/i-10/" + record.UID))
		Expect(record.FileName).To(Equal("quote.pdf"))
		Expect(record.CreatorName).To(Equal("ann"))
		Expect(stored[record.ObjectKey]).To(Equal("pdf-bytes"))

		list, err := attachment.ListAttachments("i-10", s)
		Expect(err).To(BeNil())
		Expect(len(list)).To(Equal(1))
		Expect(list[0].UID).To(Equal(record.UID))
	})

	t.Run("should refuse an upload for a missing item", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		work.DetailWorkItemFunc = func(identifier string, s *session.Session) (*work.WorkItem, error) {
			return nil, bizerror.ErrNotFound
		}

		s := testinfra.BuildSession(100, "ann")
		_, err := attachment.CreateAttachment("nosuch", "quote.pdf", "application/pdf",
			strings.NewReader("pdf-bytes"), s)
		Expect(err).To(Equal(bizerror.ErrNotFound))
	})
}

func TestDetailAttachment(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should stream the stored object back", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		work.DetailWorkItemFunc = func(identifier string, s *session.Session) (*work.WorkItem, error) {
			return &work.WorkItem{ID: 10, UID: identifier}, nil
		}
		s3.PutObjectFunc = func(key string, r io.Reader, s *session.Session, opts ...oss.Option) error {
			return nil
		}
		s3.GetObjectFunc = func(key string, s *session.Session, opts ...oss.Option) (io.ReadCloser, error) {
			return ioutil.NopCloser(strings.NewReader("pdf-bytes")), nil
		}

		s := testinfra.BuildSession(100, "ann")
		record, err := attachment.CreateAttachment("i-10", "quote.pdf", "application/pdf",
			strings.NewReader("pdf-bytes"), s)
		Expect(err).To(BeNil())

		found, reader, err := attachment.DetailAttachment(record.UID, s)
		Expect(err).To(BeNil())
		defer reader.Close()
		content, _ := ioutil.ReadAll(reader)
		Expect(string(content)).To(Equal("pdf-bytes"))
		Expect(found.ContentType).To(Equal("application/pdf"))
	})

	t.Run("should map a missing record or object to not found", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		s := testinfra.BuildSession(100, "ann")
		_, _, err := attachment.DetailAttachment("nosuch", s)
		Expect(err).To(Equal(bizerror.ErrNotFound))

		work.DetailWorkItemFunc = func(identifier string, s *session.Session) (*work.WorkItem, error) {
			return &work.WorkItem{ID: 10, UID: identifier}, nil
		}
		s3.PutObjectFunc = func(key string, r io.Reader, s *session.Session, opts ...oss.Option) error {
			return nil
		}
		record, err := attachment.CreateAttachment("i-10", "quote.pdf", "application/pdf",
			strings.NewReader("pdf-bytes"), s)
		Expect(err).To(BeNil())

		s3.GetObjectFunc = func(key string, s *session.Session, opts ...oss.Option) (io.ReadCloser, error) {
			return nil, oss.ServiceError{Code: "NoSuchKey"}
		}
		_, _, err = attachment.DetailAttachment(record.UID, s)
		Expect(err).To(Equal(bizerror.ErrNotFound))
	})
}
