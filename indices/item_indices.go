package indices

import (
	"fmt"

	"leadflow/client/es"
	"leadflow/domain/work"
	"leadflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
)

var (
	ItemIndexName = "work_items"
)

// ItemDocument is the indexed projection of a work item. The whole aggregate
// goes in so search hits can be rendered without a database read.
type ItemDocument struct {
	work.WorkItem
}

type BatchActionError map[types.ID]error

func (e BatchActionError) Error() string {
	return fmt.Sprintf("%v", map[types.ID]error(e))
}

func IndexItems(items []work.WorkItem, s *session.Session) error {
	docs := make([]ItemDocument, 0, len(items))
	for _, item := range items {
		docs = append(docs, ItemDocument{WorkItem: item})
	}

	if err := saveItemDocuments(docs, s); err != nil {
		return err
	}
	return nil
}

func saveItemDocuments(docs []ItemDocument, s *session.Session) BatchActionError {
	errs := BatchActionError{}

	for _, doc := range docs {
		if err := es.IndexFunc(ItemIndexName, doc.ID, doc, s); err != nil {
			errs[doc.ID] = err
			logrus.Warnf("index item %d %s %s\n", doc.ID, doc.ItemID, err)
		} else {
			logrus.Infof("index item %d %s successfully\n", doc.ID, doc.ItemID)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
