package indices

import (
	"fmt"

	"foodsafe/client/es"
	"foodsafe/domain"
	"foodsafe/session"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
)

var (
	CapaIndexName = "capas"
)

type CapaDocument struct {
	domain.Capa
}

type BatchActionError map[types.ID]error

func (e BatchActionError) Error() string {
	return fmt.Sprintf("%v", map[types.ID]error(e))
}

func IndexCapas(capas []domain.Capa, s *session.Session) error {
	docs := make([]CapaDocument, 0, len(capas))
	for _, record := range capas {
		docs = append(docs, CapaDocument{Capa: record})
	}

	if err := saveCapaDocuments(docs, s); err != nil {
		return err
	}
	return nil
}

func saveCapaDocuments(docs []CapaDocument, s *session.Session) BatchActionError {
	errs := BatchActionError{}

	for _, doc := range docs {
		if err := es.IndexFunc(CapaIndexName, doc.ID, doc, s); err != nil {
			errs[doc.ID] = err
			logrus.Warnf("index capa %d %s %s\n", doc.ID, doc.Title, err)
		} else {
			logrus.Infof("index capa %d successfully\n", doc.ID)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
