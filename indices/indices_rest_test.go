package indices_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"leadflow/bizerror"
	"leadflow/indices"
	"leadflow/session"
	"leadflow/testinfra"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/gomega"
)

func TestHandleIndexRequest(t *testing.T) {
	RegisterTestingT(t)

	router := gin.Default()
	router.Use(bizerror.ErrorHandling())
	indices.RegisterIndicesRestAPI(router)

	t.Run("handle error", func(t *testing.T) {
		indices.ScheduleNewSyncRunFunc = func(s *session.Session) (bool, error) {
			return false, errors.New("error on schedule new sync run")
		}
		req := httptest.NewRequest(http.MethodPost, indices.PathIndexRequests, nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusInternalServerError))
		Expect(body).To(MatchJSON(`{"code":"common.internal_server_error", "message":"error on schedule new sync run"}`))
	})

	t.Run("submit index request successfully", func(t *testing.T) {
		indices.ScheduleNewSyncRunFunc = func(s *session.Session) (bool, error) {
			return true, nil
		}
		req := httptest.NewRequest(http.MethodPost, indices.PathIndexRequests, nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`{"result": true}`))
	})

	t.Run("submit index request failed", func(t *testing.T) {
		indices.ScheduleNewSyncRunFunc = func(s *session.Session) (bool, error) {
			return false, nil
		}
		req := httptest.NewRequest(http.MethodPost, indices.PathIndexRequests, nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`{"result": false}`))
	})
}
