package testinfra

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"

	"leadflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
)

// BuildSession builds an authenticated session for tests.
func BuildSession(uid types.ID, name string) *session.Session {
	return &session.Session{
		Token:    "test-token-" + name,
		Identity: session.Identity{ID: uid, Name: name},
		Context:  context.Background(),
	}
}

// ExecuteRequest runs the request through the router and collects the
// response.
func ExecuteRequest(req *http.Request, router *gin.Engine) (int, string, *http.Response) {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	resp := w.Result()
	bodyBytes, _ := ioutil.ReadAll(resp.Body)
	resp.Body.Close()
	return resp.StatusCode, string(bodyBytes), resp
}
