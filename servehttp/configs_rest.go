package servehttp

import (
	"net/http"

	"leadflow/bizerror"
	"leadflow/domain/flow"
	"leadflow/session"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func RegisterConfigsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group("/v1/configs", middleWares...)

	handler := &configsHandler{validator: validator.New()}

	g.GET("", handler.handleListConfigs)
	g.GET(":configUid", handler.handleDetailConfig)
	g.POST(":configUid", handler.handleGetOrCreateConfig)
	g.PUT(":configUid/variables", handler.handleUpdateConfigVariables)
}

type configsHandler struct {
	validator *validator.Validate
}

func (h *configsHandler) handleListConfigs(c *gin.Context) {
	records, err := flow.ListConfigsFunc(session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, records)
}

func (h *configsHandler) handleDetailConfig(c *gin.Context) {
	record, err := flow.DetailConfigFunc(c.Param("configUid"), session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *configsHandler) handleGetOrCreateConfig(c *gin.Context) {
	record, err := flow.GetOrCreateConfigFunc(c.Param("configUid"), session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *configsHandler) handleUpdateConfigVariables(c *gin.Context) {
	updating := flow.ConfigUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := h.validator.Struct(updating); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	record, err := flow.UpdateConfigVariablesFunc(c.Param("configUid"), &updating, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, record)
}
