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

type stageQuery struct {
	ConfigUID string `form:"config" validate:"required"`
}

func RegisterStagesRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group("/v1/stages", middleWares...)

	handler := &stagesHandler{validator: validator.New()}

	g.POST("", handler.handleCreateStage)
	g.GET("", handler.handleListStages)
	g.GET(":stageUid", handler.handleDetailStage)
	g.PUT(":stageUid", handler.handleUpdateStage)
	g.DELETE(":stageUid", handler.handleDeleteStage)

	r.PUT("/v1/stage-orders", append(middleWares, handler.handleUpdateStageOrders)...)
}

type stagesHandler struct {
	validator *validator.Validate
}

func (h *stagesHandler) handleCreateStage(c *gin.Context) {
	creation := flow.StageCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	stage, err := flow.CreateStageFunc(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusCreated, stage)
}

func (h *stagesHandler) handleListStages(c *gin.Context) {
	query := stageQuery{}
	_ = c.MustBindWith(&query, binding.Query)
	if err := h.validator.Struct(query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	stages, err := flow.ListStagesFunc(query.ConfigUID, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, stages)
}

func (h *stagesHandler) handleDetailStage(c *gin.Context) {
	query := stageQuery{}
	_ = c.MustBindWith(&query, binding.Query)
	if err := h.validator.Struct(query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	stage, err := flow.DetailStageFunc(query.ConfigUID, c.Param("stageUid"), session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, stage)
}

func (h *stagesHandler) handleUpdateStage(c *gin.Context) {
	query := stageQuery{}
	_ = c.MustBindWith(&query, binding.Query)
	if err := h.validator.Struct(query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	updating := flow.StageUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	stage, err := flow.UpdateStageFunc(query.ConfigUID, c.Param("stageUid"), &updating, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, stage)
}

func (h *stagesHandler) handleDeleteStage(c *gin.Context) {
	query := stageQuery{}
	_ = c.MustBindWith(&query, binding.Query)
	if err := h.validator.Struct(query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	err := flow.DeleteStageFunc(query.ConfigUID, c.Param("stageUid"), session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *stagesHandler) handleUpdateStageOrders(c *gin.Context) {
	query := stageQuery{}
	_ = c.MustBindWith(&query, binding.Query)
	if err := h.validator.Struct(query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	var orderUpdating []flow.StageOrderRangeUpdating
	if err := c.ShouldBindBodyWith(&orderUpdating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	for _, updating := range orderUpdating {
		if err := h.validator.Struct(updating); err != nil {
			panic(&bizerror.ErrBadParam{Cause: err})
		}
	}

	err := flow.UpdateStageRangeOrdersFunc(query.ConfigUID, &orderUpdating, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.Status(http.StatusNoContent)
}
