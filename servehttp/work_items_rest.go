package servehttp

import (
	"net/http"

	"leadflow/bizerror"
	"leadflow/common"
	"leadflow/domain/work"
	"leadflow/indices/search"
	"leadflow/misc"
	"leadflow/session"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func RegisterWorkItemsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group("/v1/work-items", middleWares...)

	handler := &workItemsHandler{validator: validator.New()}

	g.POST("", handler.handleCreateWorkItem)
	g.GET("", handler.handleQueryWorkItems)
	g.GET(":uid", handler.handleDetailWorkItem)
	g.DELETE(":uid", handler.handleArchiveWorkItem)

	g.PATCH(":uid/fields", handler.handleUpdateFields)
	g.PATCH(":uid/assignees", handler.handleUpdateAssignees)

	g.POST(":uid/transitions", handler.handleTransition)
	g.POST(":uid/tasks/:taskUid/complete", handler.handleCompleteTask)
	g.POST(":uid/tasks/:taskUid/skip", handler.handleSkipTask)
	g.POST(":uid/activities", handler.handleAddNote)

	r.GET("/v1/boards", append(middleWares, handler.handleBoard)...)
	r.GET("/v1/item-search", append(middleWares, handler.handleSearchItems)...)
}

type workItemsHandler struct {
	validator *validator.Validate
}

func (h *workItemsHandler) handleCreateWorkItem(c *gin.Context) {
	creation := work.WorkItemCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	item, err := work.CreateWorkItemFunc(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *workItemsHandler) handleQueryWorkItems(c *gin.Context) {
	query := work.WorkItemQuery{}
	if err := c.MustBindWith(&query, binding.Query); err != nil {
		return
	}

	items, total, err := work.QueryWorkItemsFunc(&query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, &misc.PagedBody{List: items, Total: total})
}

func (h *workItemsHandler) handleDetailWorkItem(c *gin.Context) {
	item, err := work.DetailWorkItemFunc(c.Param("uid"), session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *workItemsHandler) handleArchiveWorkItem(c *gin.Context) {
	err := work.ArchiveWorkItemFunc(c.Param("uid"), session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *workItemsHandler) handleUpdateFields(c *gin.Context) {
	updating := work.FieldValuesUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	item, err := work.UpdateWorkItemFieldsFunc(c.Param("uid"), &updating, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *workItemsHandler) handleUpdateAssignees(c *gin.Context) {
	updating := work.AssigneesUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	item, err := work.UpdateAssigneesFunc(c.Param("uid"), &updating, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *workItemsHandler) handleTransition(c *gin.Context) {
	transition := work.StageTransition{}
	if err := c.ShouldBindBodyWith(&transition, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	item, err := work.TransitionWorkItemFunc(c.Param("uid"), &transition, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *workItemsHandler) handleCompleteTask(c *gin.Context) {
	completion := work.TaskCompletion{}
	if err := c.ShouldBindBodyWith(&completion, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	item, err := work.CompleteTaskFunc(c.Param("uid"), c.Param("taskUid"), &completion, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *workItemsHandler) handleSkipTask(c *gin.Context) {
	completion := work.TaskCompletion{}
	if err := c.ShouldBindBodyWith(&completion, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	item, err := work.SkipTaskFunc(c.Param("uid"), c.Param("taskUid"), &completion, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *workItemsHandler) handleAddNote(c *gin.Context) {
	note := work.NoteCreation{}
	if err := c.ShouldBindBodyWith(&note, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	item, err := work.AddNoteFunc(c.Param("uid"), &note, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *workItemsHandler) handleBoard(c *gin.Context) {
	configUID := c.Query("config")
	if configUID == "" {
		c.JSON(http.StatusBadRequest, &common.ErrorBody{Code: "common.bad_param", Message: "config is required"})
		return
	}

	columns, err := work.BoardColumnsFunc(configUID, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, columns)
}

func (h *workItemsHandler) handleSearchItems(c *gin.Context) {
	query := work.WorkItemQuery{}
	if err := c.MustBindWith(&query, binding.Query); err != nil {
		return
	}

	items, err := search.SearchItemsFunc(query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, items)
}
