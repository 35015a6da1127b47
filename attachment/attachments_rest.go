package attachment

import (
	"io"
	"net/http"

	"leadflow/session"

	"github.com/gin-gonic/gin"
)

var (
	PathItemAttachments = "/v1/work-items/:uid/attachments"
	PathAttachments     = "/v1/attachments"
)

func RegisterAttachmentsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	itemScoped := r.Group(PathItemAttachments, middleWares...)
	itemScoped.POST("", handleCreateAttachment)
	itemScoped.GET("", handleListAttachments)

	g := r.Group(PathAttachments, middleWares...)
	g.GET(":key", handleDetailAttachment)
}

func handleCreateAttachment(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		panic(err)
	}
	src, err := file.Open()
	if err != nil {
		panic(err)
	}
	defer src.Close()

	record, err := CreateAttachmentFunc(c.Param("uid"), file.Filename, file.Header.Get("Content-Type"), src,
		session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, record)
}

func handleListAttachments(c *gin.Context) {
	records, err := ListAttachmentsFunc(c.Param("uid"), session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, records)
}

func handleDetailAttachment(c *gin.Context) {
	record, r, err := DetailAttachmentFunc(c.Param("key"), session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	defer r.Close()

	contentType := record.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", `attachment; filename="`+record.FileName+`"`)
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	io.Copy(c.Writer, r)
}
