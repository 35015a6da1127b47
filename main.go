package main

import (
	"log"

	"leadflow/account"
	"leadflow/attachment"
	"leadflow/bizerror"
	"leadflow/client/es"
	"leadflow/client/s3"
	"leadflow/common"
	"leadflow/domain/flow"
	"leadflow/domain/work"
	"leadflow/event"
	"leadflow/indices"
	"leadflow/infra/tracing"
	"leadflow/persistence"
	"leadflow/servehttp"
	"leadflow/session"
	"leadflow/sessions"

	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("service start")

	tracerCloser, err := tracing.BootstrapTracer(common.GetServiceName())
	if err != nil {
		log.Fatalf("tracer bootstrap failed %v\n", err)
	}
	defer tracerCloser.Close()

	dbConfig, err := persistence.ParseDatabaseConfigFromEnv()
	if err != nil {
		log.Fatalf("parse database config failed %v\n", err)
	}

	// create database (no conflict)
	if dbConfig.DriverType == "mysql" {
		if err := persistence.PrepareMysqlDatabase(dbConfig.DriverArgs); err != nil {
			log.Fatalf("failed to prepare database %v\n", err)
		}
	}

	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		log.Fatalf("database connection failed %v\n", err)
	}
	defer ds.Stop()
	persistence.ActiveDataSourceManager = ds

	// database migration (race condition)
	err = ds.GormDB(nil).AutoMigrate(
		&flow.WorkflowConfig{}, &flow.Stage{},
		&work.WorkItem{}, &work.SequenceCounter{},
		&event.EventRecord{},
		&attachment.Attachment{},
		&account.User{},
	).Error
	if err != nil {
		log.Fatalf("database migration failed %v\n", err)
	}

	if err := account.Bootstrap(); err != nil {
		log.Fatalf("account bootstrap failed %v\n", err)
	}

	// flow must not import work, the reference check is handed over here
	flow.CheckFieldDefinitionReferencedFunc = work.IsFieldDefinitionReferenced

	es.CreateClientFromEnv()
	s3.Bootstrap()
	event.EventHandlers = append(event.EventHandlers, indices.IndexItemEventHandle)
	indices.StartCron()

	engine := gin.Default()
	engine.Use(tracing.TracingIngress(), bizerror.ErrorHandling())
	engine.GET("/", func(c *gin.Context) {
		c.String(200, "leadflow")
	})

	sessions.RegisterSessionsHandler(engine)
	sessions.RegisterSessionHandler(engine, session.SimpleAuthFilter())

	servehttp.RegisterConfigsRestAPI(engine, session.SimpleAuthFilter())
	servehttp.RegisterStagesRestAPI(engine, session.SimpleAuthFilter())
	servehttp.RegisterWorkItemsRestAPI(engine, session.SimpleAuthFilter())
	indices.RegisterIndicesRestAPI(engine, session.SimpleAuthFilter())
	attachment.RegisterAttachmentsRestAPI(engine, session.SimpleAuthFilter())

	servehttp.StartHTTPServer(engine)
}
