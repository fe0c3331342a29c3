package main

import (
	"net/http"

	"foodsafe/bizerror"
	"foodsafe/client/es"
	"foodsafe/domain"
	"foodsafe/event"
	"foodsafe/indices"
	"foodsafe/infra/tracing"
	"foodsafe/misc"
	"foodsafe/persistence"
	"foodsafe/servehttp"
	"foodsafe/session"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.Infoln("service start")

	tracingCloser, err := tracing.InitTracerFromEnv(misc.GetServiceName())
	if err != nil {
		logrus.Fatalf("tracer init failed %v\n", err)
	}
	defer tracingCloser.Close()

	dbConfig, err := persistence.ParseDatabaseConfigFromEnv()
	if err != nil {
		logrus.Fatalf("parse database config failed %v\n", err)
	}

	// create database (no conflict)
	if dbConfig.DriverType == "mysql" {
		if err := persistence.PrepareMysqlDatabase(dbConfig.DriverArgs); err != nil {
			logrus.Fatalf("failed to prepare database %v\n", err)
		}
	}

	// connect database
	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		logrus.Fatalf("database connection failed %v\n", err)
	}
	defer ds.Stop()
	persistence.ActiveDataSourceManager = ds

	// database migration (race condition)
	err = ds.GormDB(nil).AutoMigrate(&domain.Capa{}, &domain.WorkflowStep{}, &event.EventRecord{}).Error
	if err != nil {
		logrus.Fatalf("database migration failed %v\n", err)
	}

	es.CreateClientFromEnv()
	event.EventHandlers = append(event.EventHandlers, indices.CapaIndexEventHandle)

	engine := gin.Default()
	engine.Use(tracing.TracingIngress(), bizerror.ErrorHandling())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, misc.GetServiceName())
	})

	servehttp.RegisterCapasHandler(engine, session.SimpleAuthFilter())
	servehttp.RegisterCapaWorkflowHandler(engine, session.SimpleAuthFilter())
	indices.RegisterIndicesRestAPI(engine, session.SimpleAuthFilter())

	servehttp.StartHTTPServer(engine, ":80")
}
