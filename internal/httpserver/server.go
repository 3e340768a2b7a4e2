// Package httpserver builds the gin router the notification API listens on:
// create/fetch notifications and a health probe.
package httpserver

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/cascadehub/notify/internal/database"
	"github.com/cascadehub/notify/internal/middleware"
	"github.com/cascadehub/notify/internal/notification"
)

// New builds the router. db is used only by the health handler; queue
// backs the debug stats route. All notification traffic goes through svc.
func New(svc *notification.Service, db *database.DB, queue notification.RetryQueue, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("notify-server"))
	router.Use(middleware.Correlation(logger))

	h := &handlers{svc: svc, db: db, queue: queue}

	router.GET("/health", h.health)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/notifications", h.createNotification)
		v1.GET("/notifications/:id", h.getNotification)
		v1.GET("/queue/stats", h.queueStats)
	}

	return router
}
