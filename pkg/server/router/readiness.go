package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	svcframework "github.com/openwalletlab/wallet-core/pkg/service/framework"
)

func Readiness(services []svcframework.Service) gin.HandlerFunc {
	return readiness{services: services}.ready
}

type readiness struct {
	services []svcframework.Service
}

type GetReadinessResponse struct {
	Status          svcframework.Status                       `json:"status"`
	ServiceStatuses map[svcframework.Type]svcframework.Status `json:"serviceStatuses"`
}

// ready checks whether every registered service reports itself healthy.
func (r readiness) ready(c *gin.Context) {
	numServices := len(r.services)
	readyServices := 0
	statuses := make(map[svcframework.Type]svcframework.Status)
	for _, s := range r.services {
		status := s.Status()
		statuses[s.Type()] = status
		if status.Status == svcframework.StatusReady {
			readyServices++
		}
	}

	var status svcframework.Status
	if readyServices < numServices {
		status = svcframework.Status{
			Status:  svcframework.StatusNotReady,
			Message: fmt.Sprintf("out of [%d] services, [%d] are ready", numServices, readyServices),
		}
	} else {
		status = svcframework.Status{
			Status:  svcframework.StatusReady,
			Message: "all services ready",
		}
	}
	c.IndentedJSON(http.StatusOK, GetReadinessResponse{
		Status:          status,
		ServiceStatuses: statuses,
	})
}
