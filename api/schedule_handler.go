package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rahulsharmaah/content-scrapper/engine"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/schedule"
)

func (a *API) createSchedule(c *gin.Context) {
	var req engine.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "", fmt.Sprintf("invalid body: %v", err))
		return
	}
	entry, err := a.eng.CreateSchedule(c.Request.Context(), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (a *API) listSchedules(c *gin.Context) {
	entries, err := a.eng.ListSchedules(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	if entries == nil {
		entries = []*schedule.Entry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (a *API) getSchedule(c *gin.Context) {
	scheduleID, ok := scheduleIDParam(c)
	if !ok {
		return
	}
	entry, err := a.eng.GetSchedule(c.Request.Context(), scheduleID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (a *API) pauseSchedule(c *gin.Context) {
	scheduleID, ok := scheduleIDParam(c)
	if !ok {
		return
	}
	entry, err := a.eng.PauseSchedule(c.Request.Context(), scheduleID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (a *API) resumeSchedule(c *gin.Context) {
	scheduleID, ok := scheduleIDParam(c)
	if !ok {
		return
	}
	entry, err := a.eng.ResumeSchedule(c.Request.Context(), scheduleID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (a *API) deleteSchedule(c *gin.Context) {
	scheduleID, ok := scheduleIDParam(c)
	if !ok {
		return
	}
	if err := a.eng.DeleteSchedule(c.Request.Context(), scheduleID); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func scheduleIDParam(c *gin.Context) (id.ScheduleID, bool) {
	scheduleID, err := id.ParseScheduleID(c.Param("scheduleId"))
	if err != nil {
		badRequest(c, "id", fmt.Sprintf("invalid schedule ID: %v", err))
		return id.Nil, false
	}
	return scheduleID, true
}
