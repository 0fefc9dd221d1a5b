package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rahulsharmaah/content-scrapper/engine"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/job"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ListJobsRequest holds the query parameters of GET /v1/jobs.
type ListJobsRequest struct {
	State    string `form:"state"`
	Strategy string `form:"strategy"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

// SubmitResponse is returned by POST /v1/jobs.
type SubmitResponse struct {
	ID           id.JobID `json:"id"`
	Deduplicated bool     `json:"deduplicated"`
	Job          *job.Job `json:"job,omitempty"`
}

func (a *API) submitJob(c *gin.Context) {
	var req engine.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "", fmt.Sprintf("invalid body: %v", err))
		return
	}

	sub, err := a.eng.SubmitJob(c.Request.Context(), req)
	if err != nil {
		a.fail(c, err)
		return
	}

	status := http.StatusAccepted
	if sub.Deduplicated {
		status = http.StatusOK
	}
	c.JSON(status, SubmitResponse{ID: sub.ID, Deduplicated: sub.Deduplicated, Job: sub.Job})
}

func (a *API) listJobs(c *gin.Context) {
	var req ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "", err.Error())
		return
	}
	state := job.State(req.State)
	if state != "" && !state.Valid() {
		badRequest(c, "state", fmt.Sprintf("unknown state %q", req.State))
		return
	}

	jobs, err := a.eng.List(c.Request.Context(), job.ListOpts{
		State:    state,
		Strategy: req.Strategy,
		Limit:    clampLimit(req.Limit),
		Offset:   max(req.Offset, 0),
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	c.JSON(http.StatusOK, jobs)
}

func (a *API) getJob(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}
	j, err := a.eng.Get(c.Request.Context(), jobID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (a *API) cancelJob(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}
	j, err := a.eng.Cancel(c.Request.Context(), jobID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (a *API) replayJob(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}
	sub, err := a.eng.Replay(c.Request.Context(), jobID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, SubmitResponse{ID: sub.ID, Deduplicated: sub.Deduplicated, Job: sub.Job})
}

func (a *API) jobCounts(c *gin.Context) {
	counts, err := a.eng.Stats(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

func jobIDParam(c *gin.Context) (id.JobID, bool) {
	jobID, err := id.ParseJobID(c.Param("jobId"))
	if err != nil {
		badRequest(c, "id", fmt.Sprintf("invalid job ID: %v", err))
		return id.Nil, false
	}
	return jobID, true
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}
