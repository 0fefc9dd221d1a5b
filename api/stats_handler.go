package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rahulsharmaah/content-scrapper/job"
	"github.com/rahulsharmaah/content-scrapper/queue"
)

// StatsResponse is returned by GET /v1/stats.
type StatsResponse struct {
	Jobs          map[job.State]int64 `json:"jobs"`
	QueueDepth    *int64              `json:"queue_depth,omitempty"`
	ActiveWorkers int                 `json:"active_workers"`
	Strategies    []string            `json:"strategies"`
}

func (a *API) stats(c *gin.Context) {
	ctx := c.Request.Context()

	counts, err := a.eng.Stats(ctx)
	if err != nil {
		a.fail(c, err)
		return
	}

	resp := StatsResponse{
		Jobs:          counts,
		ActiveWorkers: a.eng.Pool().Active(),
		Strategies:    a.eng.Strategies().Names(),
	}
	if l, ok := a.eng.Broker().(queue.Lengther); ok {
		depth, err := l.Len(ctx)
		if err != nil {
			a.fail(c, err)
			return
		}
		resp.QueueDepth = &depth
	}
	c.JSON(http.StatusOK, resp)
}
