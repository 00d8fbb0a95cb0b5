package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/market-research/internal/common"
	"github.com/suPer8Hu/market-research/internal/export"
	"github.com/suPer8Hu/market-research/internal/httpapi/middleware"
	"github.com/suPer8Hu/market-research/internal/jobs"
)

type createJobReq struct {
	Target      string `json:"target"`
	Mode        string `json:"mode"`
	Credentials string `json:"credentials"`
	// older clients send the key as api_key
	APIKey string `json:"api_key"`
}

type createJobResp struct {
	JobID  string      `json:"job_id"`
	Status jobs.Status `json:"status"`
}

func (h *Handler) CreateJob(c *gin.Context) {
	var req createJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	creds := req.Credentials
	if creds == "" {
		creds = req.APIKey
	}

	job, err := h.Runner.Submit(c.Request.Context(), jobs.SubmitRequest{
		Target:      req.Target,
		Mode:        req.Mode,
		Credentials: creds,
	})
	if err != nil {
		var ve *jobs.ValidationError
		switch {
		case errors.As(err, &ve):
			common.Fail(c, http.StatusBadRequest, 10002, ve.Error())
		case errors.Is(err, jobs.ErrDispatch):
			h.Log.Error("submit failed", "request_id", middleware.RequestIDFrom(c), "err", err)
			common.Fail(c, http.StatusServiceUnavailable, 50301, "job could not be scheduled")
		default:
			h.Log.Error("submit failed", "request_id", middleware.RequestIDFrom(c), "err", err)
			common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		}
		return
	}

	c.Header("Location", "/jobs/"+job.ID)
	common.Created(c, createJobResp{JobID: job.ID, Status: job.Status})
}

func (h *Handler) ListJobs(c *gin.Context) {
	list, err := h.Jobs.List(c.Request.Context())
	if err != nil {
		h.Log.Error("list jobs", "request_id", middleware.RequestIDFrom(c), "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	total := len(list)
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 && limit < total {
		list = list[:limit]
	}
	common.OK(c, gin.H{"jobs": list, "total": total})
}

func (h *Handler) GetJob(c *gin.Context) {
	view, err := h.Jobs.Query(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.jobError(c, err)
		return
	}
	common.OK(c, view)
}

func (h *Handler) ExportJob(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, err.Error())
		return
	}
	art, err := h.Export.Export(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		h.jobError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Filename))
	c.Data(http.StatusOK, art.ContentType, art.Body)
}

func (h *Handler) DeleteJob(c *gin.Context) {
	if err := h.Jobs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.jobError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) jobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "job not found")
	case errors.Is(err, jobs.ErrNotReady):
		common.Fail(c, http.StatusConflict, 40901, "job not completed yet")
	case errors.Is(err, export.ErrUnknownFormat):
		common.Fail(c, http.StatusBadRequest, 10003, err.Error())
	default:
		h.Log.Error("job request failed", "request_id", middleware.RequestIDFrom(c), "path", c.Request.URL.Path, "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
