package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/crawlpost/internal/cookie"
	"github.com/loykin/crawlpost/internal/crawler"
)

const defaultLogLimit = 100

type startResp struct {
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	AcceptedAt  time.Time `json:"acceptedAt"`
	ClientJobID string    `json:"clientJobId,omitempty"`
	PID         int       `json:"pid"`
}

type okResp struct {
	Status string `json:"status"`
}

type logsResp struct {
	Logs []crawler.LogEntry `json:"logs"`
}

func (r *Router) handleCrawlerStart(c *gin.Context) {
	var req crawler.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	st, err := r.deps.Crawler.Start(c.Request.Context(), req)
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			r.deps.Logger.Error("crawler start failed", "error", err)
			writeError(c, code, "failed to start crawler: "+err.Error())
			return
		}
		writeError(c, code, err.Error())
		return
	}
	writeJSON(c, http.StatusAccepted, startResp{
		Status:      "accepted",
		Message:     "Crawler started successfully",
		AcceptedAt:  st.AcceptedAt,
		ClientJobID: st.ClientJobID,
		PID:         st.PID,
	})
}

func (r *Router) handleCrawlerStop(c *gin.Context) {
	if err := r.deps.Crawler.Stop(c.Request.Context()); err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			r.deps.Logger.Error("crawler stop failed", "error", err)
		}
		writeError(c, code, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, okResp{Status: "ok"})
}

func (r *Router) handleCrawlerStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.deps.Crawler.Status(c.Request.Context()))
}

func (r *Router) handleCrawlerLogs(c *gin.Context) {
	limit := defaultLogLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid limit: "+v)
			return
		}
		limit = n
	}
	logs := r.deps.Crawler.Logs(limit)
	if logs == nil {
		logs = []crawler.LogEntry{}
	}
	writeJSON(c, http.StatusOK, logsResp{Logs: logs})
}

var errUnknownCookiePlatform = errors.New("unsupported platform")

func (r *Router) handleLoginState(c *gin.Context) {
	p := strings.ToLower(c.Param("platform"))
	if !cookie.Supported(p) {
		writeError(c, http.StatusBadRequest, errUnknownCookiePlatform.Error()+": "+p)
		return
	}
	writeJSON(c, http.StatusOK, r.deps.Cookies.Check(c.Request.Context(), p))
}
