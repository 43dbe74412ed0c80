package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type loginInitReq struct {
	Platform    string `json:"platform"`
	AccountName string `json:"accountName"`
}

type loginInitResp struct {
	SessionID   string `json:"sessionId"`
	Platform    string `json:"platform"`
	AccountName string `json:"accountName"`
}

func (r *Router) handleLoginInit(c *gin.Context) {
	var req loginInitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	snap, err := r.deps.Logins.Create(req.Platform, req.AccountName)
	if err != nil {
		writeError(c, statusFor(err), err.Error())
		return
	}
	writeJSON(c, http.StatusOK, loginInitResp{SessionID: snap.SessionID, Platform: snap.Platform, AccountName: snap.AccountName})
}

func (r *Router) handleLoginStatus(c *gin.Context) {
	snap, err := r.deps.Logins.Poll(c.Param("id"))
	if err != nil {
		writeError(c, statusFor(err), err.Error())
		return
	}
	if snap.Messages == nil {
		snap.Messages = []string{}
	}
	writeJSON(c, http.StatusOK, snap)
}

func (r *Router) handleLoginCancel(c *gin.Context) {
	if err := r.deps.Logins.Cancel(c.Param("id")); err != nil {
		writeError(c, statusFor(err), err.Error())
		return
	}
	writeJSON(c, http.StatusOK, okResp{Status: "cancelled"})
}
