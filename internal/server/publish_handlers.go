package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loykin/crawlpost/internal/publish"
	"github.com/loykin/crawlpost/internal/store"
)

type platformsResp struct {
	Platforms []publish.PlatformInfo `json:"platforms"`
}

type accountsResp struct {
	Accounts []store.Account `json:"accounts"`
}

type mediaResp struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

func (r *Router) handlePlatforms(c *gin.Context) {
	writeJSON(c, http.StatusOK, platformsResp{Platforms: r.deps.Publisher.Platforms()})
}

func (r *Router) handleAccounts(c *gin.Context) {
	accts, err := r.deps.Publisher.Accounts(c.Request.Context(), c.Query("platform"))
	if err != nil {
		writeError(c, statusFor(err), err.Error())
		return
	}
	if accts == nil {
		accts = []store.Account{}
	}
	writeJSON(c, http.StatusOK, accountsResp{Accounts: accts})
}

func (r *Router) handlePublishVideo(c *gin.Context) {
	var req publish.VideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	acc, err := r.deps.Publisher.PublishVideo(c.Request.Context(), c.Param("platform"), req)
	if err != nil {
		r.publishFailed(c, err)
		return
	}
	writeJSON(c, http.StatusOK, acc)
}

func (r *Router) handlePublishImages(c *gin.Context) {
	var req publish.ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	acc, err := r.deps.Publisher.PublishImages(c.Request.Context(), c.Param("platform"), req)
	if err != nil {
		r.publishFailed(c, err)
		return
	}
	writeJSON(c, http.StatusOK, acc)
}

func (r *Router) publishFailed(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		r.deps.Logger.Error("publish failed", "platform", c.Param("platform"), "error", err)
	}
	writeError(c, code, err.Error())
}

func (r *Router) handleMediaUpload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		writeError(c, http.StatusBadRequest, "missing file field")
		return
	}
	name, path, err := r.deps.Media.Save(fh)
	if err != nil {
		r.deps.Logger.Error("media upload failed", "error", err)
		writeError(c, http.StatusInternalServerError, "save failed: "+err.Error())
		return
	}
	writeJSON(c, http.StatusOK, mediaResp{Filename: name, Path: path})
}

func (r *Router) handleMediaGet(c *gin.Context) {
	name := c.Param("filename")
	if !isSafeName(name) {
		writeError(c, http.StatusBadRequest, "invalid filename")
		return
	}
	p, err := r.deps.Media.Path(name)
	if err != nil {
		writeError(c, http.StatusNotFound, "file not found")
		return
	}
	c.File(p)
}
