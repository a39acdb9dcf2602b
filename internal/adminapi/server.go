package adminapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/nyasuto/cmdlogbuf/internal/cmdlog"
)

// Server is a read-only-plus-trigger HTTP surface over a *cmdlog.CmdLog,
// adapted from the teacher's internal/api.Server (which is a caller of
// kvstore.KVStore the same way this is a caller of cmdlog.CmdLog — it
// implements none of the engine lifecycle, checkpointing, or codec
// itself, only invokes the already-specified public operations).
type Server struct {
	log     *cmdlog.CmdLog
	port    string
	router  *gin.Engine
	auth    *AuthManager
	sampler *cmdlog.StatsSampler
}

// NewServer wires the routes below over log, listening on port. sampler
// backs the /v1/stats route (s.getStats reads sampler.Latest() rather
// than calling log.Stats() directly, so that route never blocks on the
// subsystem's own locks); the caller owns its lifecycle (Start/Stop).
func NewServer(log *cmdlog.CmdLog, port string, auth *AuthManager, sampler *cmdlog.StatsSampler) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	s := &Server{
		log:     log,
		port:    port,
		router:  router,
		auth:    auth,
		sampler: sampler,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.Group("/v1")
	{
		v1.GET("/health", s.health)
		v1.POST("/login", s.login)

		protected := v1.Group("/")
		protected.Use(s.authMiddleware())
		{
			protected.GET("/lsn", s.getLSN)
			protected.GET("/filesize", s.getFileSize)
			protected.GET("/stats", s.getStats)
			protected.POST("/sync", s.postSync)
			protected.POST("/rotate", s.postRotate)
			protected.POST("/rotate/complete", s.postCompleteRotate)
		}
	}
}

// Start blocks serving on the configured port.
func (s *Server) Start() error {
	klog.Infof("cmdlogd: admin surface listening on :%s", s.port)
	return http.ListenAndServe(":"+s.port, s.router)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "cmdlogd"})
}

func (s *Server) getLSN(c *gin.Context) {
	s.successResponse(c, http.StatusOK, LSNResponse{
		WriteLSN: toLSNView(s.log.GetWriteLSN()),
		FlushLSN: toLSNView(s.log.GetFlushLSN()),
		FsyncLSN: toLSNView(s.log.GetFsyncLSN()),
	})
}

func (s *Server) getFileSize(c *gin.Context) {
	s.successResponse(c, http.StatusOK, FileSizeResponse{Bytes: s.log.FileGetSize()})
}

func (s *Server) getStats(c *gin.Context) {
	s.successResponse(c, http.StatusOK, s.sampler.Latest())
}

func (s *Server) postSync(c *gin.Context) {
	if err := s.log.FileSync(); err != nil {
		s.errorResponse(c, http.StatusInternalServerError, "SYNC_FAILED", err.Error())
		return
	}
	s.successResponse(c, http.StatusOK, LSNResponse{
		WriteLSN: toLSNView(s.log.GetWriteLSN()),
		FlushLSN: toLSNView(s.log.GetFlushLSN()),
		FsyncLSN: toLSNView(s.log.GetFsyncLSN()),
	})
}

// postRotate exposes only the rotation *trigger* (file_prepare). It does
// not implement the checkpoint subsystem that decides when a rotation
// should happen — that stays external, per spec.md's scope boundary.
func (s *Server) postRotate(c *gin.Context) {
	var req RotateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if err := s.log.FilePrepare(req.Path); err != nil {
		s.errorResponse(c, http.StatusConflict, "ROTATE_FAILED", err.Error())
		return
	}
	s.successResponse(c, http.StatusAccepted, gin.H{"path": req.Path})
}

func (s *Server) postCompleteRotate(c *gin.Context) {
	var req CompleteRotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if err := s.log.CompleteDualWrite(req.Success); err != nil {
		s.errorResponse(c, http.StatusConflict, "COMPLETE_ROTATE_FAILED", err.Error())
		return
	}
	s.successResponse(c, http.StatusOK, gin.H{"success": req.Success})
}

func (s *Server) successResponse(c *gin.Context, status int, data interface{}) {
	c.JSON(status, APIResponse{Status: "success", Data: data})
}

func (s *Server) errorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, APIResponse{Status: "error", Error: &APIError{Code: code, Message: message}})
}

func toLSNView(sn cmdlog.LogSN) LSNView {
	return LSNView{Filenum: sn.Filenum, Roffset: sn.Roffset}
}
