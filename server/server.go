package server

import (
	"fmt"

	"github.com/gin-gonic/gin"

	backuphandler "github.com/xxxsen/davbackup/server/handler/backup"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

type Server struct {
	c      *config
	bind   string
	engine *gin.Engine
}

func New(bind string, opts ...Option) (*Server, error) {
	c := applyOpts(opts...)
	if c.agent == nil {
		return nil, fmt.Errorf("no backup agent found")
	}
	svr := &Server{c: c, bind: bind}
	svr.engine = gin.New()
	svr.engine.Use(gin.Recovery())
	svr.initAPI(svr.engine)
	return svr, nil
}

func (s *Server) initAPI(engine *gin.Engine) {
	h := backuphandler.NewBackupHandler(s.c.agent)
	router := engine.Group("/backup")
	if len(s.c.userMap) > 0 {
		router.Use(gin.BasicAuth(gin.Accounts(s.c.userMap)))
	}
	{
		router.POST("/upload", h.Upload)
		router.GET("/list", h.List)
		router.GET("/meta/:id", h.GetMeta)
		router.GET("/download/:id", h.Download)
		router.POST("/purge", h.Purge)
	}
}

func (s *Server) Run() error {
	return s.engine.Run(s.bind)
}
