// Package control is the HTTP control plane (explicitly out-of-core):
// thin gin-gonic routing through which operators register accounts and
// schedule tasks. No business logic lives here beyond validating a
// payload and forwarding it into C5's authoritative table or C10's input
// queue.
package control

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/iamOgunyinka/binance-monitor/pkg/crypto"
	"github.com/iamOgunyinka/binance-monitor/pkg/db"
)

// TaskSink is the scheduler's queue, as seen from the control plane: the
// only thing a task-status change needs to do is get appended to it.
type TaskSink interface {
	Append(item any)
}

// Server wires the control-plane HTTP endpoints.
type Server struct {
	Router    *gin.Engine
	DB        *db.Database
	Keys      *crypto.KeyManager
	Tasks     TaskSink
	JWTSecret string
}

// NewServer builds the gin engine and registers every route.
func NewServer(database *db.Database, keys *crypto.KeyManager, tasks TaskSink, jwtSecret string) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{Router: r, DB: database, Keys: keys, Tasks: tasks, JWTSecret: jwtSecret}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)

	api := s.Router.Group("/")
	api.Use(AuthMiddleware(s.JWTSecret))
	{
		api.POST("/accounts", s.createAccount)
		api.DELETE("/accounts/:alias", s.deleteAccount)
		api.POST("/tasks", s.createTask)
		api.PUT("/tasks/:request_id", s.updateTask)
		api.GET("/tasks/:request_id/results", s.getTaskResults)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
