// Package web exposes the node's command surface over HTTP.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-conductor/debug"
	"go-conductor/node"
	"go-conductor/sequencer"
	"go-conductor/tap"
)

// Server routes HTTP requests to one node
type Server struct {
	node *node.Node
	seq  *sequencer.Sequencer
	tap  *tap.Estimator
}

func NewServer(n *node.Node, seq *sequencer.Sequencer, est *tap.Estimator) *Server {
	return &Server{node: n, seq: seq, tap: est}
}

// Router builds the gin engine
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	api := r.Group("/api")
	api.GET("/status", s.getStatus)
	api.GET("/history", s.getHistory)
	api.GET("/melodies", s.getMelodies)

	api.POST("/volume/up", s.result(s.node.IncreaseVolume))
	api.POST("/volume/down", s.result(s.node.DecreaseVolume))
	api.POST("/mute", s.result(s.node.ToggleMute))
	api.POST("/play", s.result(s.node.Play))
	api.POST("/stop", s.result(s.node.Stop))
	api.POST("/tempo", s.setTempo)
	api.POST("/key", s.setKey)
	api.POST("/role", s.setRole)
	api.POST("/melody", s.selectMelody)

	api.POST("/digits", s.enterDigits)
	api.DELETE("/digits", s.clearDigits)
	api.POST("/commit/tempo", s.result(s.node.CommitTempo))
	api.POST("/commit/key", s.result(s.node.CommitKey))

	api.POST("/tap/press", s.tapPress)
	api.POST("/tap/release", s.tapRelease)

	return r
}

// Run serves on addr until ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	debug.Log("web", "listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// result adapts a node command that takes no arguments
func (s *Server) result(cmd func() node.Result) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, cmd())
	}
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.node.Status())
}

func (s *Server) getHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"lines": s.node.History()})
}

func (s *Server) getMelodies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"melodies": s.seq.Melodies(),
		"current":  s.seq.Snapshot().Melody,
	})
}

func (s *Server) setTempo(c *gin.Context) {
	var request struct {
		BPM *int `json:"bpm"`
	}
	if err := c.ShouldBindJSON(&request); err != nil || request.BPM == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bpm is required"})
		return
	}
	c.JSON(http.StatusOK, s.node.SetTempo(*request.BPM))
}

func (s *Server) setKey(c *gin.Context) {
	var request struct {
		Key *int `json:"key"`
	}
	if err := c.ShouldBindJSON(&request); err != nil || request.Key == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	c.JSON(http.StatusOK, s.node.SetKey(*request.Key))
}

func (s *Server) setRole(c *gin.Context) {
	var request struct {
		Role string `json:"role"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role is required"})
		return
	}
	role, err := node.ParseRole(request.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.node.SetRole(role))
}

func (s *Server) selectMelody(c *gin.Context) {
	var request struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&request); err != nil || request.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	c.JSON(http.StatusOK, s.node.SelectMelody(request.Name))
}

// enterDigits types each character of input, stopping at the first refusal
func (s *Server) enterDigits(c *gin.Context) {
	var request struct {
		Input string `json:"input"`
	}
	if err := c.ShouldBindJSON(&request); err != nil || request.Input == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "input is required"})
		return
	}
	var res node.Result
	for _, r := range request.Input {
		if res = s.node.EnterDigit(r); !res.OK {
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "digits": s.node.Status().Digits})
}

func (s *Server) clearDigits(c *gin.Context) {
	s.node.ClearDigits()
	c.Status(http.StatusNoContent)
}

func (s *Server) tapPress(c *gin.Context) {
	out := s.tap.Press()
	c.JSON(http.StatusOK, gin.H{"outcome": out.String(), "state": s.tap.Snapshot().State.String()})
}

func (s *Server) tapRelease(c *gin.Context) {
	out := s.tap.Release()
	c.JSON(http.StatusOK, gin.H{"outcome": out.String(), "state": s.tap.Snapshot().State.String()})
}
