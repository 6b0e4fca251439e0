// Package server exposes the quote flows over HTTP and pushes progress over
// WebSocket. HTTP is the source of truth; the socket is advisory.
package server

import (
	"context"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"quotepilot/internal/browser"
	"quotepilot/internal/carrier"
	"quotepilot/internal/config"
	"quotepilot/internal/recorder"
	"quotepilot/internal/schema"
	"quotepilot/internal/task"
)

// SessionSource hands out browser sessions keyed by task x carrier and tears
// them down again. *browser.Manager implements it; tests substitute fakes.
type SessionSource interface {
	Driver(ctx context.Context, key string) (browser.Driver, error)
	CloseSession(key string)
	CloseTask(taskID string)
}

var _ SessionSource = (*browser.Manager)(nil)

// Server wires the task registry, carrier agents and browser sessions behind
// the HTTP API.
type Server struct {
	cfg      config.ServerConfig
	tasks    *task.Registry
	agents   *carrier.Registry
	sessions SessionSource
	shots    *recorder.Recorder
	hub      *Hub

	engine *gin.Engine
	http   *http.Server
}

func New(cfg config.ServerConfig, tasks *task.Registry, agents *carrier.Registry, sessions SessionSource, shots *recorder.Recorder) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())

	s := &Server{
		cfg:      cfg,
		tasks:    tasks,
		agents:   agents,
		sessions: sessions,
		shots:    shots,
		hub:      NewHub(),
		engine:   engine,
	}
	s.routes()
	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // carrier steps drive a real browser
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Hub exposes the push hub so flow code outside request handlers can emit.
func (s *Server) Hub() *Hub { return s.hub }

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	log.Printf("%s %s listening on %s", s.cfg.Name, s.cfg.Version, s.cfg.ListenAddr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/ws", func(c *gin.Context) { s.hub.ServeWS(c.Writer, c.Request) })
	s.engine.GET("/schema/fields", s.handleSchema)

	q := s.engine.Group("/quotes")
	q.POST("/start", s.handleStart)
	q.POST("/:taskId/data", s.handleData)
	q.GET("/:taskId/status", s.handleTaskStatus)
	q.DELETE("/:taskId", s.handleDeleteTask)
	q.POST("/:taskId/carriers/:carrierId/start", s.handleCarrierStart)
	q.POST("/:taskId/carriers/:carrierId/step", s.handleCarrierStep)
	q.GET("/:taskId/carriers/:carrierId/status", s.handleCarrierStatus)
	q.DELETE("/:taskId/carriers/:carrierId", s.handleDeleteCarrier)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"name":     s.cfg.Name,
		"version":  s.cfg.Version,
		"tasks":    s.tasks.Count(),
		"carriers": s.agents.IDs(),
	})
}

func (s *Server) handleSchema(c *gin.Context) {
	categories := make([]gin.H, 0)
	for _, cat := range schema.Catalog() {
		categories = append(categories, gin.H{"name": cat.Name, "fields": cat.Fields})
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

type startRequest struct {
	Carriers []string `json:"carriers"`
}

func (s *Server) handleStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Carriers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "carriers is required"})
		return
	}
	for _, id := range req.Carriers {
		if _, err := s.agents.Get(id); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	t := s.tasks.Create(req.Carriers)
	s.hub.Broadcast(Event{Type: "task_created", TaskID: t.ID, Payload: gin.H{"carriers": t.Carriers}})
	c.JSON(http.StatusCreated, gin.H{
		"taskId":   t.ID,
		"status":   t.Status,
		"carriers": t.Carriers,
	})
}

func (s *Server) handleData(c *gin.Context) {
	taskID := c.Param("taskId")
	if _, err := s.tasks.Get(taskID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	var data map[string]any
	if err := c.ShouldBindJSON(&data); err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a non-empty field object"})
		return
	}

	if violations := schema.ValidateKnown(data); len(violations) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":            "validation failed",
			"validationErrors": violations,
		})
		return
	}

	t, err := s.tasks.UpdateUserData(taskID, data)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	missing := s.missingRequired(t)
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"taskId":        t.ID,
		"dataComplete":  len(missing) == 0,
		"missingFields": missing,
		"fieldCount":    len(t.UserData),
	})
}

// missingRequired computes which catalog-required fields the task's carriers
// can consume but the accumulated data still lacks.
func (s *Server) missingRequired(t *task.Task) []string {
	lists := make([][]schema.FieldDef, 0, len(t.Carriers))
	for _, id := range t.Carriers {
		agent, err := s.agents.Get(id)
		if err != nil {
			continue
		}
		lists = append(lists, schema.FieldsByID(agent.RequiredFields()))
	}

	missing := make([]string, 0)
	for _, fd := range schema.MergeCarrierFields(lists...) {
		if !fd.Required {
			continue
		}
		if v, ok := t.UserData[fd.ID]; !ok || v == nil || v == "" {
			missing = append(missing, fd.ID)
		}
	}
	sort.Strings(missing)
	return missing
}

func (s *Server) handleTaskStatus(c *gin.Context) {
	t, err := s.tasks.Get(c.Param("taskId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	carriers := gin.H{}
	for id, cs := range t.CarrierStatus {
		carriers[id] = gin.H{
			"status":           cs.Status,
			"currentStep":      cs.CurrentStep,
			"currentStepLabel": cs.CurrentStepLabel,
			"error":            cs.Error,
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"taskId":        t.ID,
		"status":        t.Status,
		"carriers":      carriers,
		"fieldCount":    len(t.UserData),
		"missingFields": s.missingRequired(t),
		"createdAt":     t.CreatedAt,
		"lastActive":    t.LastActive,
	})
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	taskID := c.Param("taskId")
	if _, err := s.tasks.Get(taskID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.tasks.Remove(taskID)
	s.hub.Broadcast(Event{Type: "task_deleted", TaskID: taskID})
	c.JSON(http.StatusOK, gin.H{"taskId": taskID, "status": "deleted"})
}

func (s *Server) handleCarrierStart(c *gin.Context) {
	taskID := c.Param("taskId")
	carrierID := c.Param("carrierId")

	t, agent, ok := s.taskAndAgent(c, taskID, carrierID)
	if !ok {
		return
	}

	driver, err := s.sessions.Driver(c.Request.Context(), browser.SessionKey(taskID, carrierID))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "browser session: " + err.Error()})
		return
	}

	s.hub.Broadcast(Event{Type: "carrier_started", TaskID: taskID, CarrierID: carrierID})
	_ = s.tasks.SetStatus(taskID, task.StatusProcessing, "")

	resp := agent.Start(c.Request.Context(), &carrier.Context{
		TaskID:    taskID,
		CarrierID: carrierID,
		Data:      t.UserData,
		Session:   driver,
		Shots:     s.shots,
	})
	s.finishCarrierOp(c, taskID, carrierID, resp)
}

func (s *Server) handleCarrierStep(c *gin.Context) {
	taskID := c.Param("taskId")
	carrierID := c.Param("carrierId")

	t, agent, ok := s.taskAndAgent(c, taskID, carrierID)
	if !ok {
		return
	}

	// An empty body means "resume with what you have".
	var data map[string]any
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&data); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a field object"})
			return
		}
	}
	if len(data) > 0 {
		if violations := schema.ValidateKnown(data); len(violations) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":            "validation failed",
				"validationErrors": violations,
			})
			return
		}
		var err error
		if t, err = s.tasks.UpdateUserData(taskID, data); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
	}

	driver, err := s.sessions.Driver(c.Request.Context(), browser.SessionKey(taskID, carrierID))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "browser session: " + err.Error()})
		return
	}

	resp := agent.Step(c.Request.Context(), &carrier.Context{
		TaskID:    taskID,
		CarrierID: carrierID,
		Data:      t.UserData,
		Session:   driver,
		Shots:     s.shots,
	}, data)
	s.finishCarrierOp(c, taskID, carrierID, resp)
}

// finishCarrierOp persists the agent's response into the task registry,
// broadcasts the matching event and writes the HTTP reply.
func (s *Server) finishCarrierOp(c *gin.Context, taskID, carrierID string, resp carrier.Response) {
	_ = s.tasks.SetCarrierState(taskID, carrierID, task.CarrierState{
		Status:           resp.Status,
		CurrentStep:      resp.CurrentStep,
		CurrentStepLabel: resp.CurrentStepLabel,
		Error:            resp.Error,
	})

	switch resp.Status {
	case task.StatusCompleted:
		s.hub.Broadcast(Event{Type: "quote_completed", TaskID: taskID, CarrierID: carrierID, Payload: resp.Quote})
	case task.StatusError:
		_ = s.tasks.SetStatus(taskID, task.StatusError, resp.Error)
		s.hub.Broadcast(Event{Type: "carrier_error", TaskID: taskID, CarrierID: carrierID, Payload: gin.H{"error": resp.Error}})
	default:
		s.hub.Broadcast(Event{Type: "carrier_step_completed", TaskID: taskID, CarrierID: carrierID, Payload: gin.H{
			"status":           resp.Status,
			"currentStepLabel": resp.CurrentStepLabel,
			"requiredFields":   resp.RequiredFields,
		}})
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCarrierStatus(c *gin.Context) {
	taskID := c.Param("taskId")
	carrierID := c.Param("carrierId")
	if _, _, ok := s.taskAndAgent(c, taskID, carrierID); !ok {
		return
	}
	agent, _ := s.agents.Get(carrierID)
	c.JSON(http.StatusOK, agent.Status(taskID))
}

func (s *Server) handleDeleteCarrier(c *gin.Context) {
	taskID := c.Param("taskId")
	carrierID := c.Param("carrierId")
	_, agent, ok := s.taskAndAgent(c, taskID, carrierID)
	if !ok {
		return
	}

	s.sessions.CloseSession(browser.SessionKey(taskID, carrierID))
	agent.Cleanup(taskID)
	_ = s.tasks.SetCarrierState(taskID, carrierID, task.CarrierState{Status: task.StatusInactive})
	c.JSON(http.StatusOK, gin.H{"taskId": taskID, "carrierId": carrierID, "status": "closed"})
}

// taskAndAgent resolves the path parameters, writing the error response
// itself when either is unknown or the carrier is not part of the task.
func (s *Server) taskAndAgent(c *gin.Context, taskID, carrierID string) (*task.Task, carrier.Agent, bool) {
	t, err := s.tasks.Get(taskID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	agent, err := s.agents.Get(carrierID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	for _, id := range t.Carriers {
		if id == carrierID {
			return t, agent, true
		}
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "carrier not part of task: " + carrierID})
	return nil, nil, false
}
