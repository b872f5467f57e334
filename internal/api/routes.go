// Package api wires the chi router and WebSocket hub over a
// *workspace.Workspace, using the same Server-struct-with-
// setupMiddleware/setupRoutes shape this codebase's routes.go
// originally used for its Redis-queue surface, re-themed onto this
// domain's REST/WS contract.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskflow-dev/taskflow/internal/api/handlers"
	apimiddleware "github.com/taskflow-dev/taskflow/internal/api/middleware"
	"github.com/taskflow-dev/taskflow/internal/api/websocket"
	"github.com/taskflow-dev/taskflow/internal/auth"
	"github.com/taskflow-dev/taskflow/internal/config"
	"github.com/taskflow-dev/taskflow/internal/workspace"
)

// Server is the HTTP/WS surface, composed over one Workspace.
type Server struct {
	router *chi.Mux
	cfg    *config.OpsConfig

	authMgr      *auth.Manager
	authHandlers *auth.Handlers
	queueHandler *handlers.QueueHandler
	taskHandler  *handlers.TaskHandler
	adminHandler *handlers.AdminHandler

	statusHub *websocket.StatusHub
	wsHandler *websocket.Handler
}

// NewServer builds a Server over ws. mainLogPath is the server
// process's own log file, wired into GET /api/main-log.
func NewServer(cfg *config.OpsConfig, ws *workspace.Workspace, authMgr *auth.Manager, mainLogPath string) *Server {
	statusHub := websocket.NewStatusHub(ws, time.Second)

	s := &Server{
		router:       chi.NewRouter(),
		cfg:          cfg,
		authMgr:      authMgr,
		authHandlers: auth.NewHandlers(authMgr),
		queueHandler: handlers.NewQueueHandler(ws),
		taskHandler:  handlers.NewTaskHandler(ws),
		adminHandler: handlers.NewAdminHandler(ws, mainLogPath),
		statusHub:    statusHub,
		wsHandler:    websocket.NewHandler(ws, statusHub, cfg.LogTail.PollInterval, cfg.LogTail.AppearGrace),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apimiddleware.RequestLogger())
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Heartbeat("/health"))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		if s.cfg.Server.RateLimitRPS > 0 {
			r.Use(apimiddleware.ClientRateLimit(s.cfg.Server.RateLimitRPS))
		}

		// Auth routes are unprotected — they are how a session is obtained.
		r.Route("/auth", func(r chi.Router) {
			r.Get("/status", s.authHandlers.Status)
			r.Post("/login", s.authHandlers.Login)
			r.Post("/logout", s.authHandlers.Logout)
			r.Post("/setup", s.authHandlers.Setup)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireSession(s.authMgr))

			r.Get("/queues", s.queueHandler.List)
			r.Post("/queues", s.queueHandler.Create)
			r.Delete("/queues/{qid}", s.queueHandler.Delete)
			r.Get("/queues/{qid}/tasks", s.queueHandler.Tasks)
			r.Get("/queues/{qid}/history", s.queueHandler.History)

			r.Post("/tasks/{tid}/run", s.taskHandler.Run)
			r.Post("/tasks/{tid}/stop", s.taskHandler.Stop)
			r.Post("/tasks/{tid}/retry", s.taskHandler.Retry)
			r.Get("/logs/{tid}", s.taskHandler.Logs)

			r.Post("/stop-all", s.adminHandler.StopAll)
			r.Post("/start-queue", s.queueHandler.StartQueue)
			r.Post("/stop-queue", s.queueHandler.StopQueue)
			r.Get("/queue-status", s.adminHandler.QueueStatus)
			r.Get("/main-log", s.adminHandler.MainLog)
			r.Post("/reload", s.adminHandler.Reload)
			r.Get("/check-yaml", s.queueHandler.CheckYAML)
			r.Post("/load-new-tasks", s.queueHandler.LoadNewTasks)
			r.Post("/load-selected-tasks", s.queueHandler.LoadSelectedTasks)
		})
	})

	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(s.authMgr))
		r.Get("/ws/status", s.wsHandler.ServeStatusWS)
		r.Get("/ws/logs/{tid}", s.wsHandler.ServeLogsWS)
	})

	if s.cfg.Metrics.Enabled {
		s.router.Handle(s.cfg.Metrics.Path, promhttp.Handler())
	}
}

// Start launches the status hub's poll-and-broadcast loop.
func (s *Server) Start() {
	go s.statusHub.Run()
}

// Stop stops the status hub and closes its client connections.
func (s *Server) Stop() {
	s.statusHub.Stop()
}

// Router returns the chi router.
func (s *Server) Router() *chi.Mux { return s.router }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
