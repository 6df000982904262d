// Package server exposes the floor plan pipeline as an HTTP project
// service. Uploaded plans are stored as projects and processed in the
// background; clients poll a project until it leaves the processing
// state and then download its model and feature record. Project routes
// need a bearer token from /api/auth/login and only ever see the
// caller's own projects.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/chazu/floorplan3d/pkg/pipeline"
	"github.com/chazu/floorplan3d/pkg/store"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
)

// ============================================================
// Server
// ============================================================

type Server struct {
	app      *fiber.App
	pipe     *pipeline.Pipeline
	store    *store.Store
	sessions *Sessions
	dataDir  string

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex // guards closing and jobs.Add
	closing bool
	jobs    sync.WaitGroup
}

// Options configures a Server.
type Options struct {
	DataDir      string
	BodyLimit    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Quiet disables request logging.
	Quiet bool
}

// New builds the fiber app and registers every route. Uploads and
// generated models live under opts.DataDir.
func New(pipe *pipeline.Pipeline, st *store.Store, opts Options) *Server {
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = 32 << 20
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		pipe:     pipe,
		store:    st,
		sessions: NewSessions(),
		dataDir:  opts.DataDir,
		ctx:      ctx,
		cancel:   cancel,
	}

	s.app = fiber.New(fiber.Config{
		AppName:      "Floor Plan Service",
		BodyLimit:    opts.BodyLimit,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})

	// ============================================================
	// Global Middleware
	// ============================================================

	s.app.Use(recover.New())
	if !opts.Quiet {
		s.app.Use(requestLogger())
	}

	// ============================================================
	// Health Check Routes
	// ============================================================

	s.app.Get("/health/live", s.live)
	s.app.Get("/health/ready", s.ready)

	// ============================================================
	// Auth Routes
	// ============================================================

	api := s.app.Group("/api")
	api.Post("/auth/login", s.login)
	api.Post("/auth/logout", s.logout)
	api.Get("/users/profile", s.protect, s.profile)

	// ============================================================
	// Project Routes
	// ============================================================

	projects := api.Group("/projects", s.protect)
	projects.Post("", s.createProject)
	projects.Get("", s.listProjects)
	projects.Get("/:id", s.getProject)
	projects.Delete("/:id", s.deleteProject)
	projects.Get("/:id/model", s.getModel)
	projects.Get("/:id/features", s.getFeatures)

	api.Post("/photogrammetry", s.photogrammetry)

	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until the app is shut down.
func (s *Server) Listen(addr string) error {
	log.Printf("[server] listening on %s (kernel: %s)", addr, s.pipe.Kernel())
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops admitting jobs and accepting requests, cancels running
// jobs and waits for them to record their outcome.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopJobs()
	err := s.app.ShutdownWithContext(ctx)
	s.Wait()
	return err
}

// stopJobs refuses new jobs and cancels the running ones.
func (s *Server) stopJobs() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.cancel()
}

// admit registers a background job unless shutdown has begun. Every
// admitted job must call s.jobs.Done.
func (s *Server) admit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.jobs.Add(1)
	return true
}

// Wait blocks until every background job has finished.
func (s *Server) Wait() {
	s.jobs.Wait()
}

func (s *Server) uploadDir() string { return filepath.Join(s.dataDir, "uploads") }

func (s *Server) modelDir(id string) string { return filepath.Join(s.dataDir, "models", id) }

// ============================================================
// Health Check Handlers
// ============================================================

func (s *Server) live(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "alive"})
}

// ready reports the boolean kernel. The service stays ready without
// one; models are then produced without openings cut.
func (s *Server) ready(c fiber.Ctx) error {
	resp := fiber.Map{
		"status":          "ready",
		"kernel":          s.pipe.Kernel(),
		"kernelAvailable": true,
	}
	if err := s.pipe.KernelAvailable(); err != nil {
		resp["kernelAvailable"] = false
		resp["kernelError"] = err.Error()
	}
	return c.JSON(resp)
}

// ============================================================
// Project Handlers
// ============================================================

func (s *Server) createProject(c fiber.Ctx) error {
	file, err := c.FormFile("image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No image uploaded"})
	}
	name := strings.TrimSpace(c.FormValue("name"))
	if utf8.RuneCountInString(name) > store.MaxNameLength {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": store.ErrNameTooLong.Error()})
	}
	if !s.admit() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "server is shutting down"})
	}
	started := false
	defer func() {
		if !started {
			s.jobs.Done()
		}
	}()

	if err := os.MkdirAll(s.uploadDir(), 0o755); err != nil {
		return err
	}
	imagePath := filepath.Join(s.uploadDir(), uploadName(file.Filename))
	if err := c.SaveFile(file, imagePath); err != nil {
		log.Printf("[server] save upload: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save upload"})
	}

	p, err := s.store.Create(c.Context(), currentUser(c), name, imagePath)
	if err != nil {
		os.Remove(imagePath)
		return err
	}
	log.Printf("[server] project %s: %s (%d bytes)", p.ID, file.Filename, file.Size)

	started = true
	go s.process(p.ID, imagePath)

	return c.Status(fiber.StatusCreated).JSON(p)
}

// process runs the pipeline for one project and records the outcome.
func (s *Server) process(id, imagePath string) {
	defer s.jobs.Done()

	st := s.pipe.Process(s.ctx, imagePath, s.modelDir(id))
	out := store.Outcome{
		Status:       store.StatusCompleted,
		ModelPath:    st.ModelPath,
		FeaturesPath: st.FeaturesPath,
		Degraded:     st.Degraded,
		Message:      st.Message,
	}
	if !st.Success {
		out.Status = store.StatusFailed
	}
	// The request context is gone; the job's own may be cancelled by
	// Shutdown, and the outcome must still be written.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.UpdateStatus(ctx, id, out); err != nil {
		log.Printf("[server] project %s: record outcome: %v", id, err)
		return
	}
	log.Printf("[server] project %s: %s", id, out.Status)
}

func (s *Server) listProjects(c fiber.Ctx) error {
	projects, err := s.store.List(c.Context(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(projects)
}

func (s *Server) getProject(c fiber.Ctx) error {
	p, err := s.store.Get(c.Context(), currentUser(c), c.Params("id"))
	if err != nil {
		return notFound(c, err)
	}
	return c.JSON(p)
}

func (s *Server) deleteProject(c fiber.Ctx) error {
	id, owner := c.Params("id"), currentUser(c)
	p, err := s.store.Get(c.Context(), owner, id)
	if err != nil {
		return notFound(c, err)
	}
	if err := s.store.Delete(c.Context(), owner, id); err != nil {
		return notFound(c, err)
	}
	if err := os.Remove(p.ImagePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[server] project %s: remove upload: %v", id, err)
	}
	if err := os.RemoveAll(s.modelDir(id)); err != nil {
		log.Printf("[server] project %s: remove models: %v", id, err)
	}
	return c.JSON(fiber.Map{"message": "Project removed"})
}

func (s *Server) getModel(c fiber.Ctx) error {
	return s.sendArtifact(c, func(p *store.Project) string { return p.ModelPath })
}

func (s *Server) getFeatures(c fiber.Ctx) error {
	return s.sendArtifact(c, func(p *store.Project) string { return p.FeaturesPath })
}

func (s *Server) sendArtifact(c fiber.Ctx, pick func(*store.Project) string) error {
	p, err := s.store.Get(c.Context(), currentUser(c), c.Params("id"))
	if err != nil {
		return notFound(c, err)
	}
	path := pick(p)
	if p.Status != store.StatusCompleted || path == "" {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":  "project has no output",
			"status": p.Status,
		})
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[server] project %s: read %s: %v", p.ID, path, err)
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "output missing"})
	}
	c.Set(fiber.HeaderContentType, contentType(path))
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(path)))
	return c.Send(data)
}

func notFound(c fiber.Ctx, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Project not found"})
	}
	return err
}

// uploadName gives every upload a unique name that keeps the
// extension the image loader dispatches on.
func uploadName(filename string) string {
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) {
		base = "upload"
	}
	return uuid.NewString() + "_" + base
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".stl":
		return "model/stl"
	case ".gltf":
		return "model/gltf+json"
	case ".glb":
		return "model/gltf-binary"
	case ".json":
		return fiber.MIMEApplicationJSON
	case ".yaml", ".yml":
		return "application/yaml"
	}
	return fiber.MIMEOctetStream
}

func requestLogger() fiber.Handler {
	return logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	})
}
