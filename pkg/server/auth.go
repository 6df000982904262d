package server

import (
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/chazu/floorplan3d/pkg/store"

	"github.com/gofiber/fiber/v3"
)

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
}

// userKey is the fiber local protect stores the caller's ID under.
const userKey = "userID"

// ============================================================
// Auth Handlers
// ============================================================

// login issues a bearer token for a login/password pair.
func (s *Server) login(c fiber.Ctx) error {
	if len(c.Body()) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "empty body"})
	}
	var req loginRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}
	if req.Login == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "login and password required"})
	}

	user, err := s.store.Authenticate(c.Context(), req.Login, req.Password)
	if errors.Is(err, store.ErrInvalidCredentials) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid credentials"})
	}
	if err != nil {
		return err
	}
	log.Printf("[server] user %s logged in", user.Login)
	return c.JSON(loginResponse{Token: s.sessions.Issue(user.ID), User: user})
}

func (s *Server) logout(c fiber.Ctx) error {
	if token, ok := bearer(c); ok {
		s.sessions.Revoke(token)
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

func (s *Server) profile(c fiber.Ctx) error {
	user, err := s.store.GetUser(c.Context(), currentUser(c))
	if errors.Is(err, store.ErrUserNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
	}
	if err != nil {
		return err
	}
	return c.JSON(user)
}

// ============================================================
// Middleware
// ============================================================

// protect rejects requests without a valid bearer token and records the
// caller for the handlers behind it.
func (s *Server) protect(c fiber.Ctx) error {
	token, ok := bearer(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Not authorized, no token"})
	}
	userID, ok := s.sessions.Resolve(token)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Not authorized, token failed"})
	}
	c.Locals(userKey, userID)
	return c.Next()
}

func bearer(c fiber.Ctx) (string, bool) {
	auth := c.Get(fiber.HeaderAuthorization)
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return token, token != ""
}

func currentUser(c fiber.Ctx) string {
	id, _ := c.Locals(userKey).(string)
	return id
}
