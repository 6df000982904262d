package server

import (
	"bytes"
	"errors"
	"log"
	"os"
	"path/filepath"

	"github.com/chazu/floorplan3d/pkg/photogrammetry"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// photogrammetry accepts a set of photos in the multipart field
// "images" and answers with the stub's synthetic record. It has its own
// contract and never creates a project.
func (s *Server) photogrammetry(c fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["images"]) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No images uploaded"})
	}

	dir := filepath.Join(s.uploadDir(), "photos", uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var paths []string
	for _, fh := range form.File["images"] {
		path := filepath.Join(dir, filepath.Base(fh.Filename))
		if err := c.SaveFile(fh, path); err != nil {
			return err
		}
		paths = append(paths, path)
	}

	var progress bytes.Buffer
	res, err := photogrammetry.Run(&progress, paths)
	if errors.Is(err, photogrammetry.ErrNoImages) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No images uploaded"})
	}
	if err != nil {
		return err
	}
	log.Printf("[photogrammetry] %d images -> %s", len(paths), res.ModelPath)
	return c.JSON(res)
}
