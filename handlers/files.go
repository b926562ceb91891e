package handlers

import (
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"shareguard/models"
	"shareguard/system"
)

// StorageDir is where uploaded file bytes land. Overridden at startup.
var StorageDir = "./storage"

// UploadFile stores an uploaded file on disk and records its metadata.
func (h *Handler) UploadFile(c *fiber.Ctx) error {
	userID := CurrentUserID(c)

	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Missing file"})
	}

	if err := os.MkdirAll(StorageDir, 0o750); err != nil {
		system.Error("Failed to create storage dir: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "Storage unavailable"})
	}

	storagePath := filepath.Join(StorageDir, uuid.NewString())
	if err := c.SaveFile(fh, storagePath); err != nil {
		system.Error("Failed to save upload: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "Failed to save file"})
	}

	file := models.StoredFile{
		OwnerID:     userID,
		Name:        filepath.Base(fh.Filename),
		StoragePath: storagePath,
		ContentType: fh.Header.Get("Content-Type"),
		SizeBytes:   fh.Size,
	}
	if err := h.DB.Create(&file).Error; err != nil {
		os.Remove(storagePath)
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	system.Info("File %d uploaded by user %d (%d bytes)", file.ID, userID, file.SizeBytes)
	return c.Status(201).JSON(file)
}

// ListFiles returns the caller's files.
func (h *Handler) ListFiles(c *fiber.Ctx) error {
	userID := CurrentUserID(c)

	var files []models.StoredFile
	if err := h.DB.Where("owner_id = ?", userID).Order("created_at desc").Find(&files).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(files)
}

// DeleteFile removes a file, its bytes, and any shares pointing at it.
func (h *Handler) DeleteFile(c *fiber.Ctx) error {
	userID := CurrentUserID(c)
	id := c.Params("id")

	var file models.StoredFile
	if err := h.DB.First(&file, id).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "File not found"})
	}
	if file.OwnerID != userID {
		return c.Status(403).JSON(fiber.Map{"error": "Not your file"})
	}

	h.DB.Where("file_id = ?", file.ID).Delete(&models.ShareToken{})
	if err := h.DB.Delete(&file).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if err := os.Remove(file.StoragePath); err != nil && !os.IsNotExist(err) {
		system.Warn("Failed to remove stored file %s: %v", file.StoragePath, err)
	}

	system.Info("File %d deleted by user %d", file.ID, userID)
	return c.JSON(fiber.Map{"message": "File deleted"})
}
