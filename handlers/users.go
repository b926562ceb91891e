package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"shareguard/models"
	"shareguard/system"
)

// GetUsers lists all accounts without password hashes.
func (h *Handler) GetUsers(c *fiber.Ctx) error {
	var users []models.User
	if err := h.DB.Find(&users).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load users"})
	}

	out := make([]fiber.Map, 0, len(users))
	for _, u := range users {
		out = append(out, fiber.Map{
			"id":         u.ID,
			"username":   u.Username,
			"is_admin":   u.IsAdmin,
			"created_at": u.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"users": out})
}

// CreateUser adds a new account (admin only).
func (h *Handler) CreateUser(c *fiber.Ctx) error {
	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
		IsAdmin  bool   `json:"is_admin"`
	}
	if err := c.BodyParser(&input); err != nil || input.Username == "" || input.Password == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Username and password are required"})
	}
	if len(input.Password) < 8 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Password must be at least 8 characters"})
	}

	var existing models.User
	if err := h.DB.Where("username = ?", input.Username).First(&existing).Error; err == nil {
		return c.Status(http.StatusConflict).JSON(fiber.Map{"error": "Username already exists"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to hash password"})
	}

	user := models.User{
		Username: input.Username,
		Password: string(hash),
		IsAdmin:  input.IsAdmin,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create user"})
	}

	system.Info("User created: %s (admin=%v)", user.Username, user.IsAdmin)
	return c.Status(http.StatusCreated).JSON(fiber.Map{"id": user.ID, "username": user.Username})
}

// DeleteUser removes an account. The last admin cannot be deleted.
func (h *Handler) DeleteUser(c *fiber.Ctx) error {
	id := c.Params("id")

	var user models.User
	if err := h.DB.First(&user, id).Error; err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}

	if user.IsAdmin {
		var adminCount int64
		h.DB.Model(&models.User{}).Where("is_admin = ?", true).Count(&adminCount)
		if adminCount <= 1 {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Cannot delete the last admin"})
		}
	}

	if err := h.DB.Delete(&user).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete user"})
	}

	system.Info("User deleted: %s", user.Username)
	return c.JSON(fiber.Map{"message": "User deleted"})
}
