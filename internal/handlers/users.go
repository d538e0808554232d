package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"medexam-assistant-server/internal/middleware"
	"medexam-assistant-server/internal/models"
	"medexam-assistant-server/internal/utils"
)

// UserHandler handles doctor account administration.
type UserHandler struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(db *gorm.DB, logger *zap.Logger) *UserHandler {
	return &UserHandler{DB: db, Logger: logger}
}

// GetUsers lists every account, optionally filtered by ?role=.
func (h *UserHandler) GetUsers(c *gin.Context) {
	query := h.DB.Order("created_at ASC")
	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch users", err)
		return
	}

	sanitized := make([]models.UserSanitized, len(users))
	for i, u := range users {
		sanitized[i] = u.Sanitize()
	}
	utils.Success(c, "Users fetched successfully", sanitized)
}

// GetDoctors lists accounts with the doctor role.
func (h *UserHandler) GetDoctors(c *gin.Context) {
	var doctors []models.User
	if err := h.DB.Where("role = ?", models.RoleDoctor).Order("full_name ASC").Find(&doctors).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch doctors", err)
		return
	}

	sanitized := make([]models.UserSanitized, len(doctors))
	for i, d := range doctors {
		sanitized[i] = d.Sanitize()
	}
	utils.Success(c, "Doctors fetched successfully", sanitized)
}

// GetUserByID returns a single account.
func (h *UserHandler) GetUserByID(c *gin.Context) {
	user, ok := h.loadUser(c, c.Param("id"))
	if !ok {
		return
	}
	utils.Success(c, "User fetched successfully", user.Sanitize())
}

// UpdateUserRequest represents the request body for updating an account.
type UpdateUserRequest struct {
	FullName      string  `json:"fullName"`
	Email         string  `json:"email" binding:"omitempty,email"`
	Role          string  `json:"role" binding:"omitempty,oneof=doctor admin"`
	Department    *string `json:"department"`
	LicenseNumber *string `json:"licenseNumber"`
}

// UpdateUser updates an account by id.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req UpdateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	user, ok := h.loadUser(c, c.Param("id"))
	if !ok {
		return
	}

	if req.FullName != "" {
		user.FullName = req.FullName
	}
	if req.Email != "" && req.Email != user.Email {
		var existing models.User
		err := h.DB.Where("email = ? AND id != ?", req.Email, user.ID).First(&existing).Error
		if err == nil {
			utils.Conflict(c, "New email is already in use")
			return
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			utils.InternalServerError(c, "Database error checking email", err)
			return
		}
		user.Email = req.Email
	}
	if req.Role != "" {
		user.Role = models.Role(req.Role)
	}
	if req.Department != nil {
		user.Department = nonEmpty(*req.Department)
	}
	if req.LicenseNumber != nil {
		user.LicenseNumber = nonEmpty(*req.LicenseNumber)
	}

	if err := h.DB.Save(user).Error; err != nil {
		utils.InternalServerError(c, "Failed to update user", err)
		return
	}

	utils.Success(c, "User updated successfully", user.Sanitize())
}

// DeleteUser removes an account and revokes its refresh tokens. Admins cannot
// delete themselves.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	userID := c.Param("id")
	if current, ok := middleware.GetUserIDFromContext(c); ok && current == userID {
		utils.Conflict(c, "You cannot delete your own account")
		return
	}

	if _, ok := h.loadUser(c, userID); !ok {
		return
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.RefreshToken{}).Where("user_id = ?", userID).Update("is_revoked", true).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", userID).Error
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to delete user", err)
		return
	}

	h.Logger.Info("User deleted", zap.String("user_id", userID))
	utils.Success(c, "User deleted successfully", nil)
}

func (h *UserHandler) loadUser(c *gin.Context, id string) (*models.User, bool) {
	var user models.User
	if err := h.DB.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User not found", "No user with id "+id)
		} else {
			utils.InternalServerError(c, "Database error", err)
		}
		return nil, false
	}
	return &user, true
}
