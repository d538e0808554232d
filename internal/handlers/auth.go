package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"medexam-assistant-server/internal/config"
	"medexam-assistant-server/internal/middleware"
	"medexam-assistant-server/internal/models"
	"medexam-assistant-server/internal/utils"
)

const refreshTokenCookie = "refresh_token"

// AuthHandler handles doctor account authentication.
type AuthHandler struct {
	DB     *gorm.DB
	Cfg    *config.Config
	Logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{DB: db, Cfg: cfg, Logger: logger}
}

// RegisterRequest represents the request body for doctor registration.
type RegisterRequest struct {
	FullName      string `json:"fullName" binding:"required"`
	Email         string `json:"email" binding:"required,email"`
	Password      string `json:"password" binding:"required,min=8"`
	Role          string `json:"role" binding:"omitempty,oneof=doctor admin"`
	Department    string `json:"department"`
	LicenseNumber string `json:"licenseNumber"`
}

// Register handles doctor registration.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var existingUser models.User
	if err := h.DB.Where("email = ?", req.Email).First(&existingUser).Error; err == nil {
		utils.Conflict(c, "User with this email already exists")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		utils.InternalServerError(c, "Database error", err)
		return
	}

	role := models.RoleDoctor
	if req.Role != "" {
		role = models.Role(req.Role)
	}
	user := models.User{
		FullName:      req.FullName,
		Email:         req.Email,
		Role:          role,
		Department:    nonEmpty(req.Department),
		LicenseNumber: nonEmpty(req.LicenseNumber),
	}

	if err := user.SetPassword(req.Password); err != nil {
		utils.InternalServerError(c, "Failed to hash password", err)
		return
	}

	if err := h.DB.Create(&user).Error; err != nil {
		h.Logger.Error("Error creating user", zap.Error(err))
		utils.InternalServerError(c, "Failed to create user", err)
		return
	}

	h.Logger.Info("User registered", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	utils.Created(c, "User registered successfully", user.Sanitize())
}

// LoginRequest represents the request body for doctor login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the response body for successful login.
type LoginResponse struct {
	AccessToken  string               `json:"accessToken"`
	RefreshToken string               `json:"refreshToken"`
	User         models.UserSanitized `json:"user"`
}

// Login handles doctor login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var user models.User
	if err := h.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Unauthorized(c, "Invalid email or password")
		} else {
			utils.InternalServerError(c, "Database error", err)
		}
		return
	}

	if !user.CheckPassword(req.Password) {
		h.Logger.Warn("Failed login attempt", zap.String("email", req.Email))
		utils.Unauthorized(c, "Invalid email or password")
		return
	}

	accessToken, refreshToken, err := h.issueTokens(&user)
	if err != nil {
		utils.InternalServerError(c, "Failed to issue tokens", err)
		return
	}
	h.setRefreshCookie(c, refreshToken)

	utils.Success(c, "Login successful", LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user.Sanitize(),
	})
}

// RefreshTokenRequest represents the request body for token refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshTokenResponse represents the response body for successful token refresh.
type RefreshTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken rotates a refresh token: the presented one is revoked and a
// new pair is issued.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	presented, err := c.Cookie(refreshTokenCookie)
	if err != nil || presented == "" {
		var req RefreshTokenRequest
		if !utils.BindAndValidate(c, &req) {
			return
		}
		presented = req.RefreshToken
	}

	claims, err := utils.ValidateToken(presented, h.Cfg.JWTRefreshSecret)
	if err != nil {
		utils.Unauthorized(c, "Invalid refresh token: "+err.Error())
		return
	}

	var storedToken models.RefreshToken
	if err := h.DB.Where("token = ? AND user_id = ?", presented, claims.UserID).First(&storedToken).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Unauthorized(c, "Refresh token not found, expired, or revoked")
		} else {
			utils.InternalServerError(c, "Database error checking refresh token", err)
		}
		return
	}
	if !storedToken.Usable(time.Now()) {
		utils.Unauthorized(c, "Refresh token not found, expired, or revoked")
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", claims.UserID).Error; err != nil {
		utils.Unauthorized(c, "User associated with token no longer exists")
		return
	}

	if err := h.DB.Model(&storedToken).Update("is_revoked", true).Error; err != nil {
		utils.InternalServerError(c, "Failed to revoke refresh token", err)
		return
	}

	accessToken, refreshToken, err := h.issueTokens(&user)
	if err != nil {
		utils.InternalServerError(c, "Failed to issue tokens", err)
		return
	}
	h.setRefreshCookie(c, refreshToken)

	utils.Success(c, "Access token refreshed successfully", RefreshTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

// LogoutRequest represents the request body for logout.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Logout revokes the presented refresh token. Unknown tokens are accepted.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	err := h.DB.Model(&models.RefreshToken{}).
		Where("token = ? AND is_revoked = ?", req.RefreshToken, false).
		Updates(map[string]any{"is_revoked": true, "expires_at": time.Now()}).Error
	if err != nil {
		utils.InternalServerError(c, "Failed to revoke refresh token", err)
		return
	}

	c.SetCookie(refreshTokenCookie, "", -1, "/", "", h.Cfg.Environment != "development", true)
	utils.Success(c, "Logout successful", nil)
}

// GetProfile returns the authenticated account.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	utils.Success(c, "Profile fetched successfully", user.Sanitize())
}

// UpdateProfileRequest represents the request body for updating the profile.
type UpdateProfileRequest struct {
	FullName      string  `json:"fullName"`
	Department    *string `json:"department"`
	LicenseNumber *string `json:"licenseNumber"`
}

// UpdateProfile updates the authenticated account.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	if req.FullName != "" {
		user.FullName = req.FullName
	}
	if req.Department != nil {
		user.Department = nonEmpty(*req.Department)
	}
	if req.LicenseNumber != nil {
		user.LicenseNumber = nonEmpty(*req.LicenseNumber)
	}

	if err := h.DB.Save(user).Error; err != nil {
		utils.InternalServerError(c, "Failed to update profile", err)
		return
	}

	utils.Success(c, "Profile updated successfully", user.Sanitize())
}

func (h *AuthHandler) currentUser(c *gin.Context) (*models.User, bool) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return nil, false
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User not found", "User profile not found")
		} else {
			utils.InternalServerError(c, "Database error", err)
		}
		return nil, false
	}
	return &user, true
}

// issueTokens signs a new token pair and stores the refresh token.
func (h *AuthHandler) issueTokens(user *models.User) (string, string, error) {
	accessToken, refreshToken, err := utils.GenerateTokens(user, h.Cfg)
	if err != nil {
		return "", "", err
	}

	stored := models.RefreshToken{
		UserID:    user.ID,
		Token:     refreshToken,
		ExpiresAt: time.Now().Add(time.Duration(h.Cfg.JWTRefreshExpirationHours) * time.Hour),
	}
	if err := h.DB.Create(&stored).Error; err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	c.SetCookie(
		refreshTokenCookie,
		token,
		h.Cfg.JWTRefreshExpirationHours*60*60,
		"/",
		"",
		h.Cfg.Environment != "development",
		true,
	)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
