package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/threadline/threadline/internal/auth"
	"github.com/threadline/threadline/internal/config"
)

// AuthHandler issues and refreshes admin JWTs. Credentials are checked
// against the bcrypt hash from config.
type AuthHandler struct {
	admin     config.AdminConfig
	secret    string
	expiresIn time.Duration
	logger    *slog.Logger
}

type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	OwnerID   string    `json:"owner_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewAuthHandler(log *slog.Logger, admin config.AdminConfig, secret string, expiresIn time.Duration) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{
		admin:     admin,
		secret:    secret,
		expiresIn: expiresIn,
		logger:    log.With(slog.String("handler", "auth")),
	}
}

func (h *AuthHandler) Register(e *echo.Echo) {
	e.POST("/api/auth/login", h.Login)
	e.POST("/api/auth/refresh", h.Refresh)
}

func (h *AuthHandler) Login(c echo.Context) error {
	var payload loginPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	username := strings.TrimSpace(payload.Username)
	if username == "" || payload.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
	}
	if h.admin.Username == "" || h.admin.PasswordHash == "" {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "admin credentials not configured")
	}
	if username != h.admin.Username {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.admin.PasswordHash), []byte(payload.Password)); err != nil {
		h.logger.Warn("failed login attempt", slog.String("username", username))
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	ownerID := AdminOwnerID(username)
	token, expiresAt, err := auth.GenerateToken(ownerID, true, h.secret, h.expiresIn)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, tokenResponse{Token: token, OwnerID: ownerID, ExpiresAt: expiresAt})
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	token, expiresAt, err := auth.RefreshTokenFromContext(c, h.secret, h.expiresIn)
	if err != nil {
		return err
	}
	ownerID, err := auth.OwnerIDFromContext(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokenResponse{Token: token, OwnerID: ownerID, ExpiresAt: expiresAt})
}

// AdminOwnerID derives a stable owner uuid for the configured admin so
// participant and bot rows can reference it like any other owner.
func AdminOwnerID(username string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("threadline-admin:"+username)).String()
}
