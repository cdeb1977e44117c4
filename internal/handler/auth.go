package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-class-booking/internal/config"
	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/service"
	"github.com/iliyamo/gym-class-booking/internal/utils"
)

// AuthHandler serves registration, login and the caller's profile.
type AuthHandler struct {
	Cfg       config.Config
	Directory *service.MemberDirectory
}

func NewAuthHandler(cfg config.Config, d *service.MemberDirectory) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Directory: d}
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userPart struct {
	ID    uint64     `json:"id"`
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
}

type authResp struct {
	User   userPart          `json:"user"`
	Member *model.Member     `json:"member,omitempty"`
	Access utils.AccessToken `json:"access"`
}

// Register handles POST /v1/auth/register and returns an access token
// right away.
func (h *AuthHandler) Register(c echo.Context) error {
	var req service.RegisterInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	reg, err := h.Directory.Register(c.Request().Context(), req)
	if err != nil {
		return writeServiceError(c, err)
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, reg.User.ID, string(reg.User.Role), h.Cfg.AccessTTLMin)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, authResp{
		User:   userPart{ID: reg.User.ID, Email: reg.User.Email, Role: reg.User.Role},
		Member: reg.Member,
		Access: access,
	})
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "email/password required")
	}
	u, err := h.Directory.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return writeServiceError(c, err)
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, string(u.Role), h.Cfg.AccessTTLMin)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, authResp{
		User:   userPart{ID: u.ID, Email: u.Email, Role: u.Role},
		Access: access,
	})
}

// Me handles GET /v1/me: the identity plus, for members, the member row.
func (h *AuthHandler) Me(c echo.Context) error {
	p, ok := principal(c)
	if !ok {
		return nil
	}
	ctx := c.Request().Context()
	u, err := h.Directory.GetUser(ctx, p.UserID)
	if err != nil {
		return writeServiceError(c, err)
	}
	resp := authResp{User: userPart{ID: u.ID, Email: u.Email, Role: u.Role}}
	if u.Role == model.RoleMember {
		m, err := h.Directory.MemberForUser(ctx, u.ID)
		if err != nil {
			return writeServiceError(c, err)
		}
		resp.Member = &m
	}
	return c.JSON(http.StatusOK, echo.Map{"user": resp.User, "member": resp.Member})
}
