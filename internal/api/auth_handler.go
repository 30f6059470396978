package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"govjobs/internal/auth"
	"govjobs/internal/database"
	"govjobs/internal/portal"
)

const (
	refreshTokenCookieName         = "refresh_token"
	refreshTokenBlacklistKeyPrefix = "auth:refresh:blacklist:"
	loginRateKeyPrefix             = "rate:login:"
	loginFailKeyPrefix             = "lock:login:fail:"
	loginLockKeyPrefix             = "lock:login:"
)

// AuthHandler 处理注册、登录、刷新、改密与退出。
type AuthHandler struct {
	db          *gorm.DB
	authService *auth.AuthService
	redis       redis.UniversalClient
	logger      *slog.Logger
	throttle    loginThrottle
	cookie      refreshCookie
}

// loginThrottle 按 IP+邮箱限流，并在连续失败后临时锁定邮箱。
type loginThrottle struct {
	ratePerHour   int
	lockThreshold int
	lockTTL       time.Duration
}

// refreshCookie 描述刷新令牌 Cookie 的下发方式。
type refreshCookie struct {
	domain string
	ttl    time.Duration
}

// NewAuthHandler 构造认证处理器。
func NewAuthHandler(db *gorm.DB, authService *auth.AuthService, redisClient redis.UniversalClient, logger *slog.Logger, loginRateLimitPerHour int, loginLockThreshold int, loginLockTTL time.Duration, cookieDomain string) *AuthHandler {
	return &AuthHandler{
		db:          db,
		authService: authService,
		redis:       redisClient,
		logger:      logger,
		throttle: loginThrottle{
			ratePerHour:   loginRateLimitPerHour,
			lockThreshold: loginLockThreshold,
			lockTTL:       loginLockTTL,
		},
		cookie: refreshCookie{
			domain: strings.TrimSpace(cookieDomain),
			ttl:    authService.RefreshTokenTTL(),
		},
	}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	FullName string `json:"full_name" binding:"required,max=255"`
	Role     string `json:"role" binding:"required"`
	Phone    string `json:"phone" binding:"max=32"`
}

// profileResponse 是对外暴露的账号信息，不含密码哈希。
type profileResponse struct {
	ID                 uint   `json:"id"`
	Email              string `json:"email"`
	FullName           string `json:"full_name"`
	Role               string `json:"role"`
	Phone              string `json:"phone"`
	MustChangePassword bool   `json:"must_change_password"`
}

func newProfileResponse(p database.Profile) profileResponse {
	return profileResponse{
		ID:                 p.ID,
		Email:              p.Email,
		FullName:           p.FullName,
		Role:               p.Role,
		Phone:              p.Phone,
		MustChangePassword: p.MustChangePassword,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register 创建新账号，角色在注册时确定且之后不可修改。
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	role, err := portal.ParseRole(req.Role)
	if err != nil {
		Unprocessable(c, err)
		return
	}
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		Unprocessable(c, &portal.ValidationError{Field: "full_name", Message: "full name is required"})
		return
	}

	email := normalizeEmail(req.Email)
	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(slog.String("email", email), slog.String("role", string(role)))

	taken, err := h.emailTaken(ctx, email)
	if err != nil {
		logger.Error("register lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if taken {
		logger.Info("register conflict: email already exists")
		Conflict(c, "email already registered")
		return
	}

	hashed, err := h.authService.HashPassword(req.Password)
	if err != nil {
		logger.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	profile := database.Profile{
		Email:        email,
		FullName:     fullName,
		Role:         string(role),
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hashed,
	}
	if err := h.db.WithContext(ctx).Create(&profile).Error; err != nil {
		logger.Error("create profile failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("profile registered", slog.Uint64("user_id", uint64(profile.ID)))
	c.JSON(http.StatusCreated, newProfileResponse(profile))
}

func (h *AuthHandler) emailTaken(ctx context.Context, email string) (bool, error) {
	var count int64
	err := h.db.WithContext(ctx).Model(&database.Profile{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

// Me 返回当前登录账号。
func (h *AuthHandler) Me(c *gin.Context) {
	profile, ok := h.currentProfile(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newProfileResponse(profile))
}

// currentProfile 读取令牌对应的账号；账号已不存在时按未登录处理。
func (h *AuthHandler) currentProfile(c *gin.Context) (database.Profile, bool) {
	var profile database.Profile
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return profile, false
	}
	if err := h.db.WithContext(c.Request.Context()).First(&profile, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Unauthorized(c)
			return profile, false
		}
		requestLogger(c, h.logger).Error("load profile failed", slog.Any("error", err))
		Internal(c, "internal error")
		return profile, false
	}
	return profile, true
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken        string `json:"access_token"`
	TokenType          string `json:"token_type"`
	ExpiresIn          int    `json:"expires_in"`
	Role               string `json:"role"`
	MustChangePassword bool   `json:"must_change_password"`
}

// Login 校验邮箱与密码并返回 Token。
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	email := normalizeEmail(req.Email)
	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(slog.String("email", email))

	if msg, blocked := h.loginBlocked(ctx, c.ClientIP(), email); blocked {
		logger.Info("login throttled", slog.String("reason", msg))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": msg})
		return
	}

	var profile database.Profile
	err := h.db.WithContext(ctx).Where("email = ?", email).First(&profile).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		logger.Info("login failed: profile not found")
		h.recordLoginFailure(ctx, email)
		Unauthorized(c)
		return
	case err != nil:
		logger.Error("login query failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if !h.authService.CheckPasswordHash(req.Password, profile.PasswordHash) {
		logger.Info("login failed: password mismatch", slog.Uint64("user_id", uint64(profile.ID)))
		h.recordLoginFailure(ctx, email)
		Unauthorized(c)
		return
	}

	_ = h.redis.Del(ctx, loginFailKeyPrefix+email).Err()

	logger.Info("login succeeded", slog.Uint64("user_id", uint64(profile.ID)), slog.String("role", profile.Role))
	h.issueTokens(c, profile, logger)
}

// loginBlocked 检查限流与锁定。Redis 故障时放行。
func (h *AuthHandler) loginBlocked(ctx context.Context, ip, email string) (string, bool) {
	rateKey := loginRateKeyPrefix + ip + ":" + email + ":" + time.Now().UTC().Format("2006010215")
	if overLimit(ctx, h.redis, rateKey, time.Hour, h.throttle.ratePerHour) {
		return "rate limit exceeded", true
	}
	if ttl, err := h.redis.TTL(ctx, loginLockKeyPrefix+email).Result(); err == nil && ttl > 0 {
		return "account temporarily locked", true
	}
	return "", false
}

func (h *AuthHandler) recordLoginFailure(ctx context.Context, email string) {
	count, err := incrWithTTL(ctx, h.redis, loginFailKeyPrefix+email, h.throttle.lockTTL)
	if err != nil || h.throttle.lockThreshold <= 0 {
		return
	}
	if count >= int64(h.throttle.lockThreshold) {
		_ = h.redis.Set(ctx, loginLockKeyPrefix+email, "1", h.throttle.lockTTL).Err()
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh 校验刷新令牌并颁发新的 TokenPair，旧令牌随即作废。
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger)

	claims, ok := h.refreshClaims(c, logger)
	if !ok {
		return
	}

	revoked, err := h.refreshRevoked(ctx, claims.ID)
	if err != nil {
		logger.Error("refresh token blacklist lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if revoked {
		logger.Info("refresh token revoked", slog.String("jti", claims.ID))
		Unauthorized(c)
		return
	}

	var profile database.Profile
	if err := h.db.WithContext(ctx).First(&profile, claims.UserID).Error; err != nil {
		logger.Info("refresh profile not found", slog.Any("error", err))
		Unauthorized(c)
		return
	}

	if err := h.revokeRefresh(ctx, claims); err != nil {
		logger.Error("refresh revoke old token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	h.issueTokens(c, profile, logger)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required,min=8,max=72"`
	NewPassword     string `json:"new_password" binding:"required,min=8,max=72,nefield=CurrentPassword"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=NewPassword"`
}

// ChangePassword 校验当前密码并更新为新密码，同时解除首次登录改密限制。
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	profile, ok := h.currentProfile(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(slog.Uint64("user_id", uint64(profile.ID)))

	if !h.authService.CheckPasswordHash(req.CurrentPassword, profile.PasswordHash) {
		logger.Info("change password: current password mismatch")
		Unauthorized(c)
		return
	}

	hashed, err := h.authService.HashPassword(req.NewPassword)
	if err != nil {
		logger.Error("change password: hash failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if err := h.db.WithContext(ctx).Model(&profile).Updates(map[string]any{
		"password_hash":        hashed,
		"must_change_password": false,
	}).Error; err != nil {
		logger.Error("change password: update failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	// 旧会话的刷新令牌一并作废。
	if token, err := c.Cookie(refreshTokenCookieName); err == nil && token != "" {
		if claims, err := h.authService.ValidateToken(token); err == nil && claims.TokenType == auth.TokenTypeRefresh && claims.ID != "" {
			if err := h.revokeRefresh(ctx, claims); err != nil {
				logger.Error("change password: revoke refresh failed", slog.Any("error", err))
				Internal(c, "internal error")
				return
			}
		}
	}

	profile.MustChangePassword = false
	logger.Info("password changed")
	h.issueTokens(c, profile, logger)
}

// Logout 将刷新令牌加入黑名单并清除 Cookie。
func (h *AuthHandler) Logout(c *gin.Context) {
	logger := requestLogger(c, h.logger)

	claims, ok := h.refreshClaims(c, logger)
	if !ok {
		return
	}
	if err := h.revokeRefresh(c.Request.Context(), claims); err != nil {
		logger.Error("logout revoke token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.cookie.write(c, "", -1)
	c.Status(http.StatusOK)
}

// refreshClaims 从 Cookie 或请求体读取并校验刷新令牌，失败时已写入 401。
func (h *AuthHandler) refreshClaims(c *gin.Context, logger *slog.Logger) (*auth.TokenClaims, bool) {
	token, err := c.Cookie(refreshTokenCookieName)
	if err != nil || token == "" {
		var req refreshRequest
		if c.ShouldBindJSON(&req) == nil {
			token = req.RefreshToken
		}
	}
	if token == "" {
		Unauthorized(c)
		return nil, false
	}

	claims, err := h.authService.ValidateToken(token)
	switch {
	case err != nil:
		logger.Info("refresh token invalid", slog.Any("error", err))
	case claims.TokenType != auth.TokenTypeRefresh:
		logger.Info("refresh token wrong type", slog.String("token_type", claims.TokenType))
	case claims.ID == "":
		logger.Info("refresh token missing jti")
	default:
		return claims, true
	}
	Unauthorized(c)
	return nil, false
}

func (h *AuthHandler) refreshRevoked(ctx context.Context, jti string) (bool, error) {
	err := h.redis.Get(ctx, refreshTokenBlacklistKeyPrefix+jti).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return err == nil, err
}

// revokeRefresh 拉黑到令牌自然过期为止。
func (h *AuthHandler) revokeRefresh(ctx context.Context, claims *auth.TokenClaims) error {
	ttl := h.authService.RefreshTokenTTL()
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return h.redis.Set(ctx, refreshTokenBlacklistKeyPrefix+claims.ID, "revoked", ttl).Err()
}

func identityOf(p database.Profile) auth.Identity {
	return auth.Identity{
		UserID:             p.ID,
		Role:               p.Role,
		MustChangePassword: p.MustChangePassword,
	}
}

// issueTokens 签发新的令牌对：刷新令牌写 Cookie，访问令牌放响应体。
func (h *AuthHandler) issueTokens(c *gin.Context, p database.Profile, logger *slog.Logger) {
	pair, err := h.authService.GenerateTokenPair(identityOf(p))
	if err != nil {
		logger.Error("generate token pair failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	maxAge := int(h.cookie.ttl.Seconds())
	if maxAge <= 0 {
		maxAge = int(time.Hour.Seconds())
	}
	h.cookie.write(c, pair.RefreshToken, maxAge)
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:        pair.AccessToken,
		TokenType:          "Bearer",
		ExpiresIn:          int(h.authService.AccessTokenTTL().Seconds()),
		Role:               p.Role,
		MustChangePassword: p.MustChangePassword,
	})
}

// write 下发刷新令牌 Cookie；maxAge 为负时删除。
func (rc refreshCookie) write(c *gin.Context, value string, maxAge int) {
	secure := c.Request.TLS != nil || strings.EqualFold(c.Request.Header.Get("X-Forwarded-Proto"), "https")
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    value,
		MaxAge:   maxAge,
		Path:     "/",
		Domain:   rc.domain,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
