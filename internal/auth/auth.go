package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/parish-camps/camp-api/internal/config"
	"github.com/parish-camps/camp-api/internal/models"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const (
	GoogleAuthorizeEndpoint = "https://accounts.google.com/o/oauth2/v2/auth"
	GoogleTokenEndpoint     = "https://oauth2.googleapis.com/token"
	GoogleUserInfoAPI       = "https://openidconnect.googleapis.com/v1/userinfo"
)

const (
	TokenDuration   = 24 * time.Hour
	TokenCookieName = "auth_token"
	StateCookieName = "oauth_state"
)

type AuthHandler struct {
	oauthConfig *oauth2.Config
	userInfoURL string
	db          *gorm.DB
	cfg         *config.Config
	logger      *zap.Logger
}

func NewAuthHandler(cfg *config.Config, db *gorm.DB, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  GoogleAuthorizeEndpoint,
				TokenURL: GoogleTokenEndpoint,
			},
		},
		userInfoURL: GoogleUserInfoAPI,
		db:          db,
		cfg:         cfg,
		logger:      logger,
	}
}

type LoginOutput struct {
	Status    int
	Location  string `header:"Location"`
	SetCookie string `header:"Set-Cookie"`
}

func (h *AuthHandler) HandleLogin(ctx context.Context, input *struct{}) (*LoginOutput, error) {
	state, err := randomHex(16)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to start login")
	}
	cookie := &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		Path:     "/",
		Secure:   !h.cfg.IsDevelopment(),
		SameSite: http.SameSiteLaxMode,
	}
	return &LoginOutput{
		Status:    http.StatusTemporaryRedirect,
		Location:  h.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOnline),
		SetCookie: cookie.String(),
	}, nil
}

type CallbackInput struct {
	Code        string `query:"code"`
	State       string `query:"state"`
	StateCookie string `cookie:"oauth_state"`
}

type CallbackOutput struct {
	SetCookie string `header:"Set-Cookie"`
	Body      struct {
		Message string `json:"message"`
	}
}

// HandleCallback finishes the OAuth flow. Only accounts already provisioned
// as staff may log in; the verified email is the link.
func (h *AuthHandler) HandleCallback(ctx context.Context, input *CallbackInput) (*CallbackOutput, error) {
	if input.Code == "" {
		return nil, huma.Error400BadRequest("Code not found")
	}
	if input.State == "" || input.State != input.StateCookie {
		return nil, huma.Error400BadRequest("Invalid OAuth state")
	}

	token, err := h.oauthConfig.Exchange(ctx, input.Code)
	if err != nil {
		h.logger.Warn("oauth exchange failed", zap.Error(err))
		return nil, huma.Error500InternalServerError("Failed to exchange token")
	}

	client := h.oauthConfig.Client(ctx, token)
	resp, err := client.Get(h.userInfoURL)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to get user info")
	}
	defer resp.Body.Close()

	var userInfo struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, huma.Error500InternalServerError("Failed to decode user info")
	}
	if userInfo.Email == "" || !userInfo.EmailVerified {
		return nil, huma.Error403Forbidden("Access denied: email not verified")
	}

	var staff models.Staff
	err = h.db.WithContext(ctx).Where("email = ?", strings.ToLower(userInfo.Email)).First(&staff).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.logger.Info("login refused for unknown staff", zap.String("email", userInfo.Email))
		return nil, huma.Error403Forbidden("Access denied: you are not registered as parish staff.")
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("Database error")
	}
	if userInfo.Name != "" && userInfo.Name != staff.Name {
		if err := h.db.WithContext(ctx).Model(&staff).Update("name", userInfo.Name).Error; err != nil {
			return nil, huma.Error500InternalServerError("Failed to save staff")
		}
	}

	jwtToken, err := h.GenerateToken(staff.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to generate token")
	}

	out := &CallbackOutput{SetCookie: h.tokenCookie(jwtToken).String()}
	out.Body.Message = fmt.Sprintf("Welcome %s! You are logged in.", staff.Name)
	return out, nil
}

func (h *AuthHandler) GenerateToken(staffID uint) (string, error) {
	claims := jwt.MapClaims{
		"staff_id": staffID,
		"exp":      time.Now().Add(TokenDuration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.cfg.JWTSecret))
}

func (h *AuthHandler) tokenCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     TokenCookieName,
		Value:    value,
		Expires:  time.Now().Add(TokenDuration),
		HttpOnly: true,
		Path:     "/",
		Secure:   !h.cfg.IsDevelopment(),
		SameSite: http.SameSiteLaxMode,
	}
}

// AuthInput carries the credentials of a staff request.
type AuthInput struct {
	Cookie string `header:"Cookie"`
	APIKey string `header:"X-API-KEY"`
}

// Authorize resolves the staff member behind an API key or a session cookie.
func (h *AuthHandler) Authorize(ctx context.Context, input AuthInput) (*models.Staff, error) {
	if input.APIKey != "" {
		staffID, err := h.staffForAPIKey(ctx, input.APIKey)
		if err != nil {
			return nil, err
		}
		return h.loadStaff(ctx, staffID)
	}

	token := ""
	if input.Cookie != "" {
		cookies, err := http.ParseCookie(input.Cookie)
		if err != nil {
			return nil, huma.Error400BadRequest("Malformed cookie header")
		}
		for _, c := range cookies {
			if c.Name == TokenCookieName {
				token = c.Value
			}
		}
	}
	if token == "" {
		return nil, huma.Error401Unauthorized("Unauthorized: No token found")
	}

	claims, err := h.parseToken(token)
	if err != nil {
		return nil, huma.Error401Unauthorized("Unauthorized: Invalid token")
	}
	return h.loadStaff(ctx, claims.staffID)
}

func (h *AuthHandler) staffForAPIKey(ctx context.Context, key string) (uint, error) {
	var apiKey models.APIKey
	err := h.db.WithContext(ctx).Where("key = ?", key).First(&apiKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, huma.Error401Unauthorized("Unauthorized: Invalid API Key")
	}
	if err != nil {
		return 0, huma.Error500InternalServerError("Database error")
	}
	now := time.Now()
	if apiKey.Expired(now) {
		return 0, huma.Error401Unauthorized("Unauthorized: API Key expired")
	}
	if err := h.db.WithContext(ctx).Model(&apiKey).Update("last_used_at", now).Error; err != nil {
		h.logger.Warn("failed to touch api key", zap.Error(err), zap.Uint("api_key_id", apiKey.ID))
	}
	return apiKey.StaffID, nil
}

func (h *AuthHandler) loadStaff(ctx context.Context, id uint) (*models.Staff, error) {
	var staff models.Staff
	err := h.db.WithContext(ctx).First(&staff, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, huma.Error401Unauthorized("Unauthorized: staff account removed")
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("Database error")
	}
	return &staff, nil
}

type tokenClaims struct {
	staffID uint
	expires time.Time
}

func (h *AuthHandler) parseToken(tokenString string) (*tokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(h.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	staffID, ok := claims["staff_id"].(float64)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, errors.New("token without expiry")
	}
	return &tokenClaims{staffID: uint(staffID), expires: exp.Time}, nil
}

type MeOutput struct {
	Body struct {
		ID       uint   `json:"id"`
		Email    string `json:"email"`
		Name     string `json:"name"`
		ParishID uint   `json:"parish_id"`
		Admin    bool   `json:"admin"`
	}
}

func (h *AuthHandler) HandleMe(ctx context.Context, input *AuthInput) (*MeOutput, error) {
	staff, err := h.Authorize(ctx, *input)
	if err != nil {
		return nil, err
	}
	out := &MeOutput{}
	out.Body.ID = staff.ID
	out.Body.Email = staff.Email
	out.Body.Name = staff.Name
	out.Body.ParishID = staff.ParishID
	out.Body.Admin = staff.Admin
	return out, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
