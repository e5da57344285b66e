package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/parish-camps/camp-api/internal/apperr"
	"github.com/parish-camps/camp-api/internal/auth"
	"github.com/parish-camps/camp-api/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// APIKeyHandler lets staff mint keys for scripts and scrapers that cannot
// hold a session cookie.
type APIKeyHandler struct {
	db          *gorm.DB
	authHandler *auth.AuthHandler
	logger      *zap.Logger
}

func NewAPIKeyHandler(db *gorm.DB, authHandler *auth.AuthHandler, logger *zap.Logger) *APIKeyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIKeyHandler{db: db, authHandler: authHandler, logger: logger}
}

type CreateAPIKeyInput struct {
	auth.AuthInput
	Body struct {
		Name      string     `json:"name" minLength:"1" maxLength:"80"`
		ExpiresAt *time.Time `json:"expires_at,omitempty"`
	}
}

type APIKeyResponse struct {
	ID         uint       `json:"id"`
	Name       string     `json:"name"`
	Key        string     `json:"key"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

type CreateAPIKeyOutput struct {
	Body APIKeyResponse
}

// apiKeyResponse shows the full key only right after creation.
func apiKeyResponse(k models.APIKey, reveal bool) APIKeyResponse {
	key := k.Key
	if !reveal && len(key) > 4 {
		key = "..." + key[len(key)-4:]
	}
	return APIKeyResponse{
		ID:         k.ID,
		Name:       k.Name,
		Key:        key,
		CreatedAt:  k.CreatedAt,
		ExpiresAt:  k.ExpiresAt,
		LastUsedAt: k.LastUsedAt,
	}
}

func newAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (h *APIKeyHandler) HandleCreate(ctx context.Context, input *CreateAPIKeyInput) (*CreateAPIKeyOutput, error) {
	staff, err := h.authHandler.Authorize(ctx, input.AuthInput)
	if err != nil {
		return nil, err
	}
	if exp := input.Body.ExpiresAt; exp != nil && !exp.After(time.Now()) {
		return nil, httpError(h.logger, "create api key", apperr.NewValidationError("expires_at", "must be in the future"))
	}

	key, err := newAPIKey()
	if err != nil {
		return nil, httpError(h.logger, "create api key", err)
	}
	apiKey := models.APIKey{
		StaffID:   staff.ID,
		Key:       key,
		Name:      input.Body.Name,
		ExpiresAt: input.Body.ExpiresAt,
	}
	if err := h.db.WithContext(ctx).Create(&apiKey).Error; err != nil {
		return nil, httpError(h.logger, "create api key", err)
	}
	h.logger.Info("api key created", zap.Uint("staff_id", staff.ID), zap.Uint("api_key_id", apiKey.ID))

	return &CreateAPIKeyOutput{Body: apiKeyResponse(apiKey, true)}, nil
}

type ListAPIKeysInput struct {
	auth.AuthInput
}

type ListAPIKeysOutput struct {
	Body []APIKeyResponse
}

// HandleList returns the caller's keys, masked.
func (h *APIKeyHandler) HandleList(ctx context.Context, input *ListAPIKeysInput) (*ListAPIKeysOutput, error) {
	staff, err := h.authHandler.Authorize(ctx, input.AuthInput)
	if err != nil {
		return nil, err
	}

	var keys []models.APIKey
	if err := h.db.WithContext(ctx).Where("staff_id = ?", staff.ID).Order("id asc").Find(&keys).Error; err != nil {
		return nil, httpError(h.logger, "list api keys", err)
	}
	out := &ListAPIKeysOutput{Body: make([]APIKeyResponse, 0, len(keys))}
	for _, k := range keys {
		out.Body = append(out.Body, apiKeyResponse(k, false))
	}
	return out, nil
}

type DeleteAPIKeyInput struct {
	auth.AuthInput
	ID uint `path:"id"`
}

// HandleDelete revokes one of the caller's keys.
func (h *APIKeyHandler) HandleDelete(ctx context.Context, input *DeleteAPIKeyInput) (*struct{}, error) {
	staff, err := h.authHandler.Authorize(ctx, input.AuthInput)
	if err != nil {
		return nil, err
	}

	res := h.db.WithContext(ctx).Where("id = ? AND staff_id = ?", input.ID, staff.ID).Delete(&models.APIKey{})
	if res.Error == nil && res.RowsAffected == 0 {
		res.Error = apperr.ErrNotFound
	}
	if res.Error != nil {
		return nil, httpError(h.logger, "delete api key", res.Error)
	}
	h.logger.Info("api key revoked", zap.Uint("staff_id", staff.ID), zap.Uint("api_key_id", input.ID))
	return nil, nil
}
