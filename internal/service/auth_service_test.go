package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mfotsing/structureclerk-api/internal/models"
	appErrors "github.com/mfotsing/structureclerk-api/pkg/errors"
)

type userStoreStub struct {
	users  map[string]*models.User
	tokens map[string]*models.RefreshToken
}

func newUserStoreStub() *userStoreStub {
	return &userStoreStub{
		users:  make(map[string]*models.User),
		tokens: make(map[string]*models.RefreshToken),
	}
}

func (s *userStoreStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range s.users {
		if user.Email == email {
			copy := *user
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *userStoreStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userStoreStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if user, ok := s.users[id]; ok {
		user.LastLogin = &ts
	}
	return nil
}

func (s *userStoreStub) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if user, ok := s.users[id]; ok {
		user.PasswordHash = passwordHash
		user.UpdatedAt = updatedAt
	}
	return nil
}

func (s *userStoreStub) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	s.tokens[token.Token] = token
	return nil
}

func (s *userStoreStub) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if stored, ok := s.tokens[token]; ok {
		copy := *stored
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userStoreStub) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range s.tokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (s *userStoreStub) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	for _, token := range s.tokens {
		if token.UserID == userID && !token.Revoked {
			token.Revoked = true
			token.RevokedAt = &now
		}
	}
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		Secret:        "test-secret",
		Expiry:        time.Hour,
		RefreshExpiry: 24 * time.Hour,
		Issuer:        "structureclerk-test",
	}
}

func seedUser(t *testing.T, store *userStoreStub, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		ID:             "user-1",
		OrganizationID: "org-1",
		Email:          "owner@example.com",
		PasswordHash:   string(hash),
		FullName:       "Jean Fortin",
		Role:           models.RoleOwner,
		Locale:         models.LocaleFrench,
		Active:         true,
	}
	store.users[user.ID] = user
	return user
}

func TestAuthServiceLogin(t *testing.T) {
	store := newUserStoreStub()
	seedUser(t, store, "s3cret-pass")
	activities := &activityLogStub{}
	svc := NewAuthService(store, activities, testAuthConfig(), nil)

	res, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "owner@example.com",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, models.RoleOwner, res.User.Role)
	assert.Equal(t, models.LocaleFrench, res.User.Locale)
	require.Len(t, activities.activities, 1)
	assert.Equal(t, models.ActivityUserLogin, activities.activities[0].Action)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "org-1", claims.OrganizationID)
}

func TestAuthServiceLoginInvalidCredentials(t *testing.T) {
	store := newUserStoreStub()
	seedUser(t, store, "s3cret-pass")
	svc := NewAuthService(store, nil, testAuthConfig(), nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "owner@example.com",
		Password: "wrong",
	})
	appErr := appErrors.FromError(err)
	assert.Equal(t, 401, appErr.Status)

	_, err = svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever",
	})
	appErr = appErrors.FromError(err)
	assert.Equal(t, 401, appErr.Status)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	store := newUserStoreStub()
	user := seedUser(t, store, "s3cret-pass")
	user.Active = false
	svc := NewAuthService(store, nil, testAuthConfig(), nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "owner@example.com",
		Password: "s3cret-pass",
	})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
}

func TestAuthServiceRefreshRotation(t *testing.T) {
	store := newUserStoreStub()
	seedUser(t, store, "s3cret-pass")
	svc := NewAuthService(store, nil, testAuthConfig(), nil)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "owner@example.com",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The old token was rotated out and no longer works.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	appErr := appErrors.FromError(err)
	assert.Equal(t, 401, appErr.Status)
}

func TestAuthServiceChangePassword(t *testing.T) {
	store := newUserStoreStub()
	seedUser(t, store, "old-password")
	svc := NewAuthService(store, nil, testAuthConfig(), nil)

	claims := &models.JWTClaims{UserID: "user-1", OrganizationID: "org-1"}

	err := svc.ChangePassword(context.Background(), claims, models.ChangePasswordRequest{
		OldPassword: "wrong",
		NewPassword: "brand-new-password",
	})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	err = svc.ChangePassword(context.Background(), claims, models.ChangePasswordRequest{
		OldPassword: "old-password",
		NewPassword: "brand-new-password",
	})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), models.LoginRequest{
		Email:    "owner@example.com",
		Password: "brand-new-password",
	})
	require.NoError(t, err)
}

func TestAuthServiceValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewAuthService(newUserStoreStub(), nil, testAuthConfig(), nil)

	_, err := svc.ValidateToken("not-a-token")
	appErr := appErrors.FromError(err)
	assert.Equal(t, 401, appErr.Status)
}
