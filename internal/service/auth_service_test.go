package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/edumanage/academy-api/internal/models"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail    *models.User
	userByID       *models.User
	exists         bool
	created        *models.User
	refreshTokens  map[string]*models.RefreshToken
	revokedForUser string
	passwordHash   string
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.userByEmail == nil || m.userByEmail.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.userByID != nil && m.userByID.ID == id {
		return m.userByID, nil
	}
	if m.userByEmail != nil && m.userByEmail.ID == id {
		return m.userByEmail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error) {
	return m.exists, nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = "new-user"
	m.created = user
	m.userByEmail = user
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, mustChange bool) error {
	m.passwordHash = passwordHash
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedForUser = userID
	return nil
}

type mockBranchReader struct {
	branch *models.Branch
}

func (m *mockBranchReader) FindByID(ctx context.Context, id string) (*models.Branch, error) {
	if m.branch == nil || m.branch.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.branch, nil
}

func newTestAuthService(repo *mockAuthRepo, branches *mockBranchReader) *AuthService {
	return NewAuthService(repo, branches, nil, nil, nil, AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "academy-api",
	})
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(hash), Active: true, Role: models.RoleStudent}}
	svc := newTestAuthService(repo, &mockBranchReader{})

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "u1", res.User.ID)
}

func TestAuthServiceLoginInactive(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(hash), Active: false, Role: models.RoleStudent}}
	svc := newTestAuthService(repo, &mockBranchReader{})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(hash), Active: true, Role: models.RoleStudent}}
	svc := newTestAuthService(repo, &mockBranchReader{})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRegisterCreatesStudent(t *testing.T) {
	repo := &mockAuthRepo{}
	branches := &mockBranchReader{branch: &models.Branch{ID: "b1", Name: "Main"}}
	svc := newTestAuthService(repo, branches)

	res, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "new@example.com",
		Phone:    "08123456789",
		FullName: "New Student",
		Password: "password123",
		BranchID: "b1",
	})
	require.NoError(t, err)
	require.NotNil(t, repo.created)
	assert.Equal(t, models.RoleStudent, repo.created.Role)
	require.NotNil(t, repo.created.BranchID)
	assert.Equal(t, "b1", *repo.created.BranchID)
	assert.True(t, repo.created.Active)
	assert.NotEmpty(t, res.AccessToken)
}

func TestAuthServiceRegisterDuplicate(t *testing.T) {
	repo := &mockAuthRepo{exists: true}
	branches := &mockBranchReader{branch: &models.Branch{ID: "b1"}}
	svc := newTestAuthService(repo, branches)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "dup@example.com",
		Phone:    "08123456789",
		FullName: "Dup",
		Password: "password123",
		BranchID: "b1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRegisterUnknownBranch(t *testing.T) {
	svc := newTestAuthService(&mockAuthRepo{}, &mockBranchReader{})

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "new@example.com",
		Phone:    "08123456789",
		FullName: "New",
		Password: "password123",
		BranchID: "missing",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	user := &models.User{ID: "u1", Email: "user@example.com", Active: true, Role: models.RoleStudent}
	repo := &mockAuthRepo{userByID: user, refreshTokens: map[string]*models.RefreshToken{
		"old-token": {ID: "rt1", UserID: "u1", Token: "old-token", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	svc := newTestAuthService(repo, &mockBranchReader{})

	res, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	require.NoError(t, err)
	assert.NotEqual(t, "old-token", res.RefreshToken)
	assert.True(t, repo.refreshTokens["old-token"].Revoked)
}

func TestAuthServiceRefreshExpired(t *testing.T) {
	user := &models.User{ID: "u1", Active: true, Role: models.RoleStudent}
	repo := &mockAuthRepo{userByID: user, refreshTokens: map[string]*models.RefreshToken{
		"stale": {ID: "rt1", UserID: "u1", Token: "stale", ExpiresAt: time.Now().Add(-time.Minute)},
	}}
	svc := newTestAuthService(repo, &mockBranchReader{})

	_, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestParseAccessToken(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := newTestAuthService(repo, &mockBranchReader{})
	branchID := "b1"
	user := &models.User{ID: "u1", Email: "user@example.com", Role: models.RoleCoach, BranchID: &branchID}

	token, _, err := svc.issueAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ParseAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleCoach, claims.Role)
	require.NotNil(t, claims.BranchID)
	assert.Equal(t, "b1", *claims.BranchID)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	oldHash, _ := bcrypt.GenerateFromPassword([]byte("oldpassword"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(oldHash), Active: true, Role: models.RoleStudent}}
	svc := newTestAuthService(repo, &mockBranchReader{})

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "oldpassword", NewPassword: "newpassword"})
	require.NoError(t, err)
	assert.NotEmpty(t, repo.passwordHash)
	assert.Equal(t, "u1", repo.revokedForUser)
}
