package services

import (
	"cobranca/models"
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTKey = "test-secret"

func validSignUp() CreateUserRequest {
	return CreateUserRequest{
		FirstName: "Renata",
		LastName:  "Lima",
		Email:     "Renata@Example.com",
		Password:  "Senha@123",
	}
}

func TestSignUpAndSignIn(t *testing.T) {
	store := newMemoryStore()
	svc := NewUserService(store, testJWTKey, time.Hour)
	ctx := context.Background()

	resp, err := svc.SignUp(ctx, validSignUp())
	require.NoError(t, err)
	assert.Equal(t, "renata@example.com", resp.User.Email)
	assert.Equal(t, models.RoleAgent, resp.User.Role)
	assert.NotEmpty(t, resp.Token.Token)

	stored, err := store.GetUserByEmail(ctx, "renata@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "Senha@123", stored.Password)

	_, err = svc.SignUp(ctx, validSignUp())
	assert.ErrorIs(t, err, ErrUserExists)

	auth, err := svc.SignIn(ctx, SignInRequest{Email: "RENATA@example.com", Password: "Senha@123"})
	require.NoError(t, err)
	assert.Equal(t, stored.ID, auth.User.ID)

	_, err = svc.SignIn(ctx, SignInRequest{Email: "renata@example.com", Password: "Errada@123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.SignIn(ctx, SignInRequest{Email: "ninguem@example.com", Password: "Senha@123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignUp_WeakPassword(t *testing.T) {
	svc := NewUserService(newMemoryStore(), testJWTKey, time.Hour)

	req := validSignUp()
	req.Password = "senhafraca"
	_, err := svc.SignUp(context.Background(), req)

	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestGenerateToken(t *testing.T) {
	svc := NewUserService(newMemoryStore(), testJWTKey, 2*time.Hour)
	user := &models.User{ID: 7, Email: "admin@example.com", Role: models.RoleAdmin}

	token, err := svc.GenerateToken(user)
	require.NoError(t, err)

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token.Token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(testJWTKey), nil
	})
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestMe(t *testing.T) {
	store := newMemoryStore()
	svc := NewUserService(store, testJWTKey, time.Hour)
	resp, err := svc.SignUp(context.Background(), validSignUp())
	require.NoError(t, err)

	me, err := svc.Me(context.Background(), resp.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renata", me.FirstName)

	_, err = svc.Me(context.Background(), 999)
	assert.Error(t, err)
}

func TestEnsureAdmin(t *testing.T) {
	store := newMemoryStore()
	svc := NewUserService(store, testJWTKey, time.Hour)
	ctx := context.Background()

	created, err := svc.EnsureAdmin(ctx, "", "whatever1")
	require.NoError(t, err)
	assert.False(t, created)

	_, err = svc.EnsureAdmin(ctx, "chefe@example.com", "curta")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	created, err = svc.EnsureAdmin(ctx, " Chefe@Example.com ", "Admin@2025")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.EnsureAdmin(ctx, "chefe@example.com", "Outra@2025")
	require.NoError(t, err)
	assert.False(t, created)

	auth, err := svc.SignIn(ctx, SignInRequest{Email: "chefe@example.com", Password: "Admin@2025"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, auth.User.Role)
}
