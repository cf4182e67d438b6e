package services

import (
	"cobranca/database"
	"cobranca/models"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials неверный email или пароль
	ErrInvalidCredentials = errors.New("неверный email или пароль")
	// ErrUserExists пользователь с таким email уже есть
	ErrUserExists = errors.New("пользователь с таким email уже существует")
)

// Claims данные пользователя в JWT
type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type CreateUserRequest struct {
	FirstName string `json:"firstName" validate:"required,min=2,max=50"`
	LastName  string `json:"lastName" validate:"required,min=2,max=50"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,password"`
}

type UserResponse struct {
	ID        uint   `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

type Token struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	UserID    uint      `json:"userId"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type AuthResponse struct {
	Token Token        `json:"token"`
	User  UserResponse `json:"user"`
}

type UserService struct {
	store     UserStore
	validate  *validator.Validate
	jwtKey    []byte
	expiresIn time.Duration
	now       func() time.Time
}

// NewUserService создает сервис пользователей; expiresIn задает время жизни токена
func NewUserService(store UserStore, jwtKey string, expiresIn time.Duration) *UserService {
	validate := validator.New()

	// Пароль: цифра, заглавная, строчная буква и спецсимвол
	validate.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		password := fl.Field().String()
		hasNumber := regexp.MustCompile(`[0-9]`).MatchString(password)
		hasUpper := regexp.MustCompile(`[A-Z]`).MatchString(password)
		hasLower := regexp.MustCompile(`[a-z]`).MatchString(password)
		hasSpecial := regexp.MustCompile(`[!@#$%^&*]`).MatchString(password)
		return hasNumber && hasUpper && hasLower && hasSpecial
	})

	return &UserService{
		store:     store,
		validate:  validate,
		jwtKey:    []byte(jwtKey),
		expiresIn: expiresIn,
		now:       time.Now,
	}
}

func toUserResponse(user *models.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		Role:      user.Role,
	}
}

// SignUp создает нового пользователя с ролью agent и выдает ему токен
func (s *UserService) SignUp(ctx context.Context, req CreateUserRequest) (*AuthResponse, error) {
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	// Хешируем пароль
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Password:  string(hashedPassword),
		Role:      models.RoleAgent,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("ошибка при создании пользователя: %w", err)
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: *token, User: toUserResponse(user)}, nil
}

// SignIn проверяет пароль и выдает токен
func (s *UserService) SignIn(ctx context.Context, req SignInRequest) (*AuthResponse, error) {
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: *token, User: toUserResponse(user)}, nil
}

// EnsureAdmin заводит администратора, если пользователя с таким email еще нет.
// Возвращает true, когда пользователь создан.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false, nil
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, database.ErrNotFound) {
		return false, err
	}

	if len(password) < 8 {
		return false, newValidationError("пароль администратора должен быть не короче 8 символов")
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}

	user := &models.User{
		FirstName: "Admin",
		LastName:  "Cobranca",
		Email:     email,
		Password:  string(hashedPassword),
		Role:      models.RoleAdmin,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка при создании администратора: %w", err)
	}
	return true, nil
}

// Me возвращает пользователя по ID
func (s *UserService) Me(ctx context.Context, id uint) (*UserResponse, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toUserResponse(user)
	return &resp, nil
}

// GenerateToken создает JWT токен
func (s *UserService) GenerateToken(user *models.User) (*Token, error) {
	now := s.now()
	expirationTime := now.Add(s.expiresIn)
	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtKey)
	if err != nil {
		return nil, fmt.Errorf("ошибка при создании токена: %w", err)
	}

	return &Token{
		Token:     tokenString,
		Email:     user.Email,
		UserID:    user.ID,
		Role:      user.Role,
		ExpiresAt: expirationTime,
	}, nil
}
