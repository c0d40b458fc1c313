package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/linemk/online-store/internal/domain/models"
	"github.com/linemk/online-store/internal/security"
	"github.com/linemk/online-store/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserAlreadyExists  = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type AuthService struct {
	log      *slog.Logger
	userRepo storage.UserStorage
	tokenTTL time.Duration
}

func NewAuthService(log *slog.Logger, userRepo storage.UserStorage, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		log:      log,
		userRepo: userRepo,
		tokenTTL: tokenTTL,
	}
}

type AuthServiceInterface interface {
	Register(ctx context.Context, email, password, role string) error
	Login(ctx context.Context, email, password string) (token string, role string, err error)
}

// Register создает нового пользователя: пароль хэшируется через bcrypt
// (автоматически добавляет соль), роль по умолчанию — customer.
// Повторная регистрация на тот же email отклоняется.
func (a *AuthService) Register(ctx context.Context, email, password, role string) error {
	const op = "auth.Register"
	logger := a.log.With(
		slog.String("op", op),
		slog.String("email", email),
	)
	logger.Info("registering user")

	if role == "" {
		role = models.RoleCustomer
	}

	// Проверяем, не занят ли email
	_, err := a.userRepo.GetUserByEmail(ctx, email)
	if err == nil {
		logger.Warn("email already registered")
		return fmt.Errorf("%s: %w", op, ErrUserAlreadyExists)
	}
	if !errors.Is(err, storage.ErrUserNotFound) {
		logger.Error("failed to get user", slog.Any("error", err))
		return fmt.Errorf("%s: failed to get user: %w", op, err)
	}

	// Хеширование пароля с помощью bcrypt
	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("failed to hash password", slog.Any("error", err))
		return fmt.Errorf("%s: failed to hash password: %w", op, err)
	}

	newUser := &models.User{
		Email:    email,
		PassHash: passHash,
		Role:     role,
	}
	if _, err := a.userRepo.CreateUser(ctx, newUser); err != nil {
		logger.Error("failed to create user", slog.Any("error", err))
		return fmt.Errorf("%s: failed to create user: %w", op, err)
	}

	logger.Info("user registered successfully")
	return nil
}

// Login осуществляет аутентификацию пользователя: введённый пароль сравнивается
// с сохранённым хэшированным значением, после успешной проверки генерируется
// JWT-токен с идентификатором и ролью (секрет для подписи берется из переменной окружения).
func (a *AuthService) Login(ctx context.Context, email, password string) (string, string, error) {
	const op = "auth.Login"
	logger := a.log.With(
		slog.String("op", op),
		slog.String("email", email),
	)
	logger.Info("checking user")

	user, err := a.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			logger.Warn("user not found")
			return "", "", fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		logger.Error("failed to get user", slog.Any("error", err))
		return "", "", fmt.Errorf("%s: failed to get user: %w", op, err)
	}

	// Сравниваем введённый пароль с хэшированным паролем
	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		logger.Warn("invalid password")
		return "", "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	// Генерация JWT-токена. Функция security.NewToken внутри сама загружает секрет из переменной окружения JWT_SECRET.
	token, err := security.NewToken(ctx, user, a.tokenTTL)
	if err != nil {
		logger.Error("failed to generate token", slog.Any("error", err))
		return "", "", fmt.Errorf("%s: failed to generate token: %w", op, err)
	}

	logger.Info("user logged in successfully", slog.Int64("userID", user.ID))
	return token, user.Role, nil
}
