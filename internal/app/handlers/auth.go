package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/linemk/online-store/internal/service"
	"github.com/linemk/online-store/internal/storage"
)

// RegisterRequest представляет структуру запроса на регистрацию с тегами валидации
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=customer product_manager"`
}

// LoginRequest представляет структуру запроса на вход
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse представляет структуру ответа с JWT-токеном и ролью пользователя
type LoginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

var validate = validator.New()

// RegisterHandler – HTTP-обработчик регистрации (POST /auth/register)
func RegisterHandler(log *slog.Logger, authService service.AuthServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.RegisterHandler"
		logger := log.With(slog.String("op", op))

		var req RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		// Валидация структуры запроса с использованием validator
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			http.Error(w, "validation error", http.StatusBadRequest)
			return
		}

		if err := authService.Register(r.Context(), req.Email, req.Password, req.Role); err != nil {
			if errors.Is(err, service.ErrUserAlreadyExists) {
				logger.Warn("email already registered", slog.String("email", req.Email))
				http.Error(w, `email "`+req.Email+`" is already registered`, http.StatusBadRequest)
				return
			}
			logger.Error("registration failed", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"message": "User registered successfully"}); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
	}
}

// LoginHandler – HTTP-обработчик аутентификации (POST /auth/login)
func LoginHandler(log *slog.Logger, authService service.AuthServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.LoginHandler"
		logger := log.With(slog.String("op", op))

		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			http.Error(w, "validation error", http.StatusBadRequest)
			return
		}

		// Вызов бизнес-логики для аутентификации
		token, role, err := authService.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				logger.Warn("user not found", slog.String("email", req.Email))
				http.Error(w, "user not found", http.StatusNotFound)
				return
			}
			if errors.Is(err, service.ErrInvalidCredentials) {
				logger.Warn("invalid credentials", slog.String("email", req.Email))
				http.Error(w, "invalid credentials", http.StatusUnauthorized)
				return
			}
			logger.Error("login failed", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		// Формирование и отправка ответа с JWT-токеном
		resp := LoginResponse{Token: token, Role: role}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
	}
}
