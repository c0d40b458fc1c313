package main

import (
	"context"

	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linemk/online-store/internal/app"
	"github.com/linemk/online-store/internal/app/handlers"
	"github.com/linemk/online-store/internal/config"
	"github.com/linemk/online-store/internal/domain/models"
	"github.com/linemk/online-store/internal/lib/logger"
	"github.com/linemk/online-store/internal/lib/logger/handlers/urllog"
	"github.com/linemk/online-store/internal/security/jwtmiddleware"
	"github.com/linemk/online-store/internal/service"
	"github.com/linemk/online-store/internal/storage"
	"github.com/pkg/errors"
)

func main() {
	// загрузка конфигурации
	cfg := config.MustLoad()

	// инициализация логгера, зависит от настройки окружения
	log := logger.SetupLogger(cfg.Env)
	log.Info("starting app", slog.String("env", cfg.Env))

	// загружаем объект приложения, конфигом и подключением к БД
	application, err := app.NewApp(log, cfg)
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.DB.Close()

	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	// реализация слоев по работе с БД по каждому направлению
	userRepo := storage.NewUserRepository(application.DB)
	productRepo := storage.NewProductRepository(application.DB)
	orderRepo := storage.NewOrderRepository(application.DB)

	authService := service.NewAuthService(application.Logger, userRepo, time.Duration(application.Config.JWT.TokenTTL)*time.Minute)
	productService := service.NewProductService(application.Logger, productRepo)
	orderService := service.NewOrderService(application.Logger, application.DB, productRepo, orderRepo)

	maxUploadMB := cfg.HTTPServer.MaxUploadMB

	// публичные эндпоинты: регистрация, вход, каталог
	router.Post("/auth/register", handlers.RegisterHandler(application.Logger, authService))
	router.Post("/auth/login", handlers.LoginHandler(application.Logger, authService))
	router.Get("/products", handlers.ListProductsHandler(application.Logger, productService))
	router.Get("/products/{id}", handlers.GetProductHandler(application.Logger, productService))

	jwtMW := jwtmiddleware.NewJWTMiddleware()

	// эндпоинты покупателя: оформление и просмотр своих заказов
	router.Group(func(r chi.Router) {
		r.Use(jwtMW)
		r.Use(jwtmiddleware.RequireRole(models.RoleCustomer))
		r.Post("/orders", handlers.PlaceOrderHandler(application.Logger, orderService))
		r.Get("/orders", handlers.ListOrdersHandler(application.Logger, orderService))
	})

	// эндпоинты менеджера: управление каталогом и заказами
	router.Group(func(r chi.Router) {
		r.Use(jwtMW)
		r.Use(jwtmiddleware.RequireRole(models.RoleProductManager))
		r.Post("/products/add", handlers.AddProductHandler(application.Logger, productService, maxUploadMB))
		r.Put("/products/{id}", handlers.UpdateProductHandler(application.Logger, productService, maxUploadMB))
		r.Delete("/products/{id}", handlers.DeleteProductHandler(application.Logger, productService))
		r.Get("/orders/all", handlers.ListAllOrdersHandler(application.Logger, orderService))
		r.Patch("/orders/{id}/dispatch", handlers.DispatchOrderHandler(application.Logger, orderService))
		r.Patch("/orders/{id}/cancel", handlers.CancelOrderHandler(application.Logger, orderService))
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.Any("error", err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	stopSign := <-stop
	log.Info("received shutdown signal", slog.String("signal", stopSign.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", slog.Any("error", err))
	}
	log.Info("server gracefully stopped")
}
