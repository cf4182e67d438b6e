package main

import (
	"cobranca/config"
	"cobranca/controllers"
	"cobranca/database"
	"cobranca/middleware"
	"cobranca/models"
	"cobranca/services"
	"cobranca/utils"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// application связывает сервисы и контроллеры
type application struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *utils.Metrics

	users      *services.UserService
	collection *services.CollectionService
	dashboard  *services.DashboardService
	scheduler  *services.SchedulerService
	hub        *controllers.DashboardHub

	auth         *controllers.AuthController
	collectionC  *controllers.CollectionController
	dashboardC   *controllers.DashboardController
	rosterC      *controllers.RosterController
	legalC       *controllers.LegalController
	health       *controllers.HealthController
	signInLimits *utils.RateLimiter
}

func newApplication(cfg *config.Config, db *database.Database, feed database.ChangeFeed, cache database.Cache,
	logger *zap.Logger, metrics *utils.Metrics, checks map[string]controllers.Pinger) *application {
	loc := cfg.Location()

	// Сервис email отвечает за уведомления финансового отдела
	emailService := services.NewEmailService(cfg)

	collection := services.NewCollectionService(db, feed, services.SettingsFromConfig(cfg), logger, metrics).
		WithNotifier(emailService)
	if cfg.WhatsApp.Enabled {
		collection.WithTemplateSender(services.NewWhatsAppSender(cfg, logger))
	}

	dashboard := services.NewDashboardService(db, feed, loc, logger)
	roster := services.NewRosterService(db, cache, feed, cfg.Roster.CacheTTL, logger)
	legal := services.NewLegalService(db, feed, loc, logger)
	users := services.NewUserService(db, cfg.JWT.SecretKey, time.Duration(cfg.JWT.ExpiresIn)*time.Hour)
	hub := controllers.NewDashboardHub(dashboard, logger)

	return &application{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,

		users:      users,
		collection: collection,
		dashboard:  dashboard,
		scheduler:  services.NewSchedulerService(collection, cfg.Collection.SweepInterval, logger),
		hub:        hub,

		auth:         controllers.NewAuthController(users),
		collectionC:  controllers.NewCollectionController(collection),
		dashboardC:   controllers.NewDashboardController(dashboard, hub, loc),
		rosterC:      controllers.NewRosterController(roster),
		legalC:       controllers.NewLegalController(legal),
		health:       controllers.NewHealthController(metrics, checks),
		signInLimits: utils.NewRateLimiter(cfg.RateLimit.SignInAttempts, cfg.RateLimit.Window),
	}
}

// routes собирает маршруты
func (a *application) routes() http.Handler {
	// ключ группы может быть email или именем, в том числе с "/"
	router := mux.NewRouter().UseEncodedPath()

	// Публичные маршруты
	router.HandleFunc("/health", a.health.Health).Methods("GET")
	router.Handle("/api/auth/signIn",
		middleware.RateLimit(a.signInLimits, a.cfg.RateLimit.SignInAttempts)(http.HandlerFunc(a.auth.SignIn)),
	).Methods("POST")

	// Защищенные маршруты
	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(middleware.AuthMiddleware([]byte(a.cfg.JWT.SecretKey)))
	protected.Use(middleware.LoggingMiddleware(a.logger, a.metrics))

	protected.HandleFunc("/me", a.auth.Me).Methods("GET")
	// Сотрудников заводит только администратор
	protected.Handle("/auth/signUp", middleware.RequireRole(models.RoleAdmin)(http.HandlerFunc(a.auth.SignUp))).Methods("POST")

	// Рабочий список 3ª cobrança
	protected.HandleFunc("/collection/load", a.collectionC.Load).Methods("POST")
	protected.HandleFunc("/collection/records", a.collectionC.Records).Methods("GET")
	protected.HandleFunc("/collection/groups", a.collectionC.Groups).Methods("GET")
	protected.HandleFunc("/collection/groups/{key}/tag", a.collectionC.TagGroup).Methods("POST")
	protected.HandleFunc("/collection/records/{id}/commands", a.collectionC.Command).Methods("POST")
	protected.HandleFunc("/collection/import", a.collectionC.Import).Methods("POST")
	protected.HandleFunc("/collection/export/active", a.collectionC.ExportActive).Methods("GET")
	protected.HandleFunc("/collection/payments", a.collectionC.Payments).Methods("GET")
	protected.HandleFunc("/collection/payments/report", a.collectionC.PaymentsReport).Methods("GET")

	// Дашборд
	protected.HandleFunc("/dashboard", a.dashboardC.Get).Methods("GET")
	protected.HandleFunc("/dashboard/ws", a.dashboardC.Stream).Methods("GET")

	// График дежурств
	const month = "/roster/{year:[0-9]{4}}/{month:[0-9]{1,2}}"
	protected.HandleFunc("/roster/rows", a.rosterC.Rows).Methods("GET")
	protected.HandleFunc("/roster/staff", a.rosterC.Staff).Methods("GET")
	protected.HandleFunc(month, a.rosterC.GetMonth).Methods("GET")
	protected.HandleFunc(month, a.rosterC.CreateMonth).Methods("POST")
	protected.HandleFunc(month+"/cells", a.rosterC.SaveCell).Methods("PUT")
	protected.HandleFunc(month+"/assign", a.rosterC.AssignStaff).Methods("POST")
	protected.HandleFunc(month+"/standard", a.rosterC.FillStandard).Methods("POST")

	// Юридический календарь
	protected.HandleFunc("/legal/appointments", a.legalC.CreateAppointment).Methods("POST")
	protected.HandleFunc("/legal/calendar/{year:[0-9]{4}}/{month:[0-9]{1,2}}", a.legalC.Calendar).Methods("GET")

	// Только для администраторов
	admin := protected.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	admin.HandleFunc("/metrics", a.health.Metrics).Methods("GET")
	admin.HandleFunc("/staff", a.rosterC.AddStaff).Methods("POST")

	var handler http.Handler = router
	handler = middleware.CORSMiddleware(handler)
	handler = middleware.Recovery(a.logger, a.metrics)(handler)
	return handler
}

// start загружает рабочий список и запускает фоновые процессы до отмены ctx
func (a *application) start(ctx context.Context) {
	if created, err := a.users.EnsureAdmin(ctx, a.cfg.Admin.Email, a.cfg.Admin.Password); err != nil {
		a.logger.Error("admin bootstrap failed", zap.Error(err))
	} else if created {
		a.logger.Info("admin user created", zap.String("email", a.cfg.Admin.Email))
	}

	if _, err := a.collection.Load(ctx); err != nil {
		a.logger.Warn("initial collection load failed", zap.Error(err))
	}

	a.scheduler.Start(ctx)
	a.logger.Info("tag expiry scheduler started", zap.Duration("interval", a.cfg.Collection.SweepInterval))

	if err := a.dashboard.Start(ctx); err != nil {
		a.logger.Error("dashboard start failed", zap.Error(err))
	}
	go a.hub.Run(ctx)
}

// wait дожидается фоновых задач после отмены
func (a *application) wait() {
	a.dashboard.Stop()
	a.scheduler.Wait()
	a.collection.Wait()
}

// initRealtime выбирает ленту изменений и кэш: Redis, если он доступен, иначе память процесса
func initRealtime(ctx context.Context, cfg *config.Config, logger *zap.Logger) (database.ChangeFeed, database.Cache, *redis.Client) {
	if !cfg.Redis.Enabled {
		logger.Info("redis disabled, using in-memory change feed")
		return database.NewMemoryChangeFeed(), database.NewMemoryCache(), nil
	}

	client := database.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-memory change feed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		client.Close()
		return database.NewMemoryChangeFeed(), database.NewMemoryCache(), nil
	}

	logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	return database.NewRedisChangeFeed(client, logger), database.NewRedisCache(client), client
}

func main() {
	// Инициализируем конфигурацию
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Log.Level, cfg.Log.Format, "cobranca")
	if err != nil {
		log.Fatalf("Ошибка создания логгера: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Инициализируем подключение к базе данных
	db, err := database.NewDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	feed, cache, redisClient := initRealtime(ctx, cfg, logger)

	checks := map[string]controllers.Pinger{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.GetDB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		defer redisClient.Close()
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	app := newApplication(cfg, db, feed, cache, logger, utils.GetMetrics(), checks)
	app.start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           app.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	app.wait()
}
