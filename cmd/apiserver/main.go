package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	redisDriver "github.com/redis/go-redis/v9"

	"relations-go/internal/captcha"
	"relations-go/internal/config"
	"relations-go/internal/events"
	"relations-go/internal/handlers/apiserver"
	"relations-go/internal/ipreputation"
	appKafka "relations-go/internal/kafka"
	"relations-go/internal/middleware"
	"relations-go/internal/services"
	"relations-go/internal/storage"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}
	log.Println("API 服务器配置加载成功。")

	// 2. 初始化数据库连接
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	log.Println("API 服务器数据库连接成功。")

	if err := storage.AutoMigrateTables(db); err != nil {
		log.Fatalf("数据库表迁移失败: %v", err)
	}

	// 3. 初始化 Redis Client（IP 信誉结果缓存）
	redisClient := redisDriver.NewClient(&redisDriver.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("无法连接到 Redis: %v", err)
	}
	log.Println("成功连接到 Redis")

	// 4. 初始化 Repositories
	userRepo := storage.NewGormUserRepository(db)
	relRepo := storage.NewGormRelationshipRepository(db)
	inviteRepo := storage.NewGormInviteRepository(db)

	// 5. 初始化 Kafka Producer 与事件发布器
	kfkProducer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatalf("无法创建 Kafka 生产者: %v", err)
	}
	defer kfkProducer.Close()
	publisher := events.NewKafkaPublisher(kfkProducer, cfg.Kafka.RelationshipEventsTopic)
	log.Println("Kafka 生产者初始化成功 (API Server)。")

	// 6. 初始化外部协作方
	captchaVerifier := captcha.NewHTTPVerifier(cfg.Captcha)
	ipClassifier := ipreputation.NewCachedClassifier(
		ipreputation.NewHTTPClassifier(cfg.Security.IPReputation),
		redisClient,
		cfg.Security.IPReputation.CacheTTL,
	)

	// 7. 初始化 Services
	inviteService := services.NewInviteService(inviteRepo)
	relationshipService := services.NewRelationshipService(userRepo, relRepo, publisher, cfg.Relationships)
	registrationService := services.NewRegistrationService(userRepo, inviteService, captchaVerifier, ipClassifier, cfg)

	// 8. 初始化 Handlers
	authHandler := apiserver.NewAuthHandler(registrationService)
	relationshipHandler := apiserver.NewRelationshipHandler(relationshipService)

	// 9. 设置 HTTP 路由
	r := mux.NewRouter()

	// 9.1 认证路由
	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/register", authHandler.Register).Methods(http.MethodPost)

	// 9.2 API 子路由 (需要认证)
	authMW := middleware.AuthMiddleware(cfg.Auth.JWTSecretKey)
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(authMW)

	// 关系路由
	apiRouter.HandleFunc("/relationships", relationshipHandler.ListRelationshipsHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/relationships", relationshipHandler.RequestByHandleHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/relationships/{userID:[0-9]+}", relationshipHandler.RequestOrAcceptHandler).Methods(http.MethodPut)
	apiRouter.HandleFunc("/relationships/{userID:[0-9]+}", relationshipHandler.RemoveHandler).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/relationships/{userID:[0-9]+}/block", relationshipHandler.BlockHandler).Methods(http.MethodPut)

	// 10. CORS
	corsCfg := cfg.APIServer.CORS
	corsHandler := handlers.CORS(
		handlers.AllowedOrigins(corsCfg.AllowedOrigins),
		handlers.AllowedMethods(corsCfg.AllowedMethods),
		handlers.AllowedHeaders(corsCfg.AllowedHeaders),
		handlers.ExposedHeaders(corsCfg.ExposedHeaders),
		handlers.AllowCredentials(),
		handlers.MaxAge(corsCfg.MaxAge),
	)(r)

	// 11. 启动 HTTP 服务器
	serverAddr := fmt.Sprintf("%s:%s", cfg.APIServer.Host, cfg.APIServer.Port)
	httpServer := &http.Server{Addr: serverAddr, Handler: corsHandler}

	go func() {
		log.Printf("API 服务器启动于 %s", serverAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API 服务器启动失败: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("API 服务器准备关闭...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("API 服务器关闭失败: %v", err)
	}
	log.Println("API 服务器已优雅关闭。")
}
