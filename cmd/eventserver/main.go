package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"relations-go/internal/config"
	"relations-go/internal/events"
	"relations-go/internal/handlers/eventserver"
	appKafka "relations-go/internal/kafka"
	"relations-go/internal/websocket"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}
	log.Println("事件服务器配置加载成功。")

	// 2. 初始化 WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()
	log.Println("WebSocket Hub 已启动。")

	// 3. 初始化 WebSocket Handler
	wsHandler := eventserver.NewWebSocketHandler(hub, cfg)

	// 4. 初始化 Kafka 消费者（关系事件 → 在线会话）
	consumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
	if err != nil {
		log.Fatalf("无法创建 Kafka 消费者: %v", err)
	}
	defer consumer.Close()

	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	defer cancelConsumer()

	go func() {
		log.Printf("Kafka 消费者 goroutine 启动，监听 topic: %s", cfg.Kafka.RelationshipEventsTopic)
		topics := []string{cfg.Kafka.RelationshipEventsTopic}
		if err := consumer.Consume(consumerCtx, topics, cfg.Kafka.ConsumerGroup,
			func(ctx context.Context, kafkaMsg *confluentKafka.Message) error {
				var envelope events.Envelope
				if err := json.Unmarshal(kafkaMsg.Value, &envelope); err != nil {
					log.Printf("错误: 无法反序列化关系事件: %v, 原始值: %s", err, string(kafkaMsg.Value))
					return nil // Don't stop the consumer for one bad message
				}
				hub.DeliverEvent(&envelope)
				return nil
			}); err != nil {
			log.Printf("Kafka 消费者错误: %v", err)
		}
		log.Println("Kafka 消费者 goroutine 已停止。")
	}()

	// 5. 配置 HTTP 服务器路由
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Server.WebSocketPath, wsHandler.ServeWS)

	// 6. 启动 HTTP 服务器
	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:           serverAddr,
		Handler:        mux,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Printf("事件服务器启动于 %s, WebSocket 路径: %s", serverAddr, cfg.Server.WebSocketPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("事件服务器启动失败: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("事件服务器准备关闭...")

	cancelConsumer()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("事件服务器关闭失败: %v", err)
	}
	log.Println("事件服务器已优雅关闭。")
}
