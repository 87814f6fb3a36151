package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"RentChat/global/config"
	"RentChat/logger"
	"RentChat/middleware"
	"RentChat/resilience"
	"RentChat/service/account"
	"RentChat/service/chat"
	"RentChat/service/chat/handlers"
	"RentChat/service/delivery"
	"RentChat/service/notify"
	"RentChat/service/otp"
	"RentChat/service/presence"
	"RentChat/store"
	"RentChat/tools/ids"
	"RentChat/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	config.Load()
	cfg := config.Global
	ids.SetNodeID(cfg.NodeID)

	st := buildStore(cfg)
	breakers := resilience.NewRegistry(cfg.Breakers, cfg.FallbackBreaker)

	rdb := buildRedis(cfg)
	var pres chat.Presence
	var codes otp.CodeStore = otp.NewMemoryStore()
	if rdb != nil {
		pres = presence.New(rdb, 5*time.Minute)
		codes = otp.NewRedisStore(rdb)
	}

	sender := buildSender(cfg)
	otpSvc := otp.NewService(otp.Conf{
		CodeTTL:  cfg.OTPCodeTTL,
		Cooldown: cfg.OTPCooldown,
		Retry:    cfg.OTPRetry,
	}, codes, sender, breakers)

	rooms := chat.NewRoomTable()
	unread := delivery.NewAggregator(st, rooms)
	pipeline := delivery.NewPipeline(st, rooms, unread)
	typing := delivery.NewSignaler(rooms)

	jwtOpts := security.DefaultOptions([]byte(cfg.JWTSecret))
	jwtOpts.TTL = cfg.JWTTTL

	disp := chat.NewDispatcher()
	server := chat.NewServer(chat.Conf{
		JWT:                    jwtOpts,
		AllowInsecureUserParam: cfg.AllowInsecureUserParam,
	}, st, rooms, disp, pipeline, unread, typing, breakers, pres)
	handlers.RegisterAll(disp)

	accountSvc := account.NewService(st, otpSvc, breakers, sender,
		func() int64 { return time.Now().UnixMilli() })

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLog())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })
	server.RegisterRoutes(r)
	authed := r.Group("/", middleware.Auth(jwtOpts, st))
	account.NewHandler(accountSvc).RegisterRoutes(authed)

	addr := ":" + strconv.Itoa(cfg.Port)
	logger.Infof("[main] listening on %s insecureUserParam=%v", addr, cfg.AllowInsecureUserParam)
	if err := r.Run(addr); err != nil {
		logger.Errorf("[main] server exited: %v", err)
		os.Exit(1)
	}
}

// buildStore STORE=memory 走内存实现（本地联调），默认 Mongo。
func buildStore(cfg config.AppConfig) store.Store {
	if os.Getenv("STORE") == "memory" {
		logger.Warnf("[main] using in-memory store, data is volatile")
		return store.NewMemory()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	st, err := store.NewMongo(ctx, &cfg.Mongo)
	if err != nil {
		logger.Errorf("[main] mongo connect: %v", err)
		os.Exit(1)
	}
	return st
}

// buildRedis 连不上只降级告警：presence 缺失不影响收发消息，
// OTP 退回进程内存储。
func buildRedis(cfg config.AppConfig) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warnf("[main] redis unavailable, presence disabled: %v", err)
		return nil
	}
	return rdb
}

// buildSender NATS 不可用时回落到日志 sender，验证码会打进日志，
// 仅限本地联调。
func buildSender(cfg config.AppConfig) otp.Sender {
	pub, err := notify.NewPublisher(notify.Config{Servers: cfg.NatsServers})
	if err != nil {
		logger.Warnf("[main] nats unavailable, events go to log only: %v", err)
		return logSender{}
	}
	return pub
}

type logSender struct{}

func (logSender) Publish(subject string, v any) error {
	logger.Infof("[events] %s %+v", subject, v)
	return nil
}

