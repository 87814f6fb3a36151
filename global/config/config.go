package config

import (
	"os"
	"strconv"
	"time"

	"RentChat/resilience"
	"RentChat/store"
	"RentChat/tools/errs"
)

// AppConfig 进程配置。默认值可本地直接起，环境变量按需覆盖。
type AppConfig struct {
	Port   int
	NodeID int64 // 雪花节点号

	// AllowInsecureUserParam 本地联调开关：无 token 时接受 ?userId=。
	// 生产必须为 false。
	AllowInsecureUserParam bool

	JWTSecret string
	JWTTTL    time.Duration

	Mongo store.MongoConfig

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NatsServers []string

	OTPCodeTTL  time.Duration
	OTPCooldown time.Duration

	// SendRetry 客户端 message.send 的重试预算。
	SendRetry resilience.Policy
	// OTPRetry 验证码下发（NATS 通道）的重试预算。
	OTPRetry resilience.Policy

	Breakers        map[string]resilience.BreakerConf
	FallbackBreaker resilience.BreakerConf
}

var Global = AppConfig{
	Port:      8080,
	NodeID:    1,
	JWTSecret: "dev-secret-change-me",
	JWTTTL:    24 * time.Hour,
	Mongo: store.MongoConfig{
		Uri:         "mongodb://localhost:27017",
		Database:    "rentchat",
		MaxPoolSize: 100,
		MaxRetry:    3,
	},
	RedisAddr:   "localhost:6379",
	NatsServers: []string{"nats://localhost:4222"},
	OTPCodeTTL:  5 * time.Minute,
	OTPCooldown: time.Minute,
	SendRetry: resilience.Policy{
		MaxRetries:     3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       8 * time.Second,
		BackoffFactor:  2,
		RetryableKinds: []errs.Kind{errs.KindNetwork, errs.KindTimeout, errs.KindServer},
	},
	OTPRetry: resilience.Policy{
		MaxRetries:     2,
		BaseDelay:      time.Second,
		MaxDelay:       10 * time.Second,
		BackoffFactor:  2,
		RetryableKinds: []errs.Kind{errs.KindNetwork, errs.KindTimeout},
	},
	Breakers: map[string]resilience.BreakerConf{
		resilience.ClassMessageSend: {FailureThreshold: 5, ResetTimeout: 30 * time.Second},
		resilience.ClassOTPSend:     {FailureThreshold: 3, ResetTimeout: time.Minute},
		resilience.ClassOTPVerify:   {FailureThreshold: 5, ResetTimeout: 30 * time.Second},
		// 敏感操作阈值更低，出问题尽早停
		resilience.ClassPasswordChange: {FailureThreshold: 2, ResetTimeout: time.Minute},
		resilience.ClassPhoneUpdate:    {FailureThreshold: 2, ResetTimeout: time.Minute},
		resilience.ClassAccountDelete:  {FailureThreshold: 1, ResetTimeout: 2 * time.Minute},
	},
	FallbackBreaker: resilience.BreakerConf{FailureThreshold: 5, ResetTimeout: 30 * time.Second},
}

// Load 环境变量覆盖默认值，进程启动时调用一次。
func Load() {
	Global.Port = envInt("PORT", Global.Port)
	Global.NodeID = int64(envInt("NODE_ID", int(Global.NodeID)))
	Global.AllowInsecureUserParam = envBool("ALLOW_INSECURE_USER_PARAM", Global.AllowInsecureUserParam)
	Global.JWTSecret = envStr("JWT_SECRET", Global.JWTSecret)
	Global.Mongo.Uri = envStr("MONGO_URI", Global.Mongo.Uri)
	Global.Mongo.Database = envStr("MONGO_DB", Global.Mongo.Database)
	Global.Mongo.Username = envStr("MONGO_USER", Global.Mongo.Username)
	Global.Mongo.Password = envStr("MONGO_PASSWORD", Global.Mongo.Password)
	Global.RedisAddr = envStr("REDIS_ADDR", Global.RedisAddr)
	Global.RedisPassword = envStr("REDIS_PASSWORD", Global.RedisPassword)
	Global.RedisDB = envInt("REDIS_DB", Global.RedisDB)
	if v := os.Getenv("NATS_URL"); v != "" {
		Global.NatsServers = []string{v}
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}
