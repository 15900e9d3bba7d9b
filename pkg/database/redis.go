package database

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"legal-rag-go/pkg/log"
)

// RDB 承载会话历史、embedding 缓存和 Kafka 任务的重试计数。
var RDB *redis.Client

func InitRedis(addr, password string, db int) {
	RDB = redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Fatal("连接 Redis 失败", err)
	}
	log.Infof("Redis 连接成功: %s (db=%d)", addr, db)
}
