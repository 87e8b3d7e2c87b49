package client

import (
	"context"
	"net"

	"github.com/go-redis/redis"
	"github.com/zeromicro/go-zero/core/logc"
)

type RedisConfig struct {
	Host string
	Port string
	Pass string
	DB   int
}

func NewRedisClient(config RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(config.Host, config.Port),
		Password: config.Pass,
		DB:       config.DB,
	})

	if err := client.Ping().Err(); err != nil {
		logc.Errorf(context.Background(), "failed to connect redis: %s", err.Error())
		_ = client.Close()
		return nil, err
	}

	return client, nil
}
