package client

import (
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestDSN(t *testing.T) {
	dsn := DBConfig{Host: "db", Port: "3306", User: "u", Pass: "p", DBName: "poundcake", Timeout: "5s"}.DSN()
	if !strings.HasPrefix(dsn, "u:p@tcp(db:3306)/poundcake?") || !strings.Contains(dsn, "timeout=5s") {
		t.Errorf("DSN 拼接错误: %s", dsn)
	}
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port := mr.Host(), mr.Port()

	c, err := NewRedisClient(RedisConfig{Host: host, Port: port})
	if err != nil {
		t.Fatalf("连接 redis 失败: %v", err)
	}
	defer c.Close()

	mr.Close()
	if _, err := NewRedisClient(RedisConfig{Host: host, Port: port}); err == nil {
		t.Errorf("redis 不可用时应返回错误")
	}
}
