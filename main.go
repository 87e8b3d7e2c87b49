package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeromicro/go-zero/core/logc"
	"golang.org/x/sync/errgroup"

	"poundcake/config"
	"poundcake/initialization"
	"poundcake/internal/global"
)

var Version string

func main() {
	global.Version = Version

	basic := initialization.InitBasic()
	defer func() {
		if err := basic.Close(); err != nil {
			logc.Errorf(context.Background(), "释放连接失败: %s", err.Error())
		}
	}()

	c, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	role := basic.Ctx.Config.Server.Role
	g, gc := errgroup.WithContext(c)

	if role == config.RoleApi || role == config.RoleAll {
		g.Go(func() error {
			return initialization.InitRoute(gc, basic.Ctx)
		})
	}
	if role == config.RoleWorker || role == config.RoleAll {
		dispatcher := initialization.NewDispatcher(basic.Ctx)
		g.Go(func() error {
			return dispatcher.Run(gc)
		})
	}

	logc.Infof(c, "poundcake %s 启动, role: %s", Version, role)
	if err := g.Wait(); err != nil {
		logc.Errorf(context.Background(), "退出: %s", err.Error())
		_ = basic.Close()
		os.Exit(1)
	}
	logc.Info(context.Background(), "已退出")
}
