package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/sapls/staff-shift/backend/internal/config"
	"github.com/sapls/staff-shift/backend/internal/repository"
	"github.com/sapls/staff-shift/backend/internal/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	var op int
	var n int

	flag.IntVar(&op, "op", 0, "要执行的操作 (1: 插入随机员工, 2: 插入随机班次)")
	flag.IntVar(&n, "n", 5, "要插入的记录数量")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 读取配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 创建数据库连接池
	dbpool, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		logger.Error("无法创建数据库连接池", "error", err)
		return
	}
	defer dbpool.Close()

	dbpool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbpool.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbpool.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	// sql.Open 只是创建数据库连接池对象，并不会立即连接到数据库，因此需要显式地 ping 一下
	if err := dbpool.PingContext(ctx); err != nil {
		logger.Error("无法连接到数据库", "error", err)
		return
	}

	// 创建 repository
	repo := repository.NewRepository(cfg, dbpool)

	if n <= 0 {
		slog.Error("请输入合法的记录数量")
		return
	}

	// 执行操作
	switch op {
	case 0:
		slog.Error("未指定操作")
	case 1:
		cnt := 0
		for i := 0; i < n; i++ {
			user, err := utils.GenerateRandomStaff(cfg.Seed.User.Password, cfg.Email.UserDomain)
			if err != nil {
				slog.Error("无法生成随机员工", slog.String("error", err.Error()))
				continue
			}

			if err := repo.CreateUser(user); err != nil {
				slog.Error("无法插入员工", slog.String("error", err.Error()))
				continue
			}

			cnt++
		}

		slog.Info("插入员工成功", slog.Int("count", cnt))
	case 2:
		// 先获取所有员工
		staff, err := repo.GetAllStaff()
		if err != nil {
			slog.Error("无法获取所有员工", slog.String("error", err.Error()))
			return
		}
		if len(staff) == 0 {
			slog.Error("没有可以分配的员工，请先执行 -op 1")
			return
		}

		staffIDs := make([]string, len(staff))
		for i, s := range staff {
			staffIDs[i] = s.ID
		}

		cnt := 0
		for i := 0; i < n; i++ {
			shift := utils.GenerateRandomStaffShift(staffIDs, time.Now())
			if errs := utils.ValidateStaffShift(shift); len(errs) > 0 {
				slog.Error("生成的班次无效", "errors", errs)
				continue
			}

			if err := repo.CreateStaffShift(shift); err != nil {
				slog.Error("无法插入班次", slog.String("error", err.Error()))
				continue
			}

			cnt++
		}

		slog.Info("插入班次成功", slog.Int("count", cnt))
	default:
		slog.Error("指定的操作非法")
	}
}
