package database

import (
	"fmt"
	"time"

	"loanbook/internal/config"
	"loanbook/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Init 按配置初始化数据库连接并迁移表结构
// driver 支持 sqlite（内嵌，默认）和 mysql
func Init(cfg *config.DatabaseConfig) *gorm.DB {
	var (
		db  *gorm.DB
		err error
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	switch cfg.Driver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User,
			cfg.Password,
			cfg.Host,
			cfg.Port,
			cfg.Database,
		)
		db, err = gorm.Open(mysql.Open(dsn), gormConfig)
	case "sqlite", "":
		db, err = gorm.Open(sqlite.Open(cfg.Path), gormConfig)
	default:
		logrus.Fatalf("不支持的数据库驱动: %s", cfg.Driver)
	}
	if err != nil {
		logrus.Fatalf("连接数据库失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		logrus.Fatalf("获取底层 DB 失败: %v", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		logrus.Fatalf("自动迁移表结构失败: %v", err)
	}

	logrus.Infof("数据库连接成功 driver=%s", cfg.Driver)
	return db
}

// Migrate 迁移全部表结构（测试复用）
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Order{},
		&model.FinancialData{},
		&model.GroupedData{},
		&model.DailyData{},
		&model.IncomeRecord{},
		&model.ExpenseRecord{},
		&model.OperationLog{},
		&model.OutboxMessage{},
	)
}
