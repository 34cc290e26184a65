package database

import (
	"fmt"
	"log"
	"strings"
	"time"

	"quizwallet/internal/config"
	"quizwallet/internal/model"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open 按配置的驱动建立连接
//
// 【注意】sqlite 不支持行锁，只允许一个连接，让所有写事务串行执行，
// 这样并发扣款在本地开发环境下同样不会读到过期余额
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.User,
			cfg.Password,
			cfg.Host,
			cfg.Port,
			cfg.Database,
		)
		dialector = mysql.Open(dsn)
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			cfg.Host,
			cfg.Port,
			cfg.User,
			cfg.Password,
			cfg.Database,
		)
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logLevel(cfg.LogLevel)),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 DB 失败: %w", err)
	}

	// 连接池配置
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	return db, nil
}

// Migrate 自动迁移表结构
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(model.AllModels()...)
}

// InitDB 初始化数据库连接并迁移，失败直接退出
func InitDB(cfg *config.DatabaseConfig) *gorm.DB {
	db, err := Open(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := Migrate(db); err != nil {
		log.Fatalf("自动迁移表结构失败: %v", err)
	}

	DB = db
	log.Printf("数据库连接成功: driver=%s", cfg.Driver)
	return db
}

// OpenMemory 打开一个独立的内存 sqlite 库并完成迁移，供测试和本地调试使用
func OpenMemory(name string) (*gorm.DB, error) {
	db, err := Open(&config.DatabaseConfig{
		Driver:   "sqlite",
		Path:     fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		LogLevel: "silent",
	})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func logLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
