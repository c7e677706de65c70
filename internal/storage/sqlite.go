package storage

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// InitSQLite 打开 SQLite 数据库, 用于本地开发与测试
//
// SQLite 只允许单写者, 连接池限制为 1 以串行化事务
func InitSQLite(dsn string, debug bool) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(debug))
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 失败: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// InitSQLiteMemory 打开一个独立命名的内存库
func InitSQLiteMemory(name string) (*gorm.DB, error) {
	db, err := InitSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), false)
	if err != nil {
		return nil, err
	}
	db.Logger = db.Logger.LogMode(gormlogger.Silent)
	return db, nil
}
