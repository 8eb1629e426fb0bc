// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/wfunc/soundbeats/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return NewGormStore(db)
}

// NewGormStore wraps an open gorm connection and migrates the document table.
func NewGormStore(db *gorm.DB) (*GormPostgreSQL, error) {
	if err := db.AutoMigrate(&models.GormDocument{}); err != nil {
		return nil, errors.Wrap(err, "migrate documents")
	}
	return &GormPostgreSQL{db: db}, nil
}

func (p *GormPostgreSQL) Load(ctx context.Context, key string) (*Document, error) {
	var row models.GormDocument
	if err := p.db.WithContext(ctx).Where("key = ?", key).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, errors.Wrapf(err, "load %s", key)
	}

	return &Document{
		Key:       row.Key,
		Version:   row.Version,
		Data:      []byte(row.Data),
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// Save 使用UPSERT操作
func (p *GormPostgreSQL) Save(ctx context.Context, doc *Document) error {
	row := models.GormDocument{
		Key:     doc.Key,
		Version: doc.Version,
		Data:    string(doc.Data),
	}

	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"version", "data", "updated_at"}),
	}).Create(&row).Error
	return errors.Wrapf(err, "save %s", doc.Key)
}

func (p *GormPostgreSQL) Delete(ctx context.Context, key string) error {
	err := p.db.WithContext(ctx).Where("key = ?", key).Delete(&models.GormDocument{}).Error
	return errors.Wrapf(err, "delete %s", key)
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
