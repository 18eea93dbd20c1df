package audit

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	appconfig "github.com/BaSui01/expoflow/config"
	"github.com/BaSui01/expoflow/internal/database"
)

// NewStoreFromConfig 按配置驱动构建落盘后端。
// driver=mongo 直连 MongoDB，其余走 GORM 关系型后端。
func NewStoreFromConfig(ctx context.Context, cfg appconfig.DatabaseConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case "mongo":
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("mongo_uri is required for mongo driver")
		}
		return NewMongoStore(ctx, cfg.MongoURI, cfg.Name)
	case "sqlite", "mysql", "postgres":
		pool, err := database.Open(cfg, logger)
		if err != nil {
			return nil, err
		}
		// sqlite 本地开发自动建表，其余驱动由迁移管理
		return NewGormStore(pool, cfg.Driver == "sqlite")
	default:
		return nil, fmt.Errorf("unsupported audit database driver: %q", cfg.Driver)
	}
}
