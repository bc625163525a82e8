package wallet

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("wallet.service",
	fx.Provide(NewService),
	fx.Invoke(Migrate),
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&WalletTransaction{}, &Balance{})
}
