package order

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("order.service",
	fx.Provide(NewService),
	fx.Invoke(Migrate),
)

// Worker adds the background task surface on top of the service.
var Worker = fx.Module("order.worker",
	fx.Invoke(RegisterTaskHandlers),
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Template{}, &Order{}, &BrandQualification{})
}
