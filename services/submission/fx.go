package submission

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("submission.service",
	fx.Provide(NewService),
	fx.Invoke(Migrate),
)

// Worker adds the background task surface on top of the service.
var Worker = fx.Module("submission.worker",
	fx.Invoke(RegisterTaskHandlers),
	fx.Invoke(RunExpiryScheduler),
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Submission{}, &Proof{})
}
