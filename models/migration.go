package models

import "gorm.io/gorm"

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&WorkCenter{}, &Product{}, &AppUser{},
		&ProductionDay{}, &HourlyRecord{},
		&DowntimeReason{}, &HourlyDowntime{},
		&DeviationEvent{}, &EscalationLog{},
	)
}
