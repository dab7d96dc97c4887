package schema

import (
	"fmt"
	"log/slog"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Models lists every table of the portal in dependency order.
func Models() []interface{} {
	return []interface{}{
		&User{},
		&Race{}, &Registration{}, &Comment{},
		&Patient{}, &MedicalCard{}, &Position{}, &Doctor{}, &LaborContract{}, &Schedule{},
		&Office{}, &Visit{}, &Diagnosis{}, &VisitDiagnosis{}, &Service{}, &ServicePrice{},
		&VisitService{}, &Payment{},
		&Car{}, &Owner{}, &Ownership{}, &DriversLicense{},
		&Occupation{}, &Skill{}, &Warrior{}, &SkillOfWarrior{},
	}
}

// Migrate creates the full schema on an empty database. Databases that were
// already initialized only get the migrations that have not been applied yet.
func Migrate(db *gorm.DB) error {
	migration := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID:      "0",
			Migrate: func(*gorm.DB) error { return nil },
		},
	})

	migration.InitSchema(func(txn *gorm.DB) error {
		slog.Info("clean database detected, running full schema initialization")
		return txn.AutoMigrate(Models()...)
	})

	if err := migration.Migrate(); err != nil {
		return fmt.Errorf("error migrating db schema: %w", err)
	}
	return nil
}
