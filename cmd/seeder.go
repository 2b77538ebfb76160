package cmd

import (
	"log"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	drivermodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/driver"
	vehiclemodel "github.com/frahmantamala/vehicle-rental/internal/core/datamodel/vehicle"
)

func int64Ptr(v int64) *int64 { return &v }

var seedVehicles = []vehiclemodel.Vehicle{
	{Name: "Toyota Avanza", PlateNumber: "B 1234 AVZ", DailyRate: 5000, HourlyRate: int64Ptr(800), WeeklyRate: int64Ptr(30000), Currency: "USD"},
	{Name: "Honda Brio", PlateNumber: "B 2345 BRI", DailyRate: 4000, HourlyRate: int64Ptr(600), Currency: "USD"},
	{Name: "Mitsubishi Xpander", PlateNumber: "B 3456 XPN", DailyRate: 6500, WeeklyRate: int64Ptr(40000), MonthlyRate: int64Ptr(150000), Currency: "USD"},
	{Name: "Toyota Hiace", PlateNumber: "B 4567 HIA", DailyRate: 12000, Currency: "USD"},
}

var seedDrivers = []drivermodel.Driver{
	{Name: "Budi Santoso", Phone: "+62811000111"},
	{Name: "Sari Wulandari", Phone: "+62811000222"},
	{Name: "Agus Pratama", Phone: "+62811000333"},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample vehicles and drivers for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlDB.Close()

		db, err := initGorm(sqlDB)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if clearData {
			if err := db.Exec("TRUNCATE payments, bookings, drivers, vehicles RESTART IDENTITY CASCADE").Error; err != nil {
				log.Fatalf("failed to clear data: %v", err)
			}
			log.Println("cleared existing data")
		}

		if err := seed(db); err != nil {
			log.Fatalf("failed to seed: %v", err)
		}
		log.Printf("seeded %d vehicles and %d drivers", len(seedVehicles), len(seedDrivers))
	},
}

// seed is idempotent: vehicles are keyed by plate number and drivers by
// phone.
func seed(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, v := range seedVehicles {
			v.IsAvailable = true
			v.Status = vehiclemodel.StatusActive
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "plate_number"}},
				DoNothing: true,
			}).Create(&v).Error
			if err != nil {
				return err
			}
		}

		for _, d := range seedDrivers {
			var count int64
			if err := tx.Model(&drivermodel.Driver{}).Where("phone = ?", d.Phone).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			d.Status = drivermodel.StatusAvailable
			if err := tx.Create(&d).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
