package database

import (
	"fmt"
	"log"

	"github.com/ROFL1ST/kuis-imk-sub000/config"
	"github.com/ROFL1ST/kuis-imk-sub000/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// Connect establishes a connection to the database
func Connect() {
	var err error

	host := config.Getenv("DB_HOST", "localhost")
	user := config.Getenv("DB_USER", "postgres")
	password := config.Getenv("DB_PASS", "postgres")
	dbname := config.Getenv("DB_NAME", "duelapp")
	port := config.Getenv("DB_PORT", "5432")

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		host, user, password, dbname, port)

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	log.Println("Database connection established")
}

// Migrate automatically migrates the database schema
func Migrate() {
	DB.AutoMigrate(&models.User{}, &models.Quiz{}, &models.Challenge{}, &models.Participant{})
	log.Println("Database migration completed")
}
