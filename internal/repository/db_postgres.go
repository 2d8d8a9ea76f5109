// Package repository contains the repository layer for the Reference Data API
package repository

import (
	"fmt"

	"github.com/finref/refdataapi/internal/config"
	"github.com/finref/refdataapi/internal/models"
	"github.com/finref/refdataapi/pkg/utils/zaplogger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SchemaName is the Postgres schema holding all reference-data tables
var SchemaName = "refdata"

// ConnectPostgres connects to a Postgres database and returns a GORM database object
func ConnectPostgres(cfg *config.Config) (*gorm.DB, error) {
	zaplogger.Info(config.SingleLine)
	zaplogger.Info("Initializing Postgres")
	zaplogger.Info(config.SingleLine)

	// Set up GORM logger
	var logLevel logger.LogLevel
	switch cfg.PostgresLogLevel {
	case "silent":
		logLevel = logger.Silent
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	default:
		logLevel = logger.Info
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	// Open database connection
	postgresDSN := cfg.PostgresDsn + " search_path=" + SchemaName + ",public"
	db, err := gorm.Open(postgres.Open(postgresDSN), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %v", err)
	}

	zaplogger.Info("  * connected")

	// Create the schema if it doesn't exist
	createSchemaSql := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", SchemaName)
	if err := db.Exec(createSchemaSql).Error; err != nil {
		return nil, fmt.Errorf("failed to create schema: %v", err)
	}
	zaplogger.Info("  * migrating schema: \"" + SchemaName + "\"")

	// AutoMigrate will create tables, constraints and indexes
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %v", err)
	}

	return db, nil
}

// AutoMigrate creates all reference-data tables. Parents are migrated before
// the detail tables that reference them so cascade constraints resolve.
func AutoMigrate(db *gorm.DB) error {
	tables := []struct {
		name  string
		model interface{}
	}{
		{models.LegalEntitiesTableName, &models.LegalEntity{}},
		{models.EntityAddressesTableName, &models.EntityAddress{}},
		{models.EntityRegistrationsTableName, &models.EntityRegistration{}},
		{models.EntityRelationshipsTableName, &models.EntityRelationship{}},
		{models.RelationshipExceptionsTableName, &models.RelationshipException{}},
		{models.InstrumentsTableName, &models.Instrument{}},
		{models.EquityDetailsTableName, &models.EquityDetail{}},
		{models.DebtDetailsTableName, &models.DebtDetail{}},
		{models.FutureDetailsTableName, &models.FutureDetail{}},
		{models.IdentifierMappingsTableName, &models.IdentifierMapping{}},
		{models.TransparencyCalculationsTableName, &models.TransparencyCalculation{}},
		{models.EquityTransparencyTableName, &models.EquityTransparencyDetail{}},
		{models.NonEquityTransparencyTableName, &models.NonEquityTransparencyDetail{}},
		{models.DebtTransparencyTableName, &models.DebtTransparencyDetail{}},
		{models.FutureTransparencyTableName, &models.FutureTransparencyDetail{}},
	}

	zaplogger.Info("  * migrating tables")
	for _, table := range tables {
		err := db.AutoMigrate(table.model)
		if err != nil {
			return fmt.Errorf("failed to auto migrate table: %s, err:%v", table.name, err)
		}
		zaplogger.Info("    - \"" + table.name + "\"")
	}

	return nil
}
