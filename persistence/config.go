package persistence

import (
	"database/sql"
	"errors"
	"os"
	"strings"
)

type DatabaseConfig struct {
	DriverType string
	DriverArgs string
}

// ParseDatabaseConfigFromEnv DATABASE_URL format: mysql://root:root@(127.0.0.1:3306)/leadflow?charset=utf8mb4&parseTime=True&loc=Local
func ParseDatabaseConfigFromEnv() (*DatabaseConfig, error) {
	databaseURL := os.ExpandEnv(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		return nil, errors.New("environment variable DATABASE_URL is not set")
	}
	idx := strings.Index(databaseURL, "://")
	if idx <= 0 || idx+3 >= len(databaseURL) {
		return nil, errors.New("invalid DATABASE_URL: " + databaseURL)
	}
	return &DatabaseConfig{DriverType: databaseURL[0:idx], DriverArgs: databaseURL[idx+3:]}, nil
}

// PrepareMysqlDatabase creates the target database when absent. The driver
// args must carry a database name.
func PrepareMysqlDatabase(driverArgs string) error {
	argsIdx := strings.Index(driverArgs, "?")
	args := driverArgs
	if argsIdx >= 0 {
		args = driverArgs[0:argsIdx]
	}
	dbNameIdx := strings.LastIndex(args, "/")
	if dbNameIdx < 0 || dbNameIdx+1 >= len(args) {
		return errors.New("database name is not found in driver args")
	}
	databaseName := args[dbNameIdx+1:]

	db, err := sql.Open("mysql", args[0:dbNameIdx+1]+"?timeout=5s")
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec("CREATE DATABASE IF NOT EXISTS " + databaseName +
		" DEFAULT CHARACTER SET utf8mb4 DEFAULT COLLATE utf8mb4_bin")
	return err
}
