package verify

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/restoreops/rds-restore/internal/config"
)

// Open connects to the restored instance endpoint using the configured
// credentials. The password comes from the environment so it never lands in
// the config file.
func Open(endpoint string, port int32, cfg config.Connect) (*sql.DB, error) {
	password, ok := os.LookupEnv(cfg.PasswordEnv)
	if !ok {
		return nil, fmt.Errorf("database password environment variable %s not set", cfg.PasswordEnv)
	}

	if cfg.Port != 0 {
		port = int32(cfg.Port)
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=require connect_timeout=10",
		endpoint, port, cfg.User, password, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection to %s: %w", endpoint, err)
	}
	return db, nil
}

// ConnectChecker verifies the restored instance accepts connections.
type ConnectChecker struct{}

func NewConnectChecker() *ConnectChecker {
	return &ConnectChecker{}
}

func (c *ConnectChecker) Check(ctx context.Context, db *sql.DB) CheckResult {
	result := CheckResult{
		Name:  "instance_reachable",
		Level: LevelCritical,
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	if err := db.PingContext(ctx); err != nil {
		result.Passed = false
		result.Message = fmt.Sprintf("Connection failed: %v", err)
		return result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("Connected in %s", time.Since(start).Round(time.Millisecond))
	return result
}

// TableCountChecker verifies the restored database contains at least the
// expected number of user tables, a cheap signal that the snapshot's data
// actually came across.
type TableCountChecker struct {
	MinTables int
}

func NewTableCountChecker(minTables int) *TableCountChecker {
	if minTables < 1 {
		minTables = 1
	}
	return &TableCountChecker{MinTables: minTables}
}

func (c *TableCountChecker) Check(ctx context.Context, db *sql.DB) CheckResult {
	result := CheckResult{
		Name:  "table_count",
		Level: LevelWarning,
	}

	var count int
	err := db.QueryRowContext(ctx,
		`SELECT count(*) FROM information_schema.tables
		 WHERE table_schema NOT IN ('pg_catalog', 'information_schema')`).Scan(&count)
	if err != nil {
		result.Passed = false
		result.Message = fmt.Sprintf("Failed to count tables: %v", err)
		return result
	}

	if count < c.MinTables {
		result.Passed = false
		result.Message = fmt.Sprintf("Found %d user tables, expected at least %d", count, c.MinTables)
	} else {
		result.Passed = true
		result.Message = fmt.Sprintf("Found %d user tables", count)
	}
	return result
}
