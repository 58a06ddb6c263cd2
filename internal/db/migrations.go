package db

import (
	"fmt"

	"gorm.io/gorm"
)

// The schema is created lazily on the session database before the first
// write, mirroring how operators point the service at per-project databases.
// Every statement is idempotent.
var migrationStatements = []string{
	// pojazdy - aggregated 15-minute interval rows, one per bucket and road
	// segment. Column names are a compatibility contract with the reporting
	// tools that consume this table.
	`CREATE TABLE IF NOT EXISTS pojazdy (
		data_15min TIMESTAMP,
		numer_odcinka TEXT,
		srednia_przestrzen_pomiedzy_pojazdami NUMERIC,
		liczba_samochodow_jadaca_pod_prad INTEGER,
		liczba_na_pasie_1 INTEGER,
		liczba_samochodow_h_pas_1 INTEGER,
		srednia_predkosc_h_pas_1 NUMERIC,
		srednia_dlugosc_h_pas_1 NUMERIC,
		liczba_samochodow_l_pas_1 INTEGER,
		srednia_predkosc_l_pas_1 NUMERIC,
		srednia_dlugosc_l_pas_1 NUMERIC,
		liczba_na_pasie_2 INTEGER,
		liczba_samochodow_h_pas_2 INTEGER,
		srednia_predkosc_h_pas_2 NUMERIC,
		srednia_dlugosc_h_pas_2 NUMERIC,
		liczba_samochodow_l_pas_2 INTEGER,
		srednia_predkosc_l_pas_2 NUMERIC,
		srednia_dlugosc_l_pas_2 NUMERIC,
		PRIMARY KEY (data_15min, numer_odcinka)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_pojazdy_numer_odcinka ON pojazdy(numer_odcinka);`,

	// temp_data - staged aggregate batches awaiting the overwrite decision.
	// Expiration holds the creation time; the staging store sweeps rows older
	// than its TTL before each new staging write.
	`CREATE TABLE IF NOT EXISTS temp_data (
		id UUID PRIMARY KEY,
		payload JSONB NOT NULL,
		expiration TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE INDEX IF NOT EXISTS idx_temp_data_expiration ON temp_data(expiration);`,
}

// EnsureSchema creates the interval and staging tables on the session
// database if they are not there yet.
func EnsureSchema(database *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := database.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
