package handler

import (
	"net/http"
	"time"

	"gorm.io/gorm"

	"tradeledger/src/database"
)

// HealthHandler reports database and venue connectivity. The venue check is
// best effort; a down venue degrades the status but the service itself is
// still up.
func HealthHandler(db *gorm.DB, venue accountReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		checks := map[string]string{
			"database": "ok",
			"venue":    "ok",
		}

		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(r.Context()) != nil {
			checks["database"] = "unreachable"
			status = http.StatusServiceUnavailable
		}

		if venue != nil {
			if _, err := venue.GetAccount(r.Context()); err != nil {
				checks["venue"] = "unreachable"
			}
		}

		writeJSON(w, status, map[string]interface{}{
			"status": checks,
			"time":   time.Now().UTC(),
		})
	}
}

// DefaultHealthHandler wires the production database handle.
func DefaultHealthHandler(venue accountReader) http.HandlerFunc {
	return HealthHandler(database.MainDB, venue)
}
