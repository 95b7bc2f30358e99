package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"surfcast/internal/types"
)

// alertColumns is the column list for alert_configs SELECTs, in scanAlert
// order. forecast_date is rendered as text so it round-trips as YYYY-MM-DD.
const alertColumns = `id, user_id, region, to_char(forecast_date, 'YYYY-MM-DD'), active,
	notification_method, contact_info, alert_type, properties, star_rating, log_entry_id`

// AlertRepository reads user alert configurations. Alerts are authored by the
// external CRUD surface; this repository never writes them.
type AlertRepository struct {
	db DBTX
}

// NewAlertRepository creates a new AlertRepository backed by the given
// database connection (pool or transaction).
func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

// ListActive returns the active alerts for one region and forecast date,
// ordered by id.
func (r *AlertRepository) ListActive(ctx context.Context, region, date string) ([]types.AlertConfig, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+alertColumns+`
		 FROM alert_configs
		 WHERE active AND region = $1 AND forecast_date = $2::date
		 ORDER BY id`,
		region,
		date,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active alerts", err)
	}
	defer rows.Close()

	var alerts []types.AlertConfig
	for rows.Next() {
		a, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert row", scanErr)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating alert rows", err)
	}
	return alerts, nil
}

// ListActiveRegions returns the distinct regions that have at least one
// active alert for date, sorted.
func (r *AlertRepository) ListActiveRegions(ctx context.Context, date string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT region
		 FROM alert_configs
		 WHERE active AND forecast_date = $1::date
		 ORDER BY region`,
		date,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list alert regions", err)
	}
	defer rows.Close()

	var regions []string
	for rows.Next() {
		var region string
		if err := rows.Scan(&region); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert region", err)
		}
		regions = append(regions, region)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating alert regions", err)
	}
	return regions, nil
}

func scanAlert(row pgx.Row) (types.AlertConfig, error) {
	var (
		a           types.AlertConfig
		contactInfo *string
		starRating  *string
	)
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Region,
		&a.ForecastDate,
		&a.Active,
		&a.NotificationMethod,
		&contactInfo,
		&a.AlertType,
		&a.Properties,
		&starRating,
		&a.LogEntryID,
	)
	if err != nil {
		return types.AlertConfig{}, err
	}
	if contactInfo != nil {
		a.ContactInfo = *contactInfo
	}
	if starRating != nil {
		a.StarRating = types.StarRating(*starRating)
	}
	return a, nil
}
