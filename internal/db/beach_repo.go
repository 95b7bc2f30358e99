package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"surfcast/internal/types"
)

const beachColumns = `region, name, optimal_wind_dirs, optimal_swell_dirs,
	swell_height_min, swell_height_max, swell_period_min, swell_period_max,
	max_wind_kmh, season_months`

// BeachRepository reads the beach metadata used for star ratings.
type BeachRepository struct {
	db DBTX
}

// NewBeachRepository creates a new BeachRepository backed by the given
// database connection (pool or transaction).
func NewBeachRepository(db DBTX) *BeachRepository {
	return &BeachRepository{db: db}
}

// GetByRegion returns the profile of the beach forecast under region.
func (r *BeachRepository) GetByRegion(ctx context.Context, region string) (*types.BeachProfile, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+beachColumns+`
		 FROM beach_profiles
		 WHERE region = $1`,
		region,
	)
	p, err := scanBeach(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundBeach, "no beach profile for region", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve beach profile", err)
	}
	return &p, nil
}

// ListAll returns every beach profile, ordered by region.
func (r *BeachRepository) ListAll(ctx context.Context) ([]types.BeachProfile, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+beachColumns+`
		 FROM beach_profiles
		 ORDER BY region`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list beach profiles", err)
	}
	defer rows.Close()

	var profiles []types.BeachProfile
	for rows.Next() {
		p, scanErr := scanBeach(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan beach profile", scanErr)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating beach profiles", err)
	}
	return profiles, nil
}

func scanBeach(row pgx.Row) (types.BeachProfile, error) {
	var (
		p            types.BeachProfile
		windDirs     []byte
		swellDirs    []byte
		seasonMonths []int32
	)
	err := row.Scan(
		&p.Region,
		&p.Name,
		&windDirs,
		&swellDirs,
		&p.SwellHeightM.Min,
		&p.SwellHeightM.Max,
		&p.SwellPeriodS.Min,
		&p.SwellPeriodS.Max,
		&p.MaxWindKmh,
		&seasonMonths,
	)
	if err != nil {
		return types.BeachProfile{}, err
	}
	if len(windDirs) > 0 {
		if err := json.Unmarshal(windDirs, &p.OptimalWindDirs); err != nil {
			return types.BeachProfile{}, fmt.Errorf("optimal_wind_dirs: %w", err)
		}
	}
	if len(swellDirs) > 0 {
		if err := json.Unmarshal(swellDirs, &p.OptimalSwellDirs); err != nil {
			return types.BeachProfile{}, fmt.Errorf("optimal_swell_dirs: %w", err)
		}
	}
	for _, m := range seasonMonths {
		p.SeasonMonths = append(p.SeasonMonths, int(m))
	}
	return p, nil
}
