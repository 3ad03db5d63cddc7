package database

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/snarg/alarm-player/internal/model"
)

// LoadHouses reads every non-deleted row of SysHouse, enabled or not.
func (db *DB) LoadHouses(ctx context.Context) ([]model.House, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT name, house_code, enabled, is_empty FROM "SysHouse" WHERE is_deleted = false`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var houses []model.House
	for rows.Next() {
		var h model.House
		if err := rows.Scan(&h.Name, &h.Code, &h.Enabled, &h.IsEmptyMode); err != nil {
			return nil, err
		}
		houses = append(houses, h)
	}
	return houses, rows.Err()
}

// FarmConfigSnapshot is the bootstrap row read from FarmConfigInfo.
type FarmConfigSnapshot struct {
	LocalVolume      uint8
	BoxEnabled       bool
	Pause            bool
	Language         string
}

// LoadFarmConfig reads the single non-deleted FarmConfigInfo row, if any.
func (db *DB) LoadFarmConfig(ctx context.Context) (*FarmConfigSnapshot, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT local_volume, speaker_state, sound_column_pause, alarm_content_lang
		 FROM "FarmConfigInfo" WHERE is_deleted = false ORDER BY id LIMIT 1`)

	var s FarmConfigSnapshot
	var volume int16
	if err := row.Scan(&volume, &s.BoxEnabled, &s.Pause, &s.Language); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	s.LocalVolume = uint8(volume)
	return &s, nil
}

// LoadSoundposts reads the enabled, non-deleted SoundColumnConfig rows into
// a single PostConfig: device_ids is every matching device, speed is taken
// from the first row (all posts share one speed setting).
func (db *DB) LoadSoundposts(ctx context.Context) (model.PostConfig, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT device_id, speed FROM "SoundColumnConfig" WHERE enabled = true AND is_deleted = false ORDER BY id`)
	if err != nil {
		return model.PostConfig{}, err
	}
	defer rows.Close()

	var cfg model.PostConfig
	first := true
	for rows.Next() {
		var deviceID int32
		var speed int16
		if err := rows.Scan(&deviceID, &speed); err != nil {
			return model.PostConfig{}, err
		}
		cfg.DeviceIDs = append(cfg.DeviceIDs, uint32(deviceID))
		if first {
			cfg.Speed = uint8(speed)
			first = false
		}
	}
	return cfg, rows.Err()
}

// LoadTestAlarmConfig reads the first enabled, non-deleted TestAlarmConfig
// row whose sup_types bitmask has the soundpost/box bit (0x01) set.
func (db *DB) LoadTestAlarmConfig(ctx context.Context) (*model.TestAlarmConfig, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT duration, cron FROM "TestAlarmConfig"
		 WHERE enabled = true AND is_deleted = false AND (sup_types & 1) = 1
		 ORDER BY id LIMIT 1`)

	var duration int32
	var cron *string
	if err := row.Scan(&duration, &cron); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	cfg := &model.TestAlarmConfig{Duration: uint32(duration)}
	if cron != nil {
		cfg.Crontab = *cron
	}
	return cfg, nil
}
