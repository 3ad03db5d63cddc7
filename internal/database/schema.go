package database

import "context"

// schemaStatements creates the bootstrap-configuration and audit tables if
// they do not already exist. The tables and columns follow the external
// relational contract: SysHouse, FarmConfigInfo, SoundColumnConfig,
// TestAlarmConfig (read at bootstrap), and AlarmRecordStorage /
// TestAlarmPlayRecord (append-only writes from the player).
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS "SysHouse" (
		id serial PRIMARY KEY,
		name text NOT NULL,
		enabled boolean NOT NULL DEFAULT true,
		house_code text NOT NULL,
		is_empty boolean NOT NULL DEFAULT false,
		is_deleted boolean NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS "FarmConfigInfo" (
		id serial PRIMARY KEY,
		local_volume smallint NOT NULL DEFAULT 50,
		speaker_state boolean NOT NULL DEFAULT true,
		sound_column_pause boolean NOT NULL DEFAULT false,
		sound_column_start_time timestamp,
		alarm_content_lang text NOT NULL DEFAULT 'zh-CN',
		is_deleted boolean NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS "SoundColumnConfig" (
		id serial PRIMARY KEY,
		device_id integer NOT NULL,
		speed smallint NOT NULL DEFAULT 50,
		enabled boolean NOT NULL DEFAULT true,
		is_deleted boolean NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS "TestAlarmConfig" (
		id serial PRIMARY KEY,
		duration integer NOT NULL DEFAULT 10,
		cron text,
		sup_types integer NOT NULL DEFAULT 1,
		enabled boolean NOT NULL DEFAULT true,
		is_deleted boolean NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS "AlarmRecordStorage" (
		id uuid PRIMARY KEY,
		house_code text NOT NULL,
		house_name text NOT NULL,
		receiver_name text NOT NULL DEFAULT '',
		receiver_sign text NOT NULL DEFAULT '',
		alarm_time timestamp NOT NULL,
		alarm_grade text NOT NULL DEFAULT '',
		sending_state boolean NOT NULL,
		alarm_send_to text NOT NULL DEFAULT '',
		source_message text NOT NULL DEFAULT '',
		error_message text NOT NULL DEFAULT '',
		creation_time timestamp NOT NULL DEFAULT now(),
		is_deleted boolean NOT NULL DEFAULT false,
		alarm_client integer NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS "TestAlarmPlayRecord" (
		id uuid PRIMARY KEY,
		plan_time timestamp NOT NULL,
		test_time timestamp NOT NULL,
		test_type integer NOT NULL DEFAULT 1,
		notify_obj text,
		media_file text,
		test_result integer NOT NULL,
		has_error boolean NOT NULL DEFAULT false,
		err_message text,
		creation_time timestamp NOT NULL DEFAULT now(),
		is_deleted boolean NOT NULL DEFAULT false
	)`,
}

// InitSchema creates the bootstrap and audit tables on first run. Every
// statement is idempotent so this is safe to call on every startup.
func (db *DB) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
