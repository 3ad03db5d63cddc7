package database

import (
	"context"

	"github.com/snarg/alarm-player/internal/model"
)

// InsertPlayRecord appends a non-test alarm playback audit row.
func (db *DB) InsertPlayRecord(ctx context.Context, r model.PlayRecord) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO "AlarmRecordStorage"
			(id, house_code, house_name, receiver_name, receiver_sign, alarm_time,
			 alarm_grade, sending_state, alarm_send_to, source_message, error_message, creation_time,
			 tenant_id, farm_id, day_age)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		r.ID, r.HouseCode, r.HouseName, r.ReceiverName, r.ReceiverSign, r.AlarmTime,
		r.AlarmGrade, r.SendingState, r.AlarmSendTo, r.SourceMessage, r.ErrorMessage, r.CreationTime,
		r.TenantID, r.FarmID, r.DayAge,
	)
	return err
}

// InsertTestPlayRecord appends a test alarm playback audit row.
func (db *DB) InsertTestPlayRecord(ctx context.Context, r model.TestPlayRecord) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO "TestAlarmPlayRecord"
			(id, plan_time, test_time, test_type, notify_obj, media_file,
			 test_result, has_error, err_message, creation_time)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		r.ID, r.PlanTime, r.TestTime, r.TestType, r.NotifyObj, r.MediaFile,
		r.TestResult, r.HasError, r.ErrMessage, r.CreationTime,
	)
	return err
}
