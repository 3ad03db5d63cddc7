package alarmstate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/snarg/alarm-player/internal/model"
)

// PlayRecord appends a non-test alarm playback audit row. It is a no-op
// when the Service has no database.
func (s *Service) PlayRecord(ctx context.Context, a *model.Alarm, result model.PlayResult) error {
	if s.db == nil {
		return nil
	}
	s.mu.RLock()
	houseName := s.houses[a.HouseCode].Name
	s.mu.RUnlock()

	errMsg := ""
	if result.HasError {
		errMsg = "playback reported an error on at least one sink"
	}

	return s.db.InsertPlayRecord(ctx, model.PlayRecord{
		ID:            result.ID,
		HouseCode:     a.HouseCode,
		HouseName:     houseName,
		AlarmTime:     a.Timestamp,
		AlarmGrade:    a.AlarmType,
		SendingState:  !result.HasError,
		AlarmSendTo:   a.TargetName,
		SourceMessage: a.Content,
		ErrorMessage:  errMsg,
		CreationTime:  time.Now().UTC(),
		TenantID:      a.TenantID,
		FarmID:        a.FarmID,
		DayAge:        a.DayAge,
	})
}

// crontabResult is the body published on TopicCrontabResult.
type crontabResult struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *crontabResultData `json:"data,omitempty"`
}

type crontabResultData struct {
	Result   int    `json:"result"`
	PlanTime string `json:"planTime"`
	TestTime string `json:"testTime"`
}

const isoNoZone = "2006-01-02T15:04:05"

// TestPlayRecord appends a test alarm playback audit row and publishes a
// test-result confirmation on the broker.
func (s *Service) TestPlayRecord(ctx context.Context, a *model.Alarm, result model.PlayResult) error {
	now := time.Now().UTC()
	planTime := now
	if a.TestPlanTime != nil {
		planTime = *a.TestPlanTime
	}

	code := result.ResultType.TestResultCode()

	if err := s.db.InsertTestPlayRecord(ctx, model.TestPlayRecord{
		ID:           result.ID,
		PlanTime:     planTime,
		TestTime:     now,
		TestType:     1,
		TestResult:   code,
		HasError:     result.HasError,
		CreationTime: now,
	}); err != nil {
		return err
	}

	return s.publishCrontabResult(0, "ok", &crontabResultData{
		Result:   code,
		PlanTime: planTime.Format(isoNoZone),
		TestTime: now.Format(isoNoZone),
	})
}

// PublishOngoingAlarmResult publishes a code-1 "ongoing alarm exists" result
// when a play-now test trigger must be discarded.
func (s *Service) PublishOngoingAlarmResult() error {
	return s.publishCrontabResult(1, "ongoing alarm exists", nil)
}

func (s *Service) publishCrontabResult(code int, message string, data *crontabResultData) error {
	if s.broker == nil {
		return nil
	}
	payload, err := json.Marshal(crontabResult{Code: code, Message: message, Data: data})
	if err != nil {
		return fmt.Errorf("alarmstate: encode crontab result: %w", err)
	}
	return s.broker.Publish(TopicCrontabResult, payload)
}

// NewRecordID generates a fresh correlation id for a playback.
func NewRecordID() string {
	return uuid.NewString()
}
