package alarmstate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/snarg/alarm-player/internal/metrics"
	"github.com/snarg/alarm-player/internal/model"
)

// Init loads translation tables from localizationDir. Each "<culture>.json"
// file becomes one entry of the Localization map; a missing directory is
// not an error (no translations means raw content is always used).
func (s *Service) Init(localizationDir string) error {
	entries, err := os.ReadDir(localizationDir)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Warn().Str("dir", localizationDir).Msg("localization directory not found, translations disabled")
			return nil
		}
		return fmt.Errorf("alarmstate: read localization dir: %w", err)
	}

	tables := make(model.Localization, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		culture := strings.TrimSuffix(e.Name(), ".json")
		raw, err := os.ReadFile(filepath.Join(localizationDir, e.Name()))
		if err != nil {
			return fmt.Errorf("alarmstate: read %s: %w", e.Name(), err)
		}
		var table map[string]string
		if err := json.Unmarshal(raw, &table); err != nil {
			return fmt.Errorf("alarmstate: parse %s: %w", e.Name(), err)
		}
		tables[culture] = table
	}

	s.mu.Lock()
	s.localization = tables
	s.mu.Unlock()
	return nil
}

// inventorySnapshot is one entry of the HTTP bootstrap inventory response.
type inventorySnapshot struct {
	HouseCode  string    `json:"houseCode"`
	TargetName string    `json:"targetName"`
	AlarmItem  string    `json:"alarmItem"`
	Content    string    `json:"content"`
	AlarmType  string    `json:"alarmType"`
	Timestamp  time.Time `json:"timestamp"`
}

// InitAlarmSet fetches the inventory HTTP snapshot, populates the
// ongoing-alarm set, then re-applies buffered unmapped cancels: a
// snapshot entry is suppressed when a buffered cancel for the same key
// carries a timestamp at or after the snapshot entry's timestamp.
func (s *Service) InitAlarmSet(ctx context.Context, client *resty.Client, initURL string) error {
	var snapshot []inventorySnapshot
	resp, err := client.R().
		SetContext(ctx).
		SetResult(&snapshot).
		Get(initURL)
	if err != nil {
		return fmt.Errorf("alarmstate: fetch inventory snapshot: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("alarmstate: inventory snapshot returned %s", resp.Status())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range snapshot {
		key := model.AlarmKey{HouseCode: e.HouseCode, TargetName: e.TargetName}
		if cancel, ok := s.unmappedCancel[key]; ok && !cancel.Timestamp.Before(e.Timestamp) {
			continue
		}
		s.ongoing[key] = &model.Alarm{
			HouseCode:    e.HouseCode,
			TargetName:   e.TargetName,
			AlarmItem:    e.AlarmItem,
			Content:      e.Content,
			AlarmType:    e.AlarmType,
			Timestamp:    e.Timestamp,
			ReceivedTime: e.Timestamp,
			IsAlarm:      true,
		}
	}

	s.unmappedCancel = make(map[model.AlarmKey]*model.Alarm)
	metrics.OngoingAlarmsGauge.Set(float64(len(s.ongoing)))

	s.log.Info().Int("ongoing", len(s.ongoing)).Msg("alarm set bootstrapped from inventory snapshot")
	return nil
}
