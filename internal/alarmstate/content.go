package alarmstate

import (
	"fmt"
	"strings"

	"github.com/snarg/alarm-player/internal/model"
)

// GetAlarmContent renders the playable text for a. It resolves the house
// name, takes the final whitespace-separated token of a.Content as the
// status, and — unless the active language is the default — translates
// both alarm_item and status, falling back to the original on any missing
// translation key.
func (s *Service) GetAlarmContent(a *model.Alarm) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	house, ok := s.houses[a.HouseCode]
	if !ok {
		return "", fmt.Errorf("alarmstate: unknown house %q", a.HouseCode)
	}

	tokens := strings.Fields(a.Content)
	if len(tokens) == 0 {
		return "", fmt.Errorf("alarmstate: content %q has no status token", a.Content)
	}
	status := tokens[len(tokens)-1]

	alarmItem := a.AlarmItem
	if s.language != s.defaultLanguage {
		alarmItem = s.localization.Translate(s.language, alarmItem)
		status = s.localization.Translate(s.language, status)
	}

	return fmt.Sprintf("[%s] %s %s", house.Name, alarmItem, status), nil
}
