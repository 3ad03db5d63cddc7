package alarmstate

import (
	"strings"

	"github.com/robfig/cron/v3"
)

// parseCrontab parses a crontab expression whose first field is seconds;
// five-field expressions without it fail to parse. The prototype's crontab expressions sometimes carry a trailing
// year field (seven space-separated fields); robfig/cron has no year
// position, so a seventh field is dropped before parsing.
func parseCrontab(expr string) (cron.Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) == 7 {
		fields = fields[:6]
	}
	return cronParser.Parse(strings.Join(fields, " "))
}
