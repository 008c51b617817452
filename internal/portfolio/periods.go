package portfolio

import (
	"time"

	"github.com/quantakt/backtest/internal/config"
)

// periodIdentifier maps a timestamp to an integer that changes exactly when a
// new schedule period begins. Capital growth fires once per distinct value.
// Weekly periods roll over on Mondays; day zero (1970-01-01) was a Thursday.
func periodIdentifier(ts time.Time, freq config.Frequency) int64 {
	ts = ts.UTC()
	days := ts.Unix() / 86400

	switch freq {
	case config.FrequencyDaily:
		return days
	case config.FrequencyWeekly:
		return (days + 4) / 7
	case config.FrequencyMonthly:
		return int64(ts.Year())*12 + int64(ts.Month()) - 1
	case config.FrequencyQuarterly:
		return int64(ts.Year())*4 + (int64(ts.Month())-1)/3
	case config.FrequencyYearly:
		return int64(ts.Year())
	default:
		return 0
	}
}
