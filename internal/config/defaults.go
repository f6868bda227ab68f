package config

import (
	"github.com/knadh/koanf/providers/confmap"
)

// DefaultTimezone is the civil zone day boundaries are computed in.
const DefaultTimezone = "America/Chicago"

func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"timezone": DefaultTimezone,
		"log": map[string]interface{}{
			"level": "info",
		},
		"store": map[string]interface{}{
			"dsn": "data/jogpipe.db",
		},
		"http": map[string]interface{}{
			"addr":             ":8080",
			"read_timeout":     "15s",
			"write_timeout":    "15s",
			"shutdown_timeout": "10s",
		},
		"push": map[string]interface{}{
			"transport":    TransportLog,
			"send_timeout": "10s",
			"rate":         20.0,
			"burst":        5,
			"fcm": map[string]interface{}{
				"credentials_file":   "",
				"credentials_base64": "",
				"project_id":         "",
			},
			"twilio": map[string]interface{}{
				"account_sid": "",
				"auth_token":  "",
				"from_number": "",
			},
		},
		"schedule": map[string]interface{}{
			"notify":  "* * * * *",
			"overdue": "* * * * *",
			"symptom": "0 * * * *",
			"nightly": "5 0 * * *",
			"streak":  "55 23 * * *",
		},
		"engine": map[string]interface{}{
			"workers":           8,
			"overdue_lag":       "60s",
			"pass_max_lateness": "10m",
			"dedup_retention":   "72h",
		},
		"runner": map[string]interface{}{
			"poll_interval":   "5s",
			"stale_threshold": "5m",
			"claim_limit":     10,
		},
	}
}

func NewDefaultProvider() *confmap.Confmap {
	return confmap.Provider(DefaultConfig(), ".")
}
