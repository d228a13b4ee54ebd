// internal/config/normalize.go
package config

import "strings"

// Normalize applies post-validation normalization.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Transport.Kind = strings.ToLower(strings.TrimSpace(cfg.Transport.Kind))
	cfg.Device.Address = strings.ToUpper(strings.TrimSpace(cfg.Device.Address))
	cfg.Device.ServiceUUID = strings.ToLower(cfg.Device.ServiceUUID)
	cfg.Device.WriteUUID = strings.ToLower(cfg.Device.WriteUUID)
	cfg.Device.NotifyUUID = strings.ToLower(cfg.Device.NotifyUUID)
	cfg.Monitor.Format = strings.ToLower(cfg.Monitor.Format)

	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "batteread"
	}
}
