package telegram

import "ex-paimon/pkg/paimon"

const (
	// DriverType is the configured driver type token for the Telegram runtime.
	DriverType = "telegram"
	// DriverPlatform is the platform stamped on events and sinks.
	DriverPlatform paimon.Platform = paimon.PlatformTelegram
)
