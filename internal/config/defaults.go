package config

import "laserlink/internal/breakrule"

const (
	defaultConfigPath       = "~/.config/laserlink/config.toml"
	defaultStateDir         = "~/.local/share/laserlink"
	defaultLogDir           = "~/.local/share/laserlink/logs"
	defaultCaptureDir       = "~/.local/share/laserlink/captures"
	defaultAPIBind          = "127.0.0.1:7490"
	defaultLaserPort        = "/dev/ttyUSB0"
	defaultSFCPort          = "/dev/ttyUSB1"
	defaultBaudRate         = 9600
	defaultDataBits         = 8
	defaultStopBits         = 1
	defaultParity           = "N"
	defaultReadTimeoutMS    = 750
	defaultLaserTxSec       = 120
	defaultSFCTxSec         = 7
	defaultIdleTailMS       = 200
	defaultCharset          = "utf-8"
	defaultMaxLineBytes     = 4096
	defaultModel            = "31-010815"
	defaultModelCode        = "NEEDPSN06"
	defaultBridgeMode       = "handshake"
	defaultScenario         = "pass"
	defaultStepTimeoutSec   = 30
	defaultDayStart         = "07:30"
	defaultNightStart       = "19:30"
	defaultKPIKeepDays      = 3
	defaultNotifyTimeout    = 10
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
)

// Bridge modes.
const (
	BridgeModeHandshake = "handshake"
	BridgeModeRelay     = "relay"
)

// Simulator scenarios.
const (
	ScenarioPass = "pass"
	ScenarioFail = "fail"
)

func defaultSerialPort(port string) SerialPort {
	return SerialPort{
		Port:          port,
		BaudRate:      defaultBaudRate,
		DataBits:      defaultDataBits,
		StopBits:      defaultStopBits,
		Parity:        defaultParity,
		ReadTimeoutMS: defaultReadTimeoutMS,
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			CaptureDir: defaultCaptureDir,
			APIBind:    defaultAPIBind,
		},
		Serial: Serial{
			Laser: defaultSerialPort(defaultLaserPort),
			SFC:   defaultSerialPort(defaultSFCPort),
		},
		Timeouts: Timeouts{
			LaserTxSec: defaultLaserTxSec,
			SFCTxSec:   defaultSFCTxSec,
			IdleTailMS: defaultIdleTailMS,
		},
		Framing: Framing{
			Charset:      defaultCharset,
			MaxLineBytes: defaultMaxLineBytes,
			BreakTokens:  append([]string(nil), breakrule.DefaultTokens...),
			AlwaysLast:   append([]string(nil), breakrule.DefaultAlwaysLast...),
		},
		Production: Production{
			Model:  defaultModel,
			Models: map[string]string{defaultModel: defaultModelCode},
		},
		Bridge: Bridge{
			Mode: defaultBridgeMode,
		},
		Simulator: Simulator{
			Scenario:       defaultScenario,
			StepTimeoutSec: defaultStepTimeoutSec,
		},
		KPI: KPI{
			DayStart:   defaultDayStart,
			NightStart: defaultNightStart,
			KeepDays:   defaultKPIKeepDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			SessionFailed:  true,
			PortEvents:     true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
