package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/coin-pulser/internal/gpio"
	"github.com/sweeney/coin-pulser/internal/logic"
	"github.com/sweeney/coin-pulser/internal/settings"
	"github.com/sweeney/coin-pulser/internal/wifi"
)

const (
	envPrefix         = "COIN_PULSER"
	defaultConfigName = "coin-pulser"
	defaultConfigDir  = "/etc"
)

// Config holds the daemon settings. Game tuning and credentials are not
// here; they live in the configuration store and change at runtime.
type Config struct {
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	GPIO struct {
		Chip            string `mapstructure:"chip"`
		ButtonPin       int    `mapstructure:"button_pin"`
		RelayPin        int    `mapstructure:"relay_pin"`
		RelayActiveHigh bool   `mapstructure:"relay_active_high"`
	} `mapstructure:"gpio"`

	Pulse struct {
		Duration time.Duration `mapstructure:"duration"`
	} `mapstructure:"pulse"`

	Debounce time.Duration `mapstructure:"debounce"`
	Poll     time.Duration `mapstructure:"poll"`

	Serial struct {
		Port string `mapstructure:"port"`
		Baud int    `mapstructure:"baud"`
	} `mapstructure:"serial"`

	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`

	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`

	Assets struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"assets"`

	MQTT struct {
		Broker string `mapstructure:"broker"`
	} `mapstructure:"mqtt"`

	WiFi struct {
		Enabled           bool          `mapstructure:"enabled"`
		Interface         string        `mapstructure:"interface"`
		ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
		ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
		APSSID            string        `mapstructure:"ap_ssid"`
		APPassword        string        `mapstructure:"ap_password"`
	} `mapstructure:"wifi"`

	Admin struct {
		Hash string `mapstructure:"hash"`
	} `mapstructure:"admin"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("gpio.chip", gpio.DefaultChip)
	v.SetDefault("gpio.button_pin", gpio.DefaultPinButton)
	v.SetDefault("gpio.relay_pin", gpio.DefaultPinRelay)
	v.SetDefault("gpio.relay_active_high", true)
	v.SetDefault("pulse.duration", logic.PulseDuration)
	v.SetDefault("debounce", logic.DebounceDelay)
	v.SetDefault("poll", 2*time.Millisecond)
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", 115200)
	v.SetDefault("http.addr", ":80")
	v.SetDefault("db.path", "/var/lib/coin-pulser/coin-pulser.db")
	v.SetDefault("assets.dir", "/usr/share/coin-pulser/www")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("wifi.enabled", true)
	v.SetDefault("wifi.interface", "wlan0")
	v.SetDefault("wifi.connect_timeout", wifi.DefaultConnectTimeout)
	v.SetDefault("wifi.reconnect_interval", wifi.DefaultReconnectInterval)
	v.SetDefault("wifi.ap_ssid", settings.DefaultSSID)
	v.SetDefault("wifi.ap_password", settings.DefaultWiFiPassword)
	v.SetDefault("admin.hash", "plain")
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"log-level": "log.level",
	"http":      "http.addr",
	"serial":    "serial.port",
	"broker":    "mqtt.broker",
	"db":        "db.path",
	"assets":    "assets.dir",
	"poll":      "poll",
}

func addDaemonFlags(fs *pflag.FlagSet) {
	fs.String("log-level", "info", "log level (debug|info|warn|error)")
	fs.String("http", ":80", "HTTP listen address")
	fs.String("serial", "", "serial device for TRIGGER commands (empty to disable)")
	fs.String("broker", "", "MQTT broker URL (empty to disable)")
	fs.String("db", "", "SQLite database path")
	fs.String("assets", "", "web UI asset directory")
	fs.Duration("poll", 2*time.Millisecond, "control loop interval")
}

// loadConfig merges defaults, the config file, COIN_PULSER_* environment
// variables and any flags that were set, in increasing precedence.
// configFile may be empty, in which case /etc/coin-pulser.yaml is used if
// it exists.
func loadConfig(v *viper.Viper, configFile string, fs *pflag.FlagSet) (Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(defaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigDir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Pulse.Duration <= 0 {
		return fmt.Errorf("pulse.duration must be positive, got %v", c.Pulse.Duration)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative, got %v", c.Debounce)
	}
	if c.Poll <= 0 {
		return fmt.Errorf("poll must be positive, got %v", c.Poll)
	}
	if _, err := settings.CredentialFor(c.Admin.Hash); err != nil {
		return err
	}
	return nil
}
