// Package settings holds the runtime-tunable configuration of the coin pulser:
// gameplay values, network credentials and the admin credential.
//
// Values are read once from a Store at boot (absent keys fall back to the
// compiled-in defaults and are written back), and are changed afterwards only
// through the Gate, which writes every accepted field through to the Store.
package settings

import "context"

// Persisted keys.
const (
	KeyDecaySpeed    = "decaySpeed"
	KeyTapPower      = "tapPower"
	KeyGameDuration  = "gameDuration"
	KeyAdminPassword = "adminPassword"
	KeySSID          = "ssid"
	KeyWiFiPassword  = "wifiPassword"
)

// Compiled-in defaults used when a key is absent.
const (
	DefaultDecaySpeed    = 45
	DefaultTapPower      = 5
	DefaultGameDuration  = 10
	DefaultAdminPassword = "admin"
	DefaultSSID          = "claw-service"
	DefaultWiFiPassword  = "claw-service"
)

// Field minimums.
const (
	MinDecaySpeed   = 0
	MinTapPower     = 1
	MinGameDuration = 1
)

// GameConfig holds the gameplay tuning values served to the web UI.
type GameConfig struct {
	DecaySpeed   int `json:"decaySpeed"`
	TapPower     int `json:"tapPower"`
	GameDuration int `json:"gameDuration"`
}

// NetworkCredentials are used on the next network association attempt.
type NetworkCredentials struct {
	SSID       string
	Passphrase string
}

// Defaults are the values used for absent keys.
type Defaults struct {
	Game    GameConfig
	Network NetworkCredentials
	Admin   string
}

// DefaultValues returns the compiled-in defaults.
func DefaultValues() Defaults {
	return Defaults{
		Game: GameConfig{
			DecaySpeed:   DefaultDecaySpeed,
			TapPower:     DefaultTapPower,
			GameDuration: DefaultGameDuration,
		},
		Network: NetworkCredentials{SSID: DefaultSSID, Passphrase: DefaultWiFiPassword},
		Admin:   DefaultAdminPassword,
	}
}

// Store is a durable flat key/value mapping. Get methods report found=false
// for an absent key.
type Store interface {
	GetInt(ctx context.Context, key string) (value int, found bool, err error)
	GetString(ctx context.Context, key string) (value string, found bool, err error)
	PutInt(ctx context.Context, key string, value int) error
	PutString(ctx context.Context, key string, value string) error
}
