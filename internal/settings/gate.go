package settings

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/sweeney/coin-pulser/internal/logger"
)

// Authorization errors returned by Gate.Authorize and Gate.ApplyUpdate.
var (
	ErrPasswordRequired = errors.New("password required")
	ErrUnauthorized     = errors.New("invalid password")
)

// Update carries the optional fields of a save request. An empty string
// means the field was not supplied.
type Update struct {
	DecaySpeed    string
	TapPower      string
	GameDuration  string
	AdminPassword string
	SSID          string
	WiFiPassword  string
}

// Result lists the keys that an update actually changed.
type Result struct {
	Applied []string
}

// Gate owns the in-memory configuration. All reads and writes go through
// its mutex; it is shared between HTTP handlers and the network supervisor
// and is never touched by the actuation loop.
type Gate struct {
	store Store
	cred  Credential
	log   *logger.Logger

	// OnApplied, if set, is called with each key written by ApplyUpdate.
	OnApplied func(key string)

	mu      sync.RWMutex
	game    GameConfig
	network NetworkCredentials
	admin   string
}

// Load reads the configuration from store, seeding absent keys with d and
// persisting them. Storage errors are logged and the default is used; Load
// never fails.
func Load(ctx context.Context, store Store, d Defaults, cred Credential, log *logger.Logger) *Gate {
	g := &Gate{store: store, cred: cred, log: log}

	g.game.DecaySpeed = g.loadInt(ctx, KeyDecaySpeed, d.Game.DecaySpeed, MinDecaySpeed)
	g.game.TapPower = g.loadInt(ctx, KeyTapPower, d.Game.TapPower, MinTapPower)
	g.game.GameDuration = g.loadInt(ctx, KeyGameDuration, d.Game.GameDuration, MinGameDuration)
	g.network.SSID = g.loadString(ctx, KeySSID, d.Network.SSID)
	g.network.Passphrase = g.loadString(ctx, KeyWiFiPassword, d.Network.Passphrase)
	g.admin = g.loadAdmin(ctx, d.Admin)

	log.Infow("settings_loaded",
		"decay_speed", g.game.DecaySpeed,
		"tap_power", g.game.TapPower,
		"game_duration", g.game.GameDuration,
		"ssid", g.network.SSID,
	)
	return g
}

func (g *Gate) loadInt(ctx context.Context, key string, def, min int) int {
	v, found, err := g.store.GetInt(ctx, key)
	switch {
	case err != nil:
		g.log.Warnw("settings_read_failed", "key", key, "err", err)
		return def
	case found && v >= min:
		return v
	case found:
		g.log.Warnw("settings_value_out_of_range", "key", key, "value", v, "default", def)
	}
	if err := g.store.PutInt(ctx, key, def); err != nil {
		g.log.Warnw("settings_write_failed", "key", key, "err", err)
	}
	return def
}

func (g *Gate) loadString(ctx context.Context, key, def string) string {
	v, found, err := g.store.GetString(ctx, key)
	if err != nil {
		g.log.Warnw("settings_read_failed", "key", key, "err", err)
		return def
	}
	if found {
		return v
	}
	if err := g.store.PutString(ctx, key, def); err != nil {
		g.log.Warnw("settings_write_failed", "key", key, "err", err)
	}
	return def
}

func (g *Gate) loadAdmin(ctx context.Context, def string) string {
	stored, found, err := g.store.GetString(ctx, KeyAdminPassword)
	if err != nil {
		g.log.Warnw("settings_read_failed", "key", KeyAdminPassword, "err", err)
		found = false
	}
	if !found {
		stored = def
	} else if !g.cred.NeedsReseal(stored) {
		return stored
	}

	sealed, err := g.cred.Seal(stored)
	if err != nil {
		g.log.Errorw("admin_credential_seal_failed", "err", err)
		return stored
	}
	if err := g.store.PutString(ctx, KeyAdminPassword, sealed); err != nil {
		g.log.Warnw("settings_write_failed", "key", KeyAdminPassword, "err", err)
	}
	return sealed
}

// Verify reports whether password matches the admin credential.
func (g *Gate) Verify(password string) bool {
	g.mu.RLock()
	stored := g.admin
	g.mu.RUnlock()
	return g.cred.Verify(stored, password)
}

// Authorize distinguishes a missing password from a wrong one.
func (g *Gate) Authorize(password string) error {
	if password == "" {
		return ErrPasswordRequired
	}
	if !g.Verify(password) {
		return ErrUnauthorized
	}
	return nil
}

// ApplyUpdate changes every valid field of u after authorizing password.
// Invalid fields are skipped without error; the prior value stays. Each
// accepted field is written through to the store immediately.
func (g *Gate) ApplyUpdate(ctx context.Context, password string, u Update) (Result, error) {
	if err := g.Authorize(password); err != nil {
		return Result{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var res Result
	applyInt := func(key, raw string, min int, dst *int) {
		v, ok := parseMin(raw, min)
		if !ok {
			if raw != "" {
				g.log.Infow("settings_field_rejected", "key", key, "value", raw)
			}
			return
		}
		*dst = v
		if err := g.store.PutInt(ctx, key, v); err != nil {
			g.log.Errorw("settings_write_failed", "key", key, "err", err)
		}
		res.Applied = append(res.Applied, key)
	}
	applyString := func(key, v string, dst *string) {
		if v == "" {
			return
		}
		*dst = v
		if err := g.store.PutString(ctx, key, v); err != nil {
			g.log.Errorw("settings_write_failed", "key", key, "err", err)
		}
		res.Applied = append(res.Applied, key)
	}

	applyInt(KeyDecaySpeed, u.DecaySpeed, MinDecaySpeed, &g.game.DecaySpeed)
	applyInt(KeyTapPower, u.TapPower, MinTapPower, &g.game.TapPower)
	applyInt(KeyGameDuration, u.GameDuration, MinGameDuration, &g.game.GameDuration)

	if u.AdminPassword != "" {
		sealed, err := g.cred.Seal(u.AdminPassword)
		if err != nil {
			g.log.Errorw("admin_credential_seal_failed", "err", err)
		} else {
			applyString(KeyAdminPassword, sealed, &g.admin)
		}
	}

	applyString(KeySSID, u.SSID, &g.network.SSID)
	applyString(KeyWiFiPassword, u.WiFiPassword, &g.network.Passphrase)

	g.log.Infow("settings_updated", "applied", res.Applied)
	if g.OnApplied != nil {
		for _, k := range res.Applied {
			g.OnApplied(k)
		}
	}
	return res, nil
}

func parseMin(raw string, min int) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		return 0, false
	}
	return v, true
}

// Game returns the current gameplay values.
func (g *Gate) Game() GameConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.game
}

// Network returns the credentials for the next association attempt.
func (g *Gate) Network() NetworkCredentials {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.network
}
