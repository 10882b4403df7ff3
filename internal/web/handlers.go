package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sweeney/coin-pulser/internal/assets"
	"github.com/sweeney/coin-pulser/internal/logic"
	"github.com/sweeney/coin-pulser/internal/repository"
	"github.com/sweeney/coin-pulser/internal/settings"
	"github.com/sweeney/coin-pulser/internal/status"
)

const (
	msgPasswordRequired = "Password required"
	msgInvalidPassword  = "Invalid password"
	msgConfigSaved      = "Configuration saved"
	msgIndexMissing     = "game.html not found"
)

// maxFormBytes bounds admin request bodies.
const maxFormBytes = 16 << 10

func (s *Server) handleRoot(c *gin.Context) {
	if s.deps.Assets == nil {
		s.log.Warnw("game_html_missing", "reason", "no asset cache")
		c.String(http.StatusInternalServerError, msgIndexMissing)
		return
	}
	f, ok := s.deps.Assets.Get(assets.IndexFile)
	if !ok {
		s.log.Warnw("game_html_missing")
		c.String(http.StatusInternalServerError, msgIndexMissing)
		return
	}
	c.Data(http.StatusOK, f.ContentType, f.Data)
}

func (s *Server) handleAsset(c *gin.Context) {
	if s.deps.Assets == nil {
		c.String(http.StatusNotFound, "Not found")
		return
	}
	f, ok := s.deps.Assets.Get(strings.TrimPrefix(c.Param("path"), "/"))
	if !ok {
		c.String(http.StatusNotFound, "Not found")
		return
	}
	c.Data(http.StatusOK, f.ContentType, f.Data)
}

// handleInsertCoin answers 200 whether or not the request was queued;
// a full queue means a pulse is about to fire anyway.
func (s *Server) handleInsertCoin(c *gin.Context) {
	s.log.Infow("http_insert_coin", "remote", c.ClientIP())
	if !s.deps.Trigger.Submit(logic.SourceHTTP) {
		s.log.Warnw("http_trigger_queue_full")
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type configResponse struct {
	settings.GameConfig
	SSID string `json:"ssid"`
}

func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, configResponse{
		GameConfig: s.deps.Settings.Game(),
		SSID:       s.deps.Settings.Network().SSID,
	})
}

// authFailure writes the response for an authorization error.
func authFailure(c *gin.Context, err error) {
	switch {
	case errors.Is(err, settings.ErrPasswordRequired):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msgPasswordRequired})
	default:
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": msgInvalidPassword})
	}
}

func (s *Server) handleLogin(c *gin.Context) {
	fields, err := readFields(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	if err := s.deps.Settings.Authorize(fields["password"]); err != nil {
		s.log.Infow("admin_login_rejected", "remote", c.ClientIP(), "reason", err)
		authFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleSaveConfig(c *gin.Context) {
	fields, err := readFields(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	u := settings.Update{
		DecaySpeed:    fields[settings.KeyDecaySpeed],
		TapPower:      fields[settings.KeyTapPower],
		GameDuration:  fields[settings.KeyGameDuration],
		AdminPassword: fields[settings.KeyAdminPassword],
		SSID:          fields[settings.KeySSID],
		WiFiPassword:  fields[settings.KeyWiFiPassword],
	}
	if _, err := s.deps.Settings.ApplyUpdate(c.Request.Context(), fields["password"], u); err != nil {
		s.log.Infow("admin_update_rejected", "remote", c.ClientIP(), "reason", err)
		authFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msgConfigSaved})
}

// readFields collects request parameters from a JSON object body or from
// the query string and form body. JSON numbers are kept in their text form
// so that validation sees exactly what was sent.
func readFields(c *gin.Context) (map[string]string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFormBytes)

	ct, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if ct == "application/json" {
		var raw map[string]json.RawMessage
		if err := json.NewDecoder(c.Request.Body).Decode(&raw); err != nil {
			return nil, fmt.Errorf("invalid JSON body")
		}
		out := make(map[string]string, len(raw))
		for k, v := range raw {
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				out[k] = s
				continue
			}
			out[k] = strings.TrimSpace(string(v))
		}
		return out, nil
	}

	if err := c.Request.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid form body")
	}
	out := make(map[string]string, len(c.Request.Form))
	for k := range c.Request.Form {
		out[k] = c.Request.Form.Get(k)
	}
	return out, nil
}

func (s *Server) handleStatus(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", status.FormatJSON(s.deps.Tracker.Snapshot()))
}

func (s *Server) handlePulses(c *gin.Context) {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		limit = repository.DefaultListLimit
	}
	limit = repository.ClampLimit(limit)

	if s.deps.History == nil {
		c.JSON(http.StatusOK, gin.H{"pulses": []repository.PulseRecord{}, "limit": limit})
		return
	}
	recs, err := s.deps.History.List(c.Request.Context(), limit)
	if err != nil {
		s.log.Errorw("pulse_history_failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pulses": recs, "limit": limit})
}
