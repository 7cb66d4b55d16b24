package session

import (
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"lukechampine.com/blake3"
)

// DeviceComponents is the canonical subset of client-provided hints
// the fingerprint is derived from, grounded on
// original_source/auth-service/src/security/device.py's
// fingerprint_components list. Go's typed struct replaces the
// original's dynamic dict-of-strings per SPEC_FULL.md's design note.
type DeviceComponents struct {
	UserAgent         string
	AcceptLanguage    string
	AcceptEncoding    string
	ScreenResolution  string
	ColorDepth        string
	Timezone          string
	Plugins           string
	Fonts             string
	CanvasFingerprint string
	WebGLFingerprint  string
	AudioFingerprint  string
}

// asSortedMap mirrors device.py's "sort keys for consistent hashing"
// step: only non-empty components participate, and the map is
// marshaled with sorted keys so the same inputs always produce the
// same JSON string.
func (c DeviceComponents) asSortedMap() map[string]string {
	all := map[string]string{
		"accept_encoding":    c.AcceptEncoding,
		"accept_language":    c.AcceptLanguage,
		"audio_fingerprint":  c.AudioFingerprint,
		"canvas_fingerprint": c.CanvasFingerprint,
		"color_depth":        c.ColorDepth,
		"fonts":              c.Fonts,
		"plugins":            c.Plugins,
		"screen_resolution":  c.ScreenResolution,
		"timezone":           c.Timezone,
		"user_agent":         c.UserAgent,
		"webgl_fingerprint":  c.WebGLFingerprint,
	}
	out := make(map[string]string, len(all))
	for k, v := range all {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Fingerprint computes the device-binding hash spec.md §4.16 names:
// "a deterministic hash of a canonical subset of client-provided
// hints." blake3 replaces device.py's hashlib.sha256 per this
// tree's hash-library convention (internal/bloom, internal/token).
func Fingerprint(c DeviceComponents) string {
	keys := make([]string, 0, 11)
	m := c.asSortedMap()
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]string, len(m))
	for _, k := range keys {
		ordered[k] = m[k]
	}
	raw, _ := json.Marshal(ordered)
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// trust scoring constants from device.py's calculate_trust_score,
// preserved 1:1 as the supplemented DeviceTrust feature.
const (
	trustBaseline           = 50
	trustKnownDeviceBonus   = 30
	trustFrequentUseBonus   = 10
	trustTrustedBonus       = 20
	trustNewDevicePenalty   = 20
	trustManyDevicesPenalty = 10
	trustUnusualTimePenalty = 5
	frequentUseThreshold    = 10
	manyDevicesThreshold    = 5
)

// CalculateTrust implements device.py's calculate_trust_score,
// dropping the location-consistency terms (GeoIP is out of scope per
// spec.md §1) and keeping the known/frequency/trusted/device-count/
// time-of-day factors.
func CalculateTrust(fingerprint string, known []DeviceRecord, now time.Time) DeviceTrust {
	score := trustBaseline
	var factors []string

	var match *DeviceRecord
	for i := range known {
		if known[i].Fingerprint == fingerprint {
			match = &known[i]
			break
		}
	}

	if match != nil {
		score += trustKnownDeviceBonus
		factors = append(factors, "known_device")
		if match.SeenCount > frequentUseThreshold {
			score += trustFrequentUseBonus
			factors = append(factors, "frequently_used")
		}
		if match.IsTrusted {
			score += trustTrustedBonus
			factors = append(factors, "trusted_device")
		}
	} else {
		score -= trustNewDevicePenalty
		factors = append(factors, "new_device")
		if len(known) > manyDevicesThreshold {
			score -= trustManyDevicesPenalty
			factors = append(factors, "many_devices")
		}
	}

	hour := now.UTC().Hour()
	if hour >= 2 && hour <= 5 {
		score -= trustUnusualTimePenalty
		factors = append(factors, "unusual_time")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return DeviceTrust{Score: score, Factors: factors}
}
