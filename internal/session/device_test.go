package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIsDeterministic(t *testing.T) {
	c := DeviceComponents{UserAgent: "ua-1", AcceptLanguage: "en-US", ScreenResolution: "1920x1080"}
	assert.Equal(t, Fingerprint(c), Fingerprint(c))
}

func TestFingerprintDiffersOnChangedComponent(t *testing.T) {
	a := DeviceComponents{UserAgent: "ua-1"}
	b := DeviceComponents{UserAgent: "ua-2"}
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintIgnoresComponentOrderInSource(t *testing.T) {
	a := DeviceComponents{UserAgent: "ua-1", Timezone: "UTC", Fonts: "Arial"}
	b := DeviceComponents{Fonts: "Arial", Timezone: "UTC", UserAgent: "ua-1"}
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestCalculateTrustKnownDeviceScoresHigherThanNew(t *testing.T) {
	fp := Fingerprint(DeviceComponents{UserAgent: "ua-1"})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	known := CalculateTrust(fp, []DeviceRecord{{Fingerprint: fp, SeenCount: 20, IsTrusted: true}}, now)
	unknown := CalculateTrust(fp, nil, now)

	assert.Greater(t, known.Score, unknown.Score)
	assert.Contains(t, known.Factors, "known_device")
	assert.Contains(t, known.Factors, "trusted_device")
	assert.Contains(t, known.Factors, "frequently_used")
	assert.Contains(t, unknown.Factors, "new_device")
}

func TestCalculateTrustPenalizesUnusualHour(t *testing.T) {
	fp := Fingerprint(DeviceComponents{UserAgent: "ua-1"})
	lateNight := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	afternoon := time.Date(2026, 1, 1, 14, 0, 0, 0, time.UTC)

	night := CalculateTrust(fp, nil, lateNight)
	day := CalculateTrust(fp, nil, afternoon)
	assert.Less(t, night.Score, day.Score)
}

func TestCalculateTrustScoreStaysWithinBounds(t *testing.T) {
	fp := Fingerprint(DeviceComponents{UserAgent: "ua-1"})
	now := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	trust := CalculateTrust(fp, nil, now)
	assert.GreaterOrEqual(t, trust.Score, 0)
	assert.LessOrEqual(t, trust.Score, 100)
}
