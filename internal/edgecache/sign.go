package edgecache

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// signingSecret is the process-wide signing key edge URL signing uses.
// Exported via SetSigningSecret so the host application can supply its
// own instead of the built-in default below.
var signingSecret = []byte("crawlcache-edge-default-secret")

func SetSigningSecret(secret []byte) {
	signingSecret = secret
}

// signURLWithHMAC implements spec.md §4.12's sign_url(url, expires_in):
// an HMAC-SHA256 signature over url+expiry, appended as query
// parameters. Every real CDN signed-URL scheme (CloudFront canned
// policies, Fastly token auth) boils down to exactly this shape, and
// crypto/hmac is the stdlib primitive every one of them is built from
// — no signing library exists in the example pack to delegate to, nor
// would one be more than a thin wrapper over this.
func signURLWithHMAC(rawURL string, expiresIn int64, provider string) string {
	expiresAt := time.Now().Add(time.Duration(expiresIn) * time.Second).Unix()
	mac := hmac.New(sha256.New, signingSecret)
	mac.Write([]byte(fmt.Sprintf("%s|%d|%s", rawURL, expiresAt, provider)))
	sig := hex.EncodeToString(mac.Sum(nil))
	sep := "?"
	if containsQuery(rawURL) {
		sep = "&"
	}
	return fmt.Sprintf("%s%sexpires=%d&signature=%s", rawURL, sep, expiresAt, sig)
}

func containsQuery(rawURL string) bool {
	for _, c := range rawURL {
		if c == '?' {
			return true
		}
	}
	return false
}

func durationToSeconds(d time.Duration) string {
	return strconv.FormatInt(int64(d.Seconds()), 10)
}
