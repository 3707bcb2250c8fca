package rooms

import (
	"fmt"
	"hash/fnv"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sessionID returns the stable per-profile session id, creating and
// caching one when absent.
func (c *Client) sessionID() string {
	if c.profile == nil {
		return uuid.NewString()
	}
	if id, ok := c.profile.Get("sessionId"); ok {
		return id
	}

	id := uuid.NewString()
	if err := c.profile.Set("sessionId", id, identityTTL); err != nil {
		c.log.Warn("failed to cache session id", zap.Error(err))
	}
	return id
}

// fingerprint returns a stable hash of client attributes, cached in the
// profile store.
func (c *Client) fingerprint() string {
	if c.profile == nil {
		return computeFingerprint()
	}
	if fp, ok := c.profile.Get("fingerprint"); ok {
		return fp
	}

	fp := computeFingerprint()
	if err := c.profile.Set("fingerprint", fp, identityTTL); err != nil {
		c.log.Warn("failed to cache fingerprint", zap.Error(err))
	}
	return fp
}

func computeFingerprint() string {
	hostname, _ := os.Hostname()
	_, tzOffset := time.Now().Zone()

	components := []string{
		runtime.GOOS,
		runtime.GOARCH,
		fmt.Sprintf("%d", runtime.NumCPU()),
		hostname,
		fmt.Sprintf("%d", tzOffset),
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.Join(components, ".")))
	return fmt.Sprintf("%x", h.Sum32())
}
