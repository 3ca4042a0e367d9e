package license

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// HardwareInfo is the subset of the client's machine description that identifies it.
type HardwareInfo struct {
	OS       string `json:"os"`
	Hostname string `json:"hostname"`
	CPUs     int    `json:"cpus"`
	Arch     string `json:"arch"`
	Platform string `json:"platform"`
}

// HardwareID hashes a canonical form of the fingerprint, so the same machine maps
// to the same id regardless of the device id the client sends.
func (h HardwareInfo) HardwareID() string {
	canonical := strings.Join([]string{
		canon(h.OS),
		canon(h.Hostname),
		strconv.Itoa(h.CPUs),
		canon(h.Arch),
		canon(h.Platform),
	}, "|")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func canon(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
