// Package session tracks login sessions per user and device.
package session

import (
	"strings"
	"time"
)

// Platforms.
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformWeb     = "web"
	PlatformOther   = "other"
)

// NormalizePlatform lowercases p and maps anything unrecognized to PlatformOther.
func NormalizePlatform(p string) string {
	switch p = strings.ToLower(strings.TrimSpace(p)); p {
	case PlatformIOS, PlatformAndroid, PlatformWeb:
		return p
	default:
		return PlatformOther
	}
}

// Session is a login on one device. At most one session per (UserID,
// DeviceID) is active; a terminated session never becomes active again.
type Session struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	DeviceID     string     `json:"deviceId"`
	DeviceName   string     `json:"deviceName"`
	Platform     string     `json:"platform"`
	IPAddress    string     `json:"ipAddress,omitempty"`
	Location     string     `json:"location,omitempty"`
	LoginTime    time.Time  `json:"loginTime"`
	LastActivity time.Time  `json:"lastActivity"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	IsActive     bool       `json:"isActive"`
	TerminatedAt *time.Time `json:"terminatedAt,omitempty"`
	IsCurrent    bool       `json:"isCurrent,omitempty"`
}

// DeviceInfo describes the device a login comes from.
type DeviceInfo struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	Platform   string `json:"platform"`
	IPAddress  string `json:"ipAddress"`
	Location   string `json:"location"`
}

// CreateResult reports what happened to other sessions when one was created.
type CreateResult struct {
	// Superseded holds the ids of sessions on the same device that were deactivated.
	Superseded []string
	// KnownDevice is true when the user had logged in from the device before.
	KnownDevice bool
}

// TerminateResult summarizes a batch termination.
type TerminateResult struct {
	Terminated int `json:"terminated"`
	Failed     int `json:"failed"`
}
