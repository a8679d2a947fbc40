package directory

import (
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"batterypass/pkg/domain"
)

// Device is the normalized client description attached to activity entries.
type Device struct {
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browserVersion,omitempty"`
	OS             string `json:"os,omitempty"`
	Mobile         bool   `json:"mobile,omitempty"`
}

// ActivityEntry is one row in the role-activity audit trail.
type ActivityEntry struct {
	ID         string        `json:"id"`
	Action     domain.Action `json:"action"`
	Actor      string        `json:"actor"`
	TokenID    uint64        `json:"tokenId,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	Device     Device        `json:"device,omitempty"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// NewActivityEntry builds an entry with a fresh id and timestamp.
func NewActivityEntry(action domain.Action, actor string, tokenID uint64, detail string) ActivityEntry {
	return ActivityEntry{
		ID:         uuid.NewString(),
		Action:     action,
		Actor:      actor,
		TokenID:    tokenID,
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	}
}

// WithUserAgent normalizes a raw user-agent string into the entry's device
// fields. Sessions opened outside a browser leave the device empty.
func (e ActivityEntry) WithUserAgent(raw string) ActivityEntry {
	if raw == "" {
		return e
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	e.Device = Device{
		Browser:        name,
		BrowserVersion: version,
		OS:             ua.OS(),
		Mobile:         ua.Mobile(),
	}
	return e
}
