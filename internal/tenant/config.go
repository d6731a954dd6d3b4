// Package tenant holds per-tenant messaging configuration.
package tenant

import (
	"errors"
	"fmt"
	"strings"
)

// Tier is a tenant's subscription level.
type Tier string

const (
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

// Provider is the outbound WhatsApp provider selected for a tenant.
type Provider string

const (
	ProviderNone   Provider = ""
	ProviderWaha   Provider = "waha"
	ProviderTwilio Provider = "twilio"
)

// ChannelStatus tracks the lifecycle flags of a single channel.
type ChannelStatus struct {
	Enabled   bool `json:"enabled"`
	Verified  bool `json:"verified"`
	Connected bool `json:"connected"`
}

// Ready reports whether the channel can be used right now.
func (c ChannelStatus) Ready() bool {
	return c.Enabled && c.Verified && c.Connected
}

// MessagingConfig is the outbound messaging configuration of one tenant.
type MessagingConfig struct {
	TenantID string   `json:"tenant_id"`
	Tier     Tier     `json:"tier"`
	Provider Provider `json:"provider,omitempty"`
	// OutboundNumber is the Twilio WhatsApp sender, required when Provider is twilio.
	OutboundNumber string `json:"outbound_number,omitempty"`
	// WahaSession names the WAHA session; empty means the tenant id.
	WahaSession string `json:"waha_session,omitempty"`

	Email    ChannelStatus `json:"email"`
	SMS      ChannelStatus `json:"sms"`
	WhatsApp ChannelStatus `json:"whatsapp"`

	// NotifyEmails receive an email when an inbound message creates a new lead.
	NotifyEmails []string `json:"notify_emails,omitempty"`
}

var (
	// ErrNoTransport is returned when a config does not resolve to any outbound transport.
	ErrNoTransport = errors.New("tenant: no outbound transport configured")
	// ErrMissingOutboundNumber is returned for twilio tenants without a sender number.
	ErrMissingOutboundNumber = errors.New("tenant: twilio provider requires an outbound number")
	// ErrMissingTenantID is returned when saving a config without a tenant id.
	ErrMissingTenantID = errors.New("tenant: tenant id is required")
)

// DefaultConfig returns the configuration assumed for tenants that never saved one.
func DefaultConfig(tenantID string) *MessagingConfig {
	return &MessagingConfig{
		TenantID: tenantID,
		Tier:     TierBasic,
		Provider: ProviderWaha,
		WhatsApp: ChannelStatus{Enabled: true},
	}
}

// Session returns the WAHA session name for the tenant.
func (c *MessagingConfig) Session() string {
	if s := strings.TrimSpace(c.WahaSession); s != "" {
		return s
	}
	return c.TenantID
}

type transportRule struct {
	name    string
	matches func(c *MessagingConfig) bool
	use     Provider
	err     error
}

// transportTable is evaluated top to bottom and the first matching row wins.
// A new transport is a new row.
var transportTable = []transportRule{
	{
		name:    "basic",
		matches: func(c *MessagingConfig) bool { return c.Tier == TierBasic },
		use:     ProviderWaha,
	},
	{
		name: "premium_twilio",
		matches: func(c *MessagingConfig) bool {
			return c.Tier == TierPremium && c.Provider == ProviderTwilio && strings.TrimSpace(c.OutboundNumber) != ""
		},
		use: ProviderTwilio,
	},
	{
		name: "premium_twilio_without_number",
		matches: func(c *MessagingConfig) bool {
			return c.Tier == TierPremium && c.Provider == ProviderTwilio
		},
		err: ErrMissingOutboundNumber,
	},
	{
		name:    "unroutable",
		matches: func(*MessagingConfig) bool { return true },
		err:     ErrNoTransport,
	},
}

// ActiveTransport returns the single outbound transport the config resolves to.
func (c *MessagingConfig) ActiveTransport() (Provider, error) {
	for _, rule := range transportTable {
		if !rule.matches(c) {
			continue
		}
		if rule.err != nil {
			return ProviderNone, fmt.Errorf("%w (rule %s, tier=%q provider=%q)", rule.err, rule.name, c.Tier, c.Provider)
		}
		return rule.use, nil
	}
	return ProviderNone, ErrNoTransport
}

// Validate checks the invariants a config must hold before it is stored.
func (c *MessagingConfig) Validate() error {
	if strings.TrimSpace(c.TenantID) == "" {
		return ErrMissingTenantID
	}
	_, err := c.ActiveTransport()
	return err
}

// EmailNotificationsEnabled reports whether new-lead emails should be sent.
func (c *MessagingConfig) EmailNotificationsEnabled() bool {
	return c.Email.Enabled && len(c.NotifyEmails) > 0
}
