package whatsapp

// Config holds the WhatsApp Cloud API adapter configuration
type Config struct {
	Enabled bool `json:"enabled"`

	// Listen is the webhook server bind address
	Listen string `json:"listen"`

	// VerifyToken is the shared secret echoed during webhook registration
	VerifyToken string `json:"verifyToken"`

	// AccessToken authenticates outbound Graph API calls
	AccessToken string `json:"accessToken"`

	// PhoneNumberID is the business phone number the bot sends from
	PhoneNumberID string `json:"phoneNumberId"`

	GraphHost  string `json:"graphHost,omitempty"`
	APIVersion string `json:"apiVersion,omitempty"`
}

func (c *Config) listen() string {
	if c.Listen == "" {
		return ":8090"
	}
	return c.Listen
}

func (c *Config) graphHost() string {
	if c.GraphHost == "" {
		return "graph.facebook.com"
	}
	return c.GraphHost
}

func (c *Config) apiVersion() string {
	if c.APIVersion == "" {
		return "v19.0"
	}
	return c.APIVersion
}
