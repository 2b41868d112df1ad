package config

// AIConfig holds the puzzle-content generator settings
type AIConfig struct {
	APIKey    string `mapstructure:"api_key" json:"-"` // Never serialize
	BaseURL   string `mapstructure:"base_url" json:"baseUrl"`
	Model     string `mapstructure:"model" json:"model"`
	TimeoutMS int    `mapstructure:"timeout_ms" json:"timeoutMs"`
}

// IsEnabled returns true if the AI API is configured
func (c *AIConfig) IsEnabled() bool {
	return c.APIKey != ""
}

// ModelEndpoint returns the full generateContent endpoint for the configured model
func (c *AIConfig) ModelEndpoint() string {
	return c.BaseURL + "/" + c.Model + ":generateContent"
}
