package openrouter

import "testing"

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if client := NewClient(Config{BaseURL: "https://openrouter.ai/api/v1"}); client != nil {
		t.Fatal("client must be nil without an api key")
	}
	if client := NewClient(Config{APIKey: "   "}); client != nil {
		t.Fatal("client must be nil for a blank api key")
	}
}

func TestNewClientWithKey(t *testing.T) {
	t.Parallel()

	client := NewClient(Config{
		APIKey:   "sk-test",
		BaseURL:  "https://openrouter.ai/api/v1/",
		SiteURL:  "https://example.com",
		SiteName: "example",
	})
	if client == nil {
		t.Fatal("expected a client")
	}
}
