package types

// Broker is one row of the brokers table served by the hosted database.
type Broker struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Slug         string   `json:"slug"`
	Rating       float64  `json:"rating"`
	MinDeposit   float64  `json:"min_deposit"`
	Regulators   []string `json:"regulators,omitempty"`
	Countries    []string `json:"countries,omitempty"`
	AssetClasses []string `json:"asset_classes,omitempty"`
	WebsiteURL   string   `json:"website_url,omitempty"`
	LogoURL      string   `json:"logo_url,omitempty"`
}

// Skins are the site variants built from the same codebase.
var Skins = []string{"brokerchooser", "brokeranalysis", "cryptix", "activtrades", "topbrokers"}

func ValidSkin(s string) bool {
	for _, v := range Skins {
		if v == s {
			return true
		}
	}
	return false
}
