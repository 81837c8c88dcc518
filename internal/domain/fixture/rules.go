package fixture

// VenueOverride forces a venue for fixtures hosted by Team, regardless of
// what the detail page lists.
type VenueOverride struct {
	Team  string `yaml:"team" validate:"required"`
	Venue string `yaml:"venue" validate:"required"`
	City  string `yaml:"city"`
}

// VenueAlias maps a legacy or misspelled venue name to its canonical form.
type VenueAlias struct {
	From string `yaml:"from" validate:"required"`
	To   string `yaml:"to" validate:"required"`
}

// Rules is the data-driven part of normalization.
type Rules struct {
	CountryTokens  []string        `yaml:"country_tokens" validate:"dive,required"`
	VenueOverrides []VenueOverride `yaml:"venue_overrides" validate:"dive"`
	VenueAliases   []VenueAlias    `yaml:"venue_aliases" validate:"dive"`
}
