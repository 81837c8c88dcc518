package normalizerules

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/riskibarqy/fixture-harvester/internal/domain/fixture"
	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRules []byte

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads rules from path, or the embedded defaults when path is empty.
func Load(path string) (fixture.Rules, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Parse(defaultRules)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fixture.Rules{}, fmt.Errorf("read normalize rules %s: %w", path, err)
	}
	rules, err := Parse(raw)
	if err != nil {
		return fixture.Rules{}, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

func Default() fixture.Rules {
	rules, err := Parse(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("embedded normalize rules: %v", err))
	}
	return rules
}

func Parse(raw []byte) (fixture.Rules, error) {
	var rules fixture.Rules
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil {
		return fixture.Rules{}, fmt.Errorf("decode normalize rules: %w", err)
	}
	if err := validate.Struct(rules); err != nil {
		return fixture.Rules{}, fmt.Errorf("validate normalize rules: %w", err)
	}
	if err := checkUnique(rules); err != nil {
		return fixture.Rules{}, err
	}
	return rules, nil
}

func checkUnique(rules fixture.Rules) error {
	teams := make(map[string]struct{}, len(rules.VenueOverrides))
	for _, o := range rules.VenueOverrides {
		key := fixture.LookupKey(o.Team)
		if _, ok := teams[key]; ok {
			return fmt.Errorf("duplicate venue override for team %q", o.Team)
		}
		teams[key] = struct{}{}
	}

	aliases := make(map[string]struct{}, len(rules.VenueAliases))
	for _, a := range rules.VenueAliases {
		key := fixture.LookupKey(a.From)
		if _, ok := aliases[key]; ok {
			return fmt.Errorf("duplicate venue alias %q", a.From)
		}
		aliases[key] = struct{}{}
	}
	return nil
}
