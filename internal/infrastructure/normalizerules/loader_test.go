package normalizerules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault_ShipsKnownTables(t *testing.T) {
	t.Parallel()

	rules := Default()
	require.Equal(t, []string{"Israel"}, rules.CountryTokens)
	require.Len(t, rules.VenueOverrides, 1)
	require.Equal(t, "Turner Stadium", rules.VenueOverrides[0].Venue)
	require.Len(t, rules.VenueAliases, 1)
	require.Equal(t, "Teddy Stadium", rules.VenueAliases[0].To)
}

func TestLoad_FromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := []byte(`
country_tokens: [Israel, Palestine]
venue_overrides:
  - team: Maccabi Netanya
    venue: Netanya Stadium
venue_aliases: []
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	rules, err := Load(path)
	require.NoError(t, err)
	require.Len(t, rules.CountryTokens, 2)
	require.Equal(t, "Netanya Stadium", rules.VenueOverrides[0].Venue)
	require.Empty(t, rules.VenueOverrides[0].City)
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"missing venue":                    "venue_overrides:\n  - team: A\n",
		"unknown field":                    "venue_override: []\n",
		"empty alias":                      "venue_aliases:\n  - from: X\n    to: ''\n",
		"duplicate team":                   "venue_overrides:\n  - {team: A, venue: V}\n  - {team: ' a ', venue: W}\n",
		"duplicate alias":                  "venue_aliases:\n  - {from: X, to: Y}\n  - {from: x, to: Z}\n",
		"apostrophe variants of one team":  "venue_overrides:\n  - {team: \"Hapoel Be'er Sheva\", venue: Turner Stadium}\n  - {team: \"Hapoel Be\u2019er Sheva\", venue: Vasermil Stadium}\n",
		"apostrophe variants of one alias": "venue_aliases:\n  - {from: \"Be'er Stadium\", to: Y}\n  - {from: \"Be\u2019er Stadium\", to: Z}\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(raw))
			require.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
