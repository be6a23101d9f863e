package features

import (
	"strings"

	"github.com/mikey/phishguard/internal/core"
)

// Keyword table names. The rule scorer keys weights and reason texts on these.
const (
	TablePhishing     = "phishing"
	TableTestDemo     = "test_demo"
	TableUrgency      = "urgency"
	TableSocial       = "social_engineering"
	TableCallToAction = "call_to_action"
)

// KeywordTable is an ordered list of words matched by substring
type KeywordTable struct {
	Name  string
	Words []string
}

var (
	phishingWords = []string{
		"login", "verify", "update", "password", "suspended", "urgent",
		"click", "bank", "paypal", "security", "account",
	}

	// URLKeywordTables are matched against URLs, in this order
	URLKeywordTables = []KeywordTable{
		{Name: TablePhishing, Words: phishingWords},
		{Name: TableTestDemo, Words: []string{"test", "demo", "trial", "example", "sample"}},
	}

	// EmailKeywordTables are matched against the combined email text, in this order
	EmailKeywordTables = []KeywordTable{
		{Name: TableUrgency, Words: []string{"urgent", "immediately", "asap", "action required", "suspended", "verify now"}},
		{Name: TableSocial, Words: []string{"confirm your account", "reset your password", "payment failed", "unusual activity"}},
		{Name: TableCallToAction, Words: []string{"click", "link", "open", "download", "attachment"}},
		{Name: TablePhishing, Words: phishingWords},
	}

	suspiciousTLDs = map[string]struct{}{
		"xyz": {}, "top": {}, "club": {}, "online": {}, "site": {}, "info": {}, "tk": {},
	}
)

// MatchKeywords returns every word of every table contained in text.
// Results follow table order then word order; a word repeated within a
// table is reported once for that table.
func MatchKeywords(text string, tables []KeywordTable) []core.KeywordHit {
	var hits []core.KeywordHit
	for _, table := range tables {
		seen := make(map[string]struct{}, len(table.Words))
		for _, word := range table.Words {
			if _, dup := seen[word]; dup {
				continue
			}
			seen[word] = struct{}{}
			if strings.Contains(text, word) {
				hits = append(hits, core.KeywordHit{Table: table.Name, Keyword: word})
			}
		}
	}
	return hits
}
