package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triggerhub/internal/trigger"
)

func TestMatchValueMultiValueOr(t *testing.T) {
	assert.True(t, MatchValue("a,b", "b", true))
	assert.True(t, MatchValue("a, b", "b", true), "whitespace around entries is trimmed")
	assert.False(t, MatchValue("a,b", "c", true))
}

func TestMatchValueCaseSensitivity(t *testing.T) {
	assert.False(t, MatchValue("Main", "main", true))
	assert.True(t, MatchValue("Main", "main", false))
}

func TestMatchValueEmptyConfigured(t *testing.T) {
	assert.True(t, MatchValue("", "anything", true))
	assert.True(t, MatchValue(" , ,", "anything", true), "only-empty entries pass vacuously")
}

func TestSplitValues(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitValues("a, b ,c"))
	assert.Empty(t, SplitValues(""))
	assert.Empty(t, SplitValues(" , "))
}

func TestLookup(t *testing.T) {
	payload := map[string]interface{}{
		"pull_request": map[string]interface{}{
			"merged": true,
			"base":   map[string]interface{}{"ref": "main"},
		},
	}

	assert.Equal(t, true, Lookup(payload, "pull_request.merged"))
	assert.Equal(t, "main", Lookup(payload, "pull_request.base.ref"))
	assert.Nil(t, Lookup(payload, "pull_request.head.ref"))
	assert.Nil(t, Lookup(payload, ""))
}

func TestApplyPassesWhenUnconfigured(t *testing.T) {
	filters := []Filter{
		{Name: "branch", Parameter: "branch", Path: "ref"},
	}

	err := Apply(filters, map[string]interface{}{}, map[string]interface{}{"ref": "refs/heads/main"})
	assert.NoError(t, err)
}

func TestApplyShortCircuitsOnFirstReject(t *testing.T) {
	filters := []Filter{
		{Name: "channel", Parameter: "channel", Path: "channel"},
		{Name: "user", Parameter: "user", Path: "user"},
	}
	parameters := map[string]interface{}{
		"channel": "C111,C222",
		"user":    "U999",
	}
	payload := map[string]interface{}{
		"channel": "C333",
		"user":    "U999",
	}

	err := Apply(filters, parameters, payload)
	require.Error(t, err)
	assert.True(t, trigger.IsIgnore(err))
	assert.Contains(t, err.Error(), "channel", "ignore names the first rejecting filter")
}

func TestApplyBoolFilter(t *testing.T) {
	filters := []Filter{
		{Name: "merged", Parameter: "merged_only", Path: "pull_request.merged", Kind: KindBool},
	}
	parameters := map[string]interface{}{"merged_only": "true"}

	merged := map[string]interface{}{
		"pull_request": map[string]interface{}{"merged": true},
	}
	assert.NoError(t, Apply(filters, parameters, merged))

	closed := map[string]interface{}{
		"pull_request": map[string]interface{}{"merged": false},
	}
	err := Apply(filters, parameters, closed)
	assert.True(t, trigger.IsIgnore(err))
}

func TestApplyListFilterAnyInCommon(t *testing.T) {
	filters := []Filter{
		{Name: "labels", Parameter: "labels", Path: "issue.labels", Kind: KindList, ListKey: "name"},
	}
	parameters := map[string]interface{}{"labels": "bug,urgent"}
	payload := map[string]interface{}{
		"issue": map[string]interface{}{
			"labels": []interface{}{
				map[string]interface{}{"name": "docs"},
				map[string]interface{}{"name": "bug"},
			},
		},
	}

	assert.NoError(t, Apply(filters, parameters, payload))

	parameters["labels"] = "urgent"
	err := Apply(filters, parameters, payload)
	assert.True(t, trigger.IsIgnore(err))
}

func TestApplyNumericField(t *testing.T) {
	filters := []Filter{
		{Name: "status", Parameter: "status", Path: "status"},
	}
	parameters := map[string]interface{}{"status": "200,204"}
	payload := map[string]interface{}{"status": float64(204)}

	assert.NoError(t, Apply(filters, parameters, payload))
}
