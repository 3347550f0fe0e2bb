package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhookMessage(t *testing.T) {
	body := []byte(`{
		"entry": [{"changes": [{"value": {"messages": [
			{"id": "wamid.abc", "from": "5491122334455", "text": {"body": "hola"}}
		]}}]}]
	}`)

	from, text, msgID, ok := parseWebhookMessage(body)
	require.True(t, ok)
	assert.Equal(t, "5491122334455", from)
	assert.Equal(t, "hola", text)
	assert.Equal(t, "wamid.abc", msgID)
}

func TestParseWebhookNonMessagePayloads(t *testing.T) {
	cases := map[string]string{
		"status callback": `{"entry": [{"changes": [{"value": {"statuses": [{"id": "x"}]}}]}]}`,
		"empty entry":     `{"entry": []}`,
		"not json":        `not json at all`,
		"missing from":    `{"entry": [{"changes": [{"value": {"messages": [{"id": "a", "text": {"body": "hi"}}]}}]}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, _, ok := parseWebhookMessage([]byte(body))
			assert.False(t, ok)
		})
	}
}

func TestDeduperDropsRedelivery(t *testing.T) {
	d := newMessageDeduper(10)

	assert.False(t, d.Seen("wamid.1"))
	assert.True(t, d.Seen("wamid.1"))
	assert.False(t, d.Seen("wamid.2"))

	// empty ids (status callbacks) are never treated as duplicates
	assert.False(t, d.Seen(""))
	assert.False(t, d.Seen(""))
}

func TestDeduperEvictsOldestHalf(t *testing.T) {
	d := newMessageDeduper(4)
	for i := 0; i < 4; i++ {
		d.Seen(fmt.Sprintf("m%d", i))
	}

	// the fifth id pushes out the oldest two
	assert.False(t, d.Seen("m4"))
	assert.False(t, d.Seen("m0"))
	assert.True(t, d.Seen("m3"))
	assert.True(t, d.Seen("m4"))
}
