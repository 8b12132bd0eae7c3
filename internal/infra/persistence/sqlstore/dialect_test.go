package sqlstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	pg := Dialect{Numbered: true}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.Rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := Dialect{}
	assert.Equal(t, "a = ?", lite.Rebind("a = ?"))
}

func TestLikePatternEscapesWildcards(t *testing.T) {
	assert.Equal(t, `%rush\_a 100\%%`, likePattern("  Rush_A 100% "))
	assert.Equal(t, `%a\\b%`, likePattern(`a\b`))
}

func TestTimeRoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.FixedZone("x", 3600))
	encoded := encodeTime(at)
	assert.Equal(t, "2024-05-01T11:00:00.123456Z", encoded)

	var got time.Time
	require.NoError(t, timeValue{&got}.Scan(encoded))
	assert.True(t, got.Equal(at.Truncate(time.Microsecond)))

	require.NoError(t, timeValue{&got}.Scan(at))
	assert.Equal(t, time.UTC, got.Location())
	assert.Error(t, timeValue{&got}.Scan(42))
}

func TestEncodedTimesSortChronologically(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := encodeTime(base)
	b := encodeTime(base.Add(500 * time.Millisecond))
	assert.Less(t, a, b)
}

func TestJSONValue(t *testing.T) {
	var m map[string]any
	require.NoError(t, jsonValue{&m}.Scan([]byte(`{"mode":"bomb"}`)))
	assert.Equal(t, "bomb", m["mode"])
	require.NoError(t, jsonValue{&m}.Scan(nil))
	assert.Empty(t, m)
	assert.Error(t, jsonValue{&m}.Scan("{"))
}
