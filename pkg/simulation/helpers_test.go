package simulation

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func mustGetRaw(t *testing.T, doc []byte, path string) []byte {
	t.Helper()
	v := gjson.GetBytes(doc, path)
	require.True(t, v.Exists(), "path %s not found", path)
	return []byte(v.Raw)
}
