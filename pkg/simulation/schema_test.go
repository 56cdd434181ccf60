package simulation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/hoverfly-go/pkg/errs"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		wantKind errs.Kind
		wantMsg  string
	}{
		{
			name: "valid",
			doc:  `{"data":{"pairs":[{"request":{"path":[{"matcher":"exact","value":"/"}]},"response":{"status":200}}]},"meta":{"schemaVersion":"v5"}}`,
		},
		{
			name:     "status out of range",
			doc:      `{"data":{"pairs":[{"request":{},"response":{"status":42}}]},"meta":{"schemaVersion":"v5"}}`,
			wantKind: errs.KindSchema,
			wantMsg:  "/data/pairs/0/response/status",
		},
		{
			name:     "matcher without kind",
			doc:      `{"data":{"pairs":[{"request":{"path":[{"value":"/"}]},"response":{"status":200}}]},"meta":{"schemaVersion":"v5"}}`,
			wantKind: errs.KindSchema,
			wantMsg:  "/data/pairs/0/request/path/0",
		},
		{
			name:     "missing pairs",
			doc:      `{"data":{},"meta":{"schemaVersion":"v5"}}`,
			wantKind: errs.KindSchema,
		},
		{
			name:     "v1 gated before schema",
			doc:      `{"data":{"pairs":[]},"meta":{"schemaVersion":"v1"}}`,
			wantKind: errs.KindSchema,
			wantMsg:  V1Unsupported,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate([]byte(tt.doc))
			if tt.wantKind == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, errs.KindOf(err))
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestDecode_WithSchemaValidation(t *testing.T) {
	_, err := Decode(readTestdata(t, "simulation-v5.json"), WithSchemaValidation())
	require.NoError(t, err)

	_, err = Decode(
		[]byte(`{"data":{"pairs":[{"request":{},"response":{"status":"200"}}]},"meta":{"schemaVersion":"v5"}}`),
		WithSchemaValidation(),
	)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindSchema))
}

func TestFromYAML(t *testing.T) {
	sim, err := FromYAML(readTestdata(t, "simulation.yaml"))
	require.NoError(t, err)

	require.Len(t, sim.Data.Pairs, 1)
	assert.Equal(t, []FieldMatcher{Exact("/api/health")}, sim.Data.Pairs[0].Request.Path)
	assert.Equal(t, "ok", sim.Data.Pairs[0].Response.Body)

	out, err := ToYAML(sim)
	require.NoError(t, err)
	again, err := FromYAML(out)
	require.NoError(t, err)
	assert.Equal(t, sim, again)
}

func TestFromYAML_RejectsV1(t *testing.T) {
	_, err := FromYAML([]byte("data:\n  pairs: []\nmeta:\n  schemaVersion: v1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), V1Unsupported)
}

func TestFromYAML_Malformed(t *testing.T) {
	_, err := FromYAML([]byte("data: [\n"))
	assert.True(t, errs.Is(err, errs.KindProtocol))
}
