package wire

import (
	"encoding/json"
	"testing"

	"github.com/aretw0/abyss/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParams_Shape(t *testing.T) {
	fixed := []domain.FixedSupport{{ID: 1, Position: domain.V(-1.5, 0.25, 0), Normal: domain.V(-1, 0, 0)}}
	loads := []domain.LoadVector{{ID: 2, Position: domain.V(1.5, 0.5, 0), Direction: domain.V(0, -1, 0), Magnitude: 1}}

	data, err := json.Marshal(NewParams(fixed, loads, domain.DefaultSolverConfig()))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, 0.3, doc["volume_fraction"])
	assert.Equal(t, 60.0, doc["nelx"])
	assert.Equal(t, 80.0, doc["max_iterations"])

	fs := doc["fixed_supports"].([]any)
	require.Len(t, fs, 1)
	assert.Equal(t, map[string]any{"x": -1.5, "y": 0.25, "z": 0.0}, fs[0].(map[string]any)["position"])

	lv := doc["load_vectors"].([]any)
	require.Len(t, lv, 1)
	assert.Equal(t, 1.0, lv[0].(map[string]any)["magnitude"])
	assert.NotContains(t, lv[0].(map[string]any), "id", "marker ids stay client side")
}

func TestNewParams_EmptyListsEncodeAsArrays(t *testing.T) {
	data, err := json.Marshal(NewParams(nil, nil, domain.DefaultSolverConfig()))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"fixed_supports":[]`)
	assert.Contains(t, string(data), `"load_vectors":[]`)
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Event
		wantErr bool
	}{
		{
			name:    "progress",
			payload: `{"iteration":5,"max_iterations":100,"objective":1.23,"volume_fraction":0.3,"change":0.01,"elapsed_seconds":2.0}`,
			want: Event{Kind: EventProgress, Progress: domain.ProgressSnapshot{
				Iteration: 5, MaxIterations: 100, Objective: 1.23, VolumeFraction: 0.3, Change: 0.01, ElapsedSeconds: 2.0,
			}},
		},
		{name: "complete", payload: `{"status": "complete"}`, want: Event{Kind: EventComplete}},
		{name: "error", payload: `{"status":"error","message":"singular matrix"}`, want: Event{Kind: EventError, Message: "singular matrix"}},
		{name: "error without message", payload: `{"status":"error"}`, want: Event{Kind: EventError, Message: "Unknown error"}},
		{name: "unknown status", payload: `{"status":"paused"}`, wantErr: true},
		{name: "garbage", payload: `not json`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEvent([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeEvent_DecodesBack(t *testing.T) {
	for _, e := range []Event{
		{Kind: EventComplete},
		{Kind: EventError, Message: "boom"},
		{Kind: EventProgress, Progress: domain.ProgressSnapshot{Iteration: 3, MaxIterations: 10}},
	} {
		data, err := EncodeEvent(e)
		require.NoError(t, err)
		got, err := DecodeEvent(data)
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "/api/optimize/j1/progress", ProgressPath("j1"))
	assert.Equal(t, "/api/optimize/j1/result", ResultPath("j1"))
}

func TestDecodeParams_Defaults(t *testing.T) {
	p, err := DecodeParams([]byte(`{
		"fixed_supports": [{"position": {"x": 0, "y": 0, "z": 0}, "normal": {"x": 0, "y": -1, "z": 0}}],
		"load_vectors": [{"position": {"x": 1, "y": 1, "z": 0}, "direction": {"x": 0, "y": -1, "z": 0}}],
		"nelx": 30
	}`))
	require.NoError(t, err)

	assert.Equal(t, 30, p.Nelx)
	assert.Equal(t, 20, p.Nely, "missing fields take service defaults")
	assert.Equal(t, 0.01, p.Tolx)
	require.Len(t, p.LoadVectors, 1)
	assert.Equal(t, domain.DefaultMagnitude, p.LoadVectors[0].Magnitude)

	_, err = DecodeParams([]byte(`{"nelx": "many"}`))
	assert.Error(t, err)
}
