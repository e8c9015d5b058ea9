package cluster

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/forestfire/internal/band"
	"github.com/dreamware/forestfire/internal/forest"
)

func sampleWork() Work {
	return Work{
		Region: band.Region{
			Rows: forest.Grid{
				{forest.Tree, forest.Empty, forest.Fire},
				{forest.Tree, forest.Tree, forest.Tree},
				{forest.Empty, forest.Fire, forest.Empty},
			},
			Start:      4,
			End:        5,
			HaloOffset: 1,
		},
		Params: forest.Params{GrowthProb: 0.25, IgniteProb: 0.0001},
	}
}

// TestWorkRoundTrip encodes a Work message and decodes it back, checking the
// region descriptor and parameters survive unchanged.
func TestWorkRoundTrip(t *testing.T) {
	work := sampleWork()

	data, err := EncodeRequest(work)
	require.NoError(t, err)

	decoded, err := DecodeRequest(data)
	require.NoError(t, err)

	got, ok := decoded.(Work)
	require.True(t, ok, "expected Work, got %T", decoded)
	assert.Equal(t, work.Region, got.Region)
	assert.Equal(t, work.Params, got.Params)
	assert.Equal(t, CommandProcess, got.Command())
}

// TestWorkPayloadShape pins the JSON keys workers in other languages read.
func TestWorkPayloadShape(t *testing.T) {
	data, err := EncodeRequest(sampleWork())
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))

	assert.Equal(t, "process", m["command"])
	assert.Equal(t, 0.25, m["growth_prob"])
	assert.Equal(t, 0.0001, m["spontaneous_ignite_prob"])

	region, ok := m["region"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(4), region["original_row_start"])
	assert.Equal(t, float64(5), region["original_row_end"])
	assert.Equal(t, float64(1), region["halo_offset"])
	assert.Equal(t, []interface{}{float64(1), float64(0), float64(2)}, region["rows"].([]interface{})[0])
}

func TestTerminateRoundTrip(t *testing.T) {
	data, err := EncodeRequest(Terminate{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"stop"}`, string(data))

	decoded, err := DecodeRequest(data)
	require.NoError(t, err)
	assert.IsType(t, Terminate{}, decoded)
}

func TestResultRoundTrip(t *testing.T) {
	res := Result{Rows: forest.Grid{{forest.Fire, forest.Empty}, {forest.Tree, forest.Tree}}}

	data, err := EncodeResult(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"processed_rows":[[2,0],[1,1]]}`, string(data))

	got, err := DecodeResult(data)
	require.NoError(t, err)
	assert.Equal(t, res, got)
}

func TestDecodeRequestRejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    error
	}{
		{"not json", `{"command":`, ErrFraming},
		{"no command", `{}`, ErrFraming},
		{"unknown command", `{"command":"explode"}`, ErrFraming},
		{"process without region", `{"command":"process","growth_prob":0.1,"spontaneous_ignite_prob":0.1}`, ErrFraming},
		{"region missing offset", `{"command":"process","region":{"rows":[[0]],"original_row_start":0,"original_row_end":1},"growth_prob":0.1,"spontaneous_ignite_prob":0.1}`, ErrFraming},
		{"missing probabilities", `{"command":"process","region":{"rows":[[0]],"original_row_start":0,"original_row_end":1,"halo_offset":0}}`, ErrFraming},
		{"fractional cell", `{"command":"process","region":{"rows":[[0.5]],"original_row_start":0,"original_row_end":1,"halo_offset":0},"growth_prob":0.1,"spontaneous_ignite_prob":0.1}`, ErrFraming},
		{"cell out of range", `{"command":"process","region":{"rows":[[3]],"original_row_start":0,"original_row_end":1,"halo_offset":0},"growth_prob":0.1,"spontaneous_ignite_prob":0.1}`, ErrValidation},
		{"negative cell", `{"command":"process","region":{"rows":[[-1]],"original_row_start":0,"original_row_end":1,"halo_offset":0},"growth_prob":0.1,"spontaneous_ignite_prob":0.1}`, ErrValidation},
		{"inconsistent region", `{"command":"process","region":{"rows":[[0],[0],[0],[0]],"original_row_start":1,"original_row_end":2,"halo_offset":1},"growth_prob":0.1,"spontaneous_ignite_prob":0.1}`, ErrValidation},
		{"probability above one", `{"command":"process","region":{"rows":[[0]],"original_row_start":0,"original_row_end":1,"halo_offset":0},"growth_prob":1.5,"spontaneous_ignite_prob":0.1}`, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRequest([]byte(tt.payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestDecodeResultRejects(t *testing.T) {
	_, err := DecodeResult([]byte(`{"rows":[[0]]}`))
	assert.ErrorIs(t, err, ErrFraming)

	_, err = DecodeResult([]byte(`{"processed_rows":[[0,7]]}`))
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, forest.ErrInvalidCell)

	_, err = DecodeResult([]byte(`[1,2,3]`))
	assert.ErrorIs(t, err, ErrFraming)
}

func TestEncodeRequestPointerVariants(t *testing.T) {
	w := sampleWork()
	a, err := EncodeRequest(w)
	require.NoError(t, err)
	b, err := EncodeRequest(&w)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = EncodeRequest(nil)
	assert.ErrorIs(t, err, ErrFraming)

	var missing *Work
	assert.NotPanics(t, func() {
		_, err = EncodeRequest(missing)
	})
	assert.ErrorIs(t, err, ErrFraming)
}

func TestConnectionClosedIsConnectionError(t *testing.T) {
	assert.ErrorIs(t, ErrConnectionClosed, ErrConnection)
	assert.NotErrorIs(t, ErrFraming, ErrConnection)
}
