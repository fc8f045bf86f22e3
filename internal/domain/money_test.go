package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want Amount
		err  bool
	}{
		{"110", 11000, false},
		{"110.5", 11050, false},
		{"0.01", 1, false},
		{"-3.25", -325, false},
		{"1.005", 0, true},
		{"ten", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.err {
			assert.ErrorIs(t, err, ErrInvalidInput, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestAmountJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Price Amount `json:"price"`
	}{Price: 11050})
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":"110.50"}`, string(b))

	var in struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":110,"b":"99.99"}`), &in))
	assert.Equal(t, Amount(11000), in.A)
	assert.Equal(t, Amount(9999), in.B)

	err = json.Unmarshal([]byte(`{"a":1.234}`), &in)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
