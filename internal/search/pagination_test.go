package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	for _, offset := range []int{0, 1, 19, 20, 99, 100, 4000} {
		got, err := DecodeCursor(EncodeCursor(offset))
		require.NoError(t, err)
		assert.Equal(t, offset, got)
	}
}

func TestGlobalCursorRoundTrip(t *testing.T) {
	got, err := DecodeCursor(EncodeGlobalCursor(37))
	require.NoError(t, err)
	assert.Equal(t, 37, got)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, token := range []string{
		"not base64!!",
		"eyJmb28iOjF9",  // {"foo":1}: neither cursor shape
		"bm90LWpzb24",   // not-json
		EncodeCursor(0)[1:], // corrupted
	} {
		_, err := DecodeCursor(token)
		assert.Error(t, err, "token %q", token)
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct {
		limit   int
		set     bool
		want    int
		wantErr bool
	}{
		{0, false, DefaultLimit, false},
		{1, true, 1, false},
		{100, true, 100, false},
		{999, true, 100, false},
		{0, true, 0, true},
		{-5, true, 0, true},
	}
	for _, tc := range cases {
		got, err := ClampLimit(tc.limit, tc.set)
		if tc.wantErr {
			assert.Error(t, err, "limit=%d", tc.limit)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "limit=%d", tc.limit)
	}
}

func TestPageToOffset(t *testing.T) {
	off, err := PageToOffset(1, 20)
	require.NoError(t, err)
	assert.Equal(t, 0, off)

	off, err = PageToOffset(3, 25)
	require.NoError(t, err)
	assert.Equal(t, 50, off)

	_, err = PageToOffset(0, 20)
	assert.Error(t, err)
}
