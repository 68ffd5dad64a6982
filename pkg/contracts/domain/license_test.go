package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalDeviceInfo(t *testing.T) {
	want := DeviceInfo{Model: "Pixel 7", Device: "panther", Manufacturer: "Google", Version: "14", SDK: "34"}

	tests := []struct {
		name    string
		raw     string
		want    DeviceInfo
		wantErr bool
	}{
		{
			name: "object",
			raw:  `{"model":"Pixel 7","device":"panther","manufacturer":"Google","version":"14","sdk":"34"}`,
			want: want,
		},
		{
			name: "encoded string",
			raw:  `"{\"model\":\"Pixel 7\",\"device\":\"panther\",\"manufacturer\":\"Google\",\"version\":\"14\",\"sdk\":\"34\"}"`,
			want: want,
		},
		{name: "null", raw: `null`},
		{name: "empty string", raw: `""`},
		{name: "garbage string", raw: `"not json"`, wantErr: true},
		{name: "number", raw: `42`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalDeviceInfo(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBanTypeValid(t *testing.T) {
	for _, bt := range []BanType{BanIP, BanASN, BanKey, BanDevice} {
		assert.True(t, bt.Valid(), bt)
	}
	assert.False(t, BanType("email").Valid())
	assert.False(t, BanType("").Valid())
}

func TestCheckResponseSucceeded(t *testing.T) {
	assert.True(t, CheckResponse{Result: ResultSuccess}.Succeeded())
	assert.False(t, CheckResponse{Result: ResultWrong}.Succeeded())
	assert.False(t, CheckResponse{Result: "Success"}.Succeeded())
}
