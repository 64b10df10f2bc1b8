package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Strategy
		wantErr bool
	}{
		{name: "native only", input: "native-only", want: NativeOnly},
		{name: "native first", input: "native-first", want: NativeFirst},
		{name: "remote first", input: "remote-first", want: RemoteFirst},
		{name: "hybrid", input: "hybrid", want: Hybrid},
		{name: "auto", input: "auto", want: Auto},
		{name: "unknown", input: "priority", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "case sensitive", input: "Hybrid", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStrategy(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStrategyValidate(t *testing.T) {
	for _, s := range strategies {
		assert.NoError(t, s.Validate(), s.String())
	}
	assert.Error(t, Strategy("round-robin").Validate())
}
