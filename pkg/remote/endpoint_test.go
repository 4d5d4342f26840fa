package remote

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		portOffset int
		want       ServerEndpoint
		wantErr    bool
	}{
		{
			name:       "bare host and port",
			raw:        "10.0.0.1:8848",
			portOffset: 1000,
			want:       ServerEndpoint{Host: "10.0.0.1", Port: 9848},
		},
		{
			name:       "http url",
			raw:        "http://10.0.0.1:8848",
			portOffset: 1000,
			want:       ServerEndpoint{Host: "10.0.0.1", Port: 9848},
		},
		{
			name:       "https url",
			raw:        "https://server.example.com:7001",
			portOffset: 0,
			want:       ServerEndpoint{Host: "server.example.com", Port: 7001},
		},
		{
			name:       "zero offset",
			raw:        "127.0.0.1:9000",
			portOffset: 0,
			want:       ServerEndpoint{Host: "127.0.0.1", Port: 9000},
		},
		{
			name:    "missing port",
			raw:     "10.0.0.1",
			wantErr: true,
		},
		{
			name:    "non-numeric port",
			raw:     "10.0.0.1:abc",
			wantErr: true,
		},
		{
			name:    "empty string",
			raw:     "",
			wantErr: true,
		},
		{
			name:    "missing host",
			raw:     ":8848",
			wantErr: true,
		},
		{
			name:       "offset pushes port out of range",
			raw:        "10.0.0.1:65000",
			portOffset: 1000,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveEndpoint(tt.raw, tt.portOffset)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, ErrResolve), "error should wrap ErrResolve")
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServerEndpointAddress(t *testing.T) {
	e := ServerEndpoint{Host: "10.0.0.1", Port: 9848}
	assert.Equal(t, "10.0.0.1:9848", e.Address())
	assert.Equal(t, "10.0.0.1:9848", e.String())
}
