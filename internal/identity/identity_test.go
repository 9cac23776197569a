package identity

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_Identify(t *testing.T) {
	cases := []struct {
		name     string
		provider Header
		target   string
		headers  map[string]string
		want     string
		wantErr  bool
	}{
		{name: "default header", target: "/ws", headers: map[string]string{"X-User-ID": " ash "}, want: "ash"},
		{name: "custom header", provider: Header{Name: "X-Player"}, target: "/ws", headers: map[string]string{"X-Player": "misty"}, want: "misty"},
		{name: "missing", target: "/ws", wantErr: true},
		{name: "query ignored by default", target: "/ws?identity=brock", wantErr: true},
		{name: "query in dev mode", provider: Header{AllowQuery: true}, target: "/ws?identity=brock", want: "brock"},
		{name: "header wins over query", provider: Header{AllowQuery: true}, target: "/ws?identity=brock", headers: map[string]string{"X-User-ID": "ash"}, want: "ash"},
		{name: "service token ok", provider: Header{ServiceToken: "s3cret"}, target: "/ws",
			headers: map[string]string{"X-User-ID": "ash", "Authorization": "Bearer s3cret"}, want: "ash"},
		{name: "service token wrong", provider: Header{ServiceToken: "s3cret"}, target: "/ws",
			headers: map[string]string{"X-User-ID": "ash", "Authorization": "Bearer nope"}, wantErr: true},
		{name: "service token missing", provider: Header{ServiceToken: "s3cret"}, target: "/ws",
			headers: map[string]string{"X-User-ID": "ash"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tc.target, nil)
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			got, err := tc.provider.Identify(r)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrUnauthenticated)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
