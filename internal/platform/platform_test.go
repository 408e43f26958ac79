package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidwallet/eidwallet/internal/plugin"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name      string
		goos      string
		preferred Kind
		env       string
		want      Kind
		wantErr   bool
	}{
		{name: "linux is desktop", goos: "linux", want: KindDesktop},
		{name: "darwin is desktop", goos: "darwin", preferred: KindAuto, want: KindDesktop},
		{name: "android is mobile", goos: "android", want: KindMobile},
		{name: "ios is mobile", goos: "ios", want: KindMobile},
		{name: "preferred wins", goos: "linux", preferred: KindMobile, env: "desktop", want: KindMobile},
		{name: "env override", goos: "linux", env: "mobile", want: KindMobile},
		{name: "env auto keeps os", goos: "android", env: "auto", want: KindMobile},
		{name: "bad env", goos: "linux", env: "watch", wantErr: true},
		{name: "bad preferred", goos: "linux", preferred: Kind("tv"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := detect(tt.goos, tt.preferred, tt.env)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Kind)
			assert.Equal(t, tt.goos, p.OS)
			assert.Equal(t, tt.want == KindMobile, p.Mobile())
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Mobile ")
	require.NoError(t, err)
	assert.Equal(t, KindMobile, k)

	k, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindAuto, k)

	_, err = ParseKind("fridge")
	assert.Error(t, err)
}

type namedFactory struct {
	plugin.Factory
	name string
}

func (f namedFactory) Name() string { return f.name }

func TestCapabilities(t *testing.T) {
	empty := NoCapabilities()
	assert.True(t, empty.Empty())
	assert.Equal(t, KindDesktop, empty.Kind())
	assert.Empty(t, empty.Factories())

	var zero Capabilities
	assert.Equal(t, KindDesktop, zero.Kind())

	mobile := MobileCapabilities(
		namedFactory{name: "biometric"},
		namedFactory{name: "barcode-scanner"},
		namedFactory{name: "crypto-hw"},
	)
	assert.False(t, mobile.Empty())
	assert.Equal(t, KindMobile, mobile.Kind())

	var names []string
	for _, f := range mobile.Factories() {
		names = append(names, f.Name())
	}
	assert.Equal(t, []string{"biometric", "barcode-scanner", "crypto-hw"}, names)
}
