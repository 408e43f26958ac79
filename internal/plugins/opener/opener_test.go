package opener

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eidwallet/eidwallet/internal/plugin"
)

type mockLauncher struct {
	mock.Mock
}

func (m *mockLauncher) Open(ctx context.Context, target, with string) error {
	return m.Called(target, with).Error(0)
}

func (m *mockLauncher) Reveal(ctx context.Context, path string) error {
	return m.Called(path).Error(0)
}

func newOpener(t *testing.T, launcher Launcher, settings string) plugin.Plugin {
	t.Helper()
	cfg := plugin.Config{}
	if settings != "" {
		cfg.Settings = map[string]json.RawMessage{Name: json.RawMessage(settings)}
	}
	p, err := Init(WithLauncher(launcher)).Create(context.Background(), cfg)
	require.NoError(t, err)
	return p
}

func TestOpener_OpenURL(t *testing.T) {
	launcher := &mockLauncher{}
	launcher.On("Open", "https://example.com/path", "").Return(nil)
	launcher.On("Open", "mailto:someone@example.com", "thunderbird").Return(nil)

	p := newOpener(t, launcher, "")

	_, err := p.Execute(context.Background(), "open_url", json.RawMessage(`{"url":"https://example.com/path"}`))
	require.NoError(t, err)

	_, err = p.Execute(context.Background(), "open_url", json.RawMessage(`{"url":"mailto:someone@example.com","with":"thunderbird"}`))
	require.NoError(t, err)

	launcher.AssertExpectations(t)
}

func TestOpener_OpenURLRejected(t *testing.T) {
	launcher := &mockLauncher{}
	p := newOpener(t, launcher, "")

	for _, raw := range []string{
		`{"url":"file:///etc/passwd"}`,
		`{"url":"javascript:alert(1)"}`,
		`{"url":"not a url"}`,
		`{}`,
	} {
		_, err := p.Execute(context.Background(), "open_url", json.RawMessage(raw))
		var pe *plugin.Error
		require.True(t, errors.As(err, &pe), raw)
		assert.Equal(t, plugin.ErrorCodeInvalidArgs, pe.Code)
	}

	launcher.AssertNotCalled(t, "Open", mock.Anything, mock.Anything)
}

func TestOpener_AllowedSchemesSetting(t *testing.T) {
	launcher := &mockLauncher{}
	launcher.On("Open", "eidwallet://identity/1", "").Return(nil)

	p := newOpener(t, launcher, `{"allowedSchemes":["EIDWALLET"]}`)
	_, err := p.Execute(context.Background(), "open_url", json.RawMessage(`{"url":"eidwallet://identity/1"}`))
	require.NoError(t, err)
	launcher.AssertExpectations(t)
}

func TestOpener_OpenPathAndReveal(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "export.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0644))

	launcher := &mockLauncher{}
	launcher.On("Open", file, "").Return(nil)
	launcher.On("Reveal", file).Return(nil)

	p := newOpener(t, launcher, "")

	params, _ := json.Marshal(map[string]string{"path": file})
	_, err := p.Execute(context.Background(), "open_path", params)
	require.NoError(t, err)
	_, err = p.Execute(context.Background(), "reveal_item_in_dir", params)
	require.NoError(t, err)

	_, err = p.Execute(context.Background(), "open_path", json.RawMessage(`{"path":"/does/not/exist"}`))
	assert.Error(t, err)

	launcher.AssertExpectations(t)
}

func TestOpener_LauncherError(t *testing.T) {
	launcher := &mockLauncher{}
	launcher.On("Open", "https://example.com", "").Return(errors.New("no handler"))

	p := newOpener(t, launcher, "")
	_, err := p.Execute(context.Background(), "open_url", json.RawMessage(`{"url":"https://example.com"}`))
	assert.EqualError(t, err, "no handler")
}

func TestOpener_UnknownMethod(t *testing.T) {
	p := newOpener(t, &mockLauncher{}, "")
	_, err := p.Execute(context.Background(), "print", nil)
	var pe *plugin.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, plugin.ErrorCodeMethodNotFound, pe.Code)
}

func TestOSLauncher_Commands(t *testing.T) {
	type call struct {
		name string
		args []string
	}

	tests := []struct {
		goos   string
		with   string
		expect call
	}{
		{"linux", "", call{"xdg-open", []string{"https://x"}}},
		{"linux", "firefox", call{"firefox", []string{"https://x"}}},
		{"darwin", "", call{"open", []string{"https://x"}}},
		{"darwin", "Safari", call{"open", []string{"-a", "Safari", "https://x"}}},
		{"windows", "", call{"rundll32", []string{"url.dll,FileProtocolHandler", "https://x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.with, func(t *testing.T) {
			var got call
			l := &OSLauncher{goos: tt.goos, run: func(ctx context.Context, name string, args ...string) error {
				got = call{name, args}
				return nil
			}}
			require.NoError(t, l.Open(context.Background(), "https://x", tt.with))
			assert.Equal(t, tt.expect, got)
		})
	}

	l := &OSLauncher{goos: "plan9", run: func(context.Context, string, ...string) error { return nil }}
	assert.Error(t, l.Open(context.Background(), "https://x", ""))
	assert.Error(t, l.Reveal(context.Background(), "/tmp"))
}

func TestFactory_Methods(t *testing.T) {
	f := Init()
	assert.Equal(t, Name, f.Name())

	var names []string
	for _, m := range f.Methods() {
		names = append(names, m.Name)
		require.NotNil(t, m.Parameters)
	}
	assert.Equal(t, []string{"open_url", "open_path", "reveal_item_in_dir"}, names)
}
