package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidwallet/eidwallet/internal/ipc"
	"github.com/eidwallet/eidwallet/internal/keys"
)

// Test plan:
// 1. Test greet with a name given on the command line
// 2. Test name validation of the prompt
// 3. Test open-url delivers into the inbox
// 4. Test plugins listing
// 5. Test key commands across launches (software keys persist)
// 6. Test missing config file error
// 7. Test prompt input with tea.WithInput (interactive only)

func newController(t *testing.T) (*Controller, *bytes.Buffer, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "eidwallet.json")
	data := `{"platform":"desktop","dataDir":` + quote(filepath.Join(dir, "data")) + `,"ipc":{"disabled":true}}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	out := &bytes.Buffer{}
	return &Controller{Flags: &Flags{Config: path}, Out: out}, out, filepath.Join(dir, "data")
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestController_Greet(t *testing.T) {
	ctrl, out, _ := newController(t)

	require.NoError(t, ctrl.Greet(context.Background(), "Alice"))
	assert.Equal(t, "Hello, Alice! You've been greeted from Rust!\n", out.String())
}

func TestValidateName(t *testing.T) {
	assert.Error(t, validateName(""))
	assert.Error(t, validateName("   "))
	assert.NoError(t, validateName("Bob"))
}

func TestController_OpenURL(t *testing.T) {
	ctrl, _, dataDir := newController(t)

	require.NoError(t, ctrl.OpenURL(context.Background(), "eidwallet://identity/add?did=did:web:example.org"))

	entries, err := os.ReadDir(filepath.Join(dataDir, "deep-link-inbox"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".url"))

	content, err := os.ReadFile(filepath.Join(dataDir, "deep-link-inbox", entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "eidwallet://identity/add?did=did:web:example.org", string(content))
}

func TestController_Plugins(t *testing.T) {
	ctrl, out, dataDir := newController(t)

	require.NoError(t, ctrl.Plugins(context.Background()))
	text := out.String()
	for _, want := range []string{"opener\n", "store\n", "deep-link\n", "open_url", "command greet", "command key_sign"} {
		assert.Contains(t, text, want)
	}

	// one-shot commands leave the inbox alone
	_, err := os.Stat(filepath.Join(dataDir, "deep-link-inbox"))
	assert.True(t, os.IsNotExist(err))
}

func TestController_Keys(t *testing.T) {
	ctx := context.Background()
	ctrl, out, _ := newController(t)

	run := func(cmd string, args keys.CommandArgs) keys.Result {
		t.Helper()
		out.Reset()
		require.NoError(t, ctrl.Keys(ctx, cmd, args))
		var result keys.Result
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		return result
	}

	result := run(keys.CommandGenerate, keys.CommandArgs{KeyID: "cli"})
	assert.Equal(t, keys.TypeSoftware, result.Manager)
	assert.Equal(t, keys.KeyGenerated, result.Value)

	result = run(keys.CommandGenerate, keys.CommandArgs{KeyID: "cli"})
	assert.Equal(t, keys.KeyExists, result.Value)

	signed := run(keys.CommandSign, keys.CommandArgs{KeyID: "cli", Payload: "hello"})
	signature, ok := signed.Value.(string)
	require.True(t, ok)

	result = run(keys.CommandVerify, keys.CommandArgs{KeyID: "cli", Payload: "hello", Signature: signature})
	assert.Equal(t, true, result.Value)

	result = run(keys.CommandVerify, keys.CommandArgs{KeyID: "cli", Payload: "tampered", Signature: signature})
	assert.Equal(t, false, result.Value)

	err := ctrl.Keys(ctx, keys.CommandPublic, keys.CommandArgs{KeyID: "missing"})
	var ipcErr *ipc.Error
	require.ErrorAs(t, err, &ipcErr)
	assert.Equal(t, keys.ErrorCodeKeyNotFound, ipcErr.Code)
}

func TestController_MissingConfig(t *testing.T) {
	ctrl := &Controller{Flags: &Flags{Config: filepath.Join(t.TempDir(), "nope.json")}, Out: &bytes.Buffer{}}
	err := ctrl.Greet(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestPromptName_Interactive(t *testing.T) {
	if os.Getenv("INTERACTIVE_TEST") != "true" {
		t.Skip("Skipping interactive test. Set INTERACTIVE_TEST=true to run")
	}

	name, err := promptName(tea.WithInput(strings.NewReader("Carol\r")), tea.WithOutput(&bytes.Buffer{}))
	require.NoError(t, err)
	assert.Equal(t, "Carol", name)
}
