package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidwallet/eidwallet/internal/plugin"
)

// Test Plan:
// 1. Test DB set/get/has/delete round trip
// 2. Test listing operations and ordering
// 3. Test persistence across reopen
// 4. Test defaults seeding and reset
// 5. Test plugin Execute routing and default store
// 6. Test change events
// 7. Test closed database behavior
// 8. Test reserved stores publish no changes and are refused by the plugin

func openTestDB(t *testing.T, defaults map[string]map[string]json.RawMessage) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "store.db"), defaults)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// Test: DB set/get/has/delete round trip
func TestDB_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, nil)

	_, ok, err := db.Get(ctx, "settings.json", "theme")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.Set(ctx, "settings.json", "theme", json.RawMessage(`"dark"`)))
	value, ok, err := db.Get(ctx, "settings.json", "theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `"dark"`, string(value))

	// Overwrite
	require.NoError(t, db.Set(ctx, "settings.json", "theme", json.RawMessage(`{"mode":"light"}`)))
	value, _, _ = db.Get(ctx, "settings.json", "theme")
	assert.JSONEq(t, `{"mode":"light"}`, string(value))

	has, err := db.Has(ctx, "other.json", "theme")
	require.NoError(t, err)
	assert.False(t, has, "stores are isolated")

	deleted, err := db.Delete(ctx, "settings.json", "theme")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = db.Delete(ctx, "settings.json", "theme")
	require.NoError(t, err)
	assert.False(t, deleted)

	assert.Error(t, db.Set(ctx, "settings.json", "bad", json.RawMessage(`{not json`)))
}

// Test: Listing operations and ordering
func TestDB_Listing(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, nil)

	require.NoError(t, db.Set(ctx, "s", "b", json.RawMessage(`2`)))
	require.NoError(t, db.Set(ctx, "s", "a", json.RawMessage(`1`)))
	require.NoError(t, db.Set(ctx, "t", "z", json.RawMessage(`26`)))

	keys, err := db.Keys(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	values, err := db.Values(ctx, "s")
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.JSONEq(t, `1`, string(values[0]))

	n, err := db.Length(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, db.Clear(ctx, "s"))
	entries, err := db.Entries(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, entries)

	n, _ = db.Length(ctx, "t")
	assert.Equal(t, 1, n)
}

// Test: Persistence across reopen
func TestDB_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "store.db")

	db, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, db.Set(ctx, "settings.json", "lang", json.RawMessage(`"nl"`)))
	require.NoError(t, db.Close())

	db, err = Open(path, nil)
	require.NoError(t, err)
	defer db.Close()

	value, ok, err := db.Get(ctx, "settings.json", "lang")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `"nl"`, string(value))
	assert.Equal(t, path, db.Path())
}

// Test: Defaults seeding and reset
func TestDB_DefaultsAndReset(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, map[string]map[string]json.RawMessage{
		"settings.json": {"theme": json.RawMessage(`"system"`)},
	})

	value, ok, err := db.Get(ctx, "settings.json", "theme")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `"system"`, string(value))

	require.NoError(t, db.Set(ctx, "settings.json", "theme", json.RawMessage(`"dark"`)))
	require.NoError(t, db.Set(ctx, "settings.json", "extra", json.RawMessage(`true`)))

	require.NoError(t, db.Reset(ctx, "settings.json"))
	keys, _ := db.Keys(ctx, "settings.json")
	assert.Equal(t, []string{"theme"}, keys)
	value, _, _ = db.Get(ctx, "settings.json", "theme")
	assert.JSONEq(t, `"system"`, string(value))

	_, err = Open(filepath.Join(t.TempDir(), "bad.db"), map[string]map[string]json.RawMessage{
		"s": {"k": json.RawMessage(`{`)},
	})
	assert.Error(t, err)
}

func newTestPlugin(t *testing.T, emitter plugin.Emitter) *Plugin {
	t.Helper()
	p, err := NewBuilder().
		Default("settings.json", "onboarded", json.RawMessage(`false`)).
		Build().
		Create(context.Background(), plugin.Config{DataDir: t.TempDir(), Events: emitter})
	require.NoError(t, err)
	t.Cleanup(func() { p.(*Plugin).Close() })
	return p.(*Plugin)
}

// Test: Plugin Execute routing and default store
func TestPlugin_Execute(t *testing.T) {
	ctx := context.Background()
	p := newTestPlugin(t, nil)
	assert.Equal(t, "settings.json", p.DefaultStore())

	_, err := p.Execute(ctx, "set", json.RawMessage(`{"key":"did","value":"did:plc:abc"}`))
	require.NoError(t, err)

	out, err := p.Execute(ctx, "get", json.RawMessage(`{"key":"did"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"did:plc:abc","exists":true}`, string(out))

	out, err = p.Execute(ctx, "get", json.RawMessage(`{"store":"other.json","key":"did"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":null,"exists":false}`, string(out))

	out, err = p.Execute(ctx, "has", json.RawMessage(`{"key":"onboarded"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `true`, string(out))

	out, err = p.Execute(ctx, "keys", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `["did","onboarded"]`, string(out))

	out, err = p.Execute(ctx, "length", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `2`, string(out))

	out, err = p.Execute(ctx, "entries", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"key":"did","value":"did:plc:abc"},{"key":"onboarded","value":false}]`, string(out))

	out, err = p.Execute(ctx, "delete", json.RawMessage(`{"key":"did"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `true`, string(out))

	_, err = p.Execute(ctx, "clear", nil)
	require.NoError(t, err)
	_, err = p.Execute(ctx, "reset", nil)
	require.NoError(t, err)
	out, _ = p.Execute(ctx, "values", nil)
	assert.JSONEq(t, `[false]`, string(out))
}

func TestPlugin_ExecuteErrors(t *testing.T) {
	ctx := context.Background()
	p := newTestPlugin(t, nil)

	cases := map[string]string{
		"set":    `{"value":1}`,
		"get":    `{}`,
		"has":    `{}`,
		"delete": `{}`,
	}
	for method, params := range cases {
		_, err := p.Execute(ctx, method, json.RawMessage(params))
		var pe *plugin.Error
		require.True(t, errors.As(err, &pe), method)
		assert.Equal(t, plugin.ErrorCodeInvalidArgs, pe.Code, method)
	}

	_, err := p.Execute(ctx, "set", json.RawMessage(`{"key":"k"}`))
	var pe *plugin.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, plugin.ErrorCodeInvalidArgs, pe.Code)

	_, err = p.Execute(ctx, "save", nil)
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, plugin.ErrorCodeMethodNotFound, pe.Code)
}

// Test: Change events
func TestPlugin_ChangeEvents(t *testing.T) {
	var mu sync.Mutex
	var events []Change
	emitter := plugin.EmitterFunc(func(name string, payload any) error {
		assert.Equal(t, ChangeEvent, name)
		mu.Lock()
		events = append(events, payload.(Change))
		mu.Unlock()
		return nil
	})

	p := newTestPlugin(t, emitter)
	ctx := context.Background()

	_, err := p.Execute(ctx, "set", json.RawMessage(`{"key":"a","value":1}`))
	require.NoError(t, err)
	_, err = p.Execute(ctx, "delete", json.RawMessage(`{"key":"a"}`))
	require.NoError(t, err)
	_, err = p.Execute(ctx, "delete", json.RawMessage(`{"key":"a"}`))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Key)
	assert.False(t, events[0].Deleted)
	assert.True(t, events[1].Deleted)
}

// Test: Closed database behavior
func TestDB_Closed(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "store.db"), nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	ctx := context.Background()
	assert.ErrorIs(t, db.Set(ctx, "s", "k", json.RawMessage(`1`)), ErrClosed)
	_, _, err = db.Get(ctx, "s", "k")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.Keys(ctx, "s")
	assert.ErrorIs(t, err, ErrClosed)
}

// Test: Reserved stores
func TestPlugin_ReservedStore(t *testing.T) {
	var mu sync.Mutex
	var events []Change
	p := newTestPlugin(t, plugin.EmitterFunc(func(name string, payload any) error {
		mu.Lock()
		events = append(events, payload.(Change))
		mu.Unlock()
		return nil
	}))
	ctx := context.Background()

	db := p.DB()
	db.Reserve("secrets")
	assert.True(t, db.Reserved("secrets"))
	assert.False(t, db.Reserved("settings.json"))

	require.NoError(t, db.Set(ctx, "secrets", "k", json.RawMessage(`{"privateKey":"x"}`)))
	_, err := db.Delete(ctx, "secrets", "k")
	require.NoError(t, err)
	require.NoError(t, db.Clear(ctx, "secrets"))
	require.NoError(t, db.Set(ctx, "settings.json", "k", json.RawMessage(`1`)))

	mu.Lock()
	require.Len(t, events, 1)
	assert.Equal(t, "settings.json", events[0].Store)
	mu.Unlock()

	require.NoError(t, db.Set(ctx, "secrets", "k", json.RawMessage(`1`)))
	for _, method := range []string{"get", "has", "set", "delete", "keys", "values", "entries", "length", "clear", "reset"} {
		_, err := p.Execute(ctx, method, json.RawMessage(`{"store":"secrets","key":"k","value":2}`))
		var pe *plugin.Error
		require.True(t, errors.As(err, &pe), method)
		assert.Equal(t, plugin.ErrorCodePermissionDenied, pe.Code, method)
	}

	// in-process access is unaffected
	value, ok, err := db.Get(ctx, "secrets", "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `1`, string(value))
}
