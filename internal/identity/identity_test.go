package identity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidwallet/eidwallet/internal/plugin"
	"github.com/eidwallet/eidwallet/internal/plugins/barcode"
)

// Test Plan:
// 1. Add keeps insertion order and rejects empty, invalid and duplicate DIDs
// 2. Subscribers get the current list and every update until unsubscribed
// 3. QR content parsing (bare DID and JSON)
// 4. Scan flow: unavailable scanner, permission request, denied permission, success
// 5. Commands

const (
	did1 = "did:plc:q3enoeuha5b2zx4p4atxtb7x"
	did2 = "did:web:example.org"
)

func TestManager_Add(t *testing.T) {
	m := NewManager(zerolog.Nop())

	added, err := m.Add(Identity{DID: did1, AlsoKnownAs: "at://willem.dobs.nl"})
	require.NoError(t, err)
	assert.False(t, added.AddedAt.IsZero())

	_, err = m.Add(Identity{DID: " " + did2 + " "})
	require.NoError(t, err)

	_, err = m.Add(Identity{DID: did1})
	assert.ErrorIs(t, err, ErrDuplicateDID)
	_, err = m.Add(Identity{})
	assert.ErrorIs(t, err, ErrEmptyDID)
	_, err = m.Add(Identity{DID: "willem"})
	assert.ErrorIs(t, err, ErrInvalidDID)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, did1, list[0].DID)
	assert.Equal(t, did2, list[1].DID)

	// List returns a copy
	list[0].DID = "did:changed"
	assert.Equal(t, did1, m.List()[0].DID)
}

func TestManager_Subscribe(t *testing.T) {
	m := NewManager(zerolog.Nop())
	_, err := m.Add(Identity{DID: did1})
	require.NoError(t, err)

	ch, unsubscribe := m.Subscribe()

	select {
	case list := <-ch:
		require.Len(t, list, 1)
	case <-time.After(time.Second):
		t.Fatal("no initial list")
	}

	_, err = m.Add(Identity{DID: did2})
	require.NoError(t, err)

	select {
	case list := <-ch:
		require.Len(t, list, 2)
		assert.Equal(t, did2, list[1].DID)
	case <-time.After(time.Second):
		t.Fatal("no update")
	}

	unsubscribe()
	unsubscribe()
	_, ok := <-ch
	assert.False(t, ok, "channel closed after unsubscribe")

	_, err = m.Add(Identity{DID: "did:web:third.example"})
	require.NoError(t, err)
}

func TestManager_SlowSubscriberGetsLatest(t *testing.T) {
	m := NewManager(zerolog.Nop())
	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()

	_, _ = m.Add(Identity{DID: did1})
	_, _ = m.Add(Identity{DID: did2})

	list := <-ch
	assert.Len(t, list, 2)
}

func TestParseQR(t *testing.T) {
	id, err := ParseQR("  " + did1 + "\n")
	require.NoError(t, err)
	assert.Equal(t, did1, id.DID)

	id, err = ParseQR(`{"did":"` + did1 + `","alsoKnownAs":"at://willem.dobs.nl"}`)
	require.NoError(t, err)
	assert.Equal(t, "at://willem.dobs.nl", id.AlsoKnownAs)

	_, err = ParseQR("https://example.org")
	assert.ErrorIs(t, err, ErrInvalidDID)

	_, err = ParseQR("{broken")
	assert.Error(t, err)
}

func TestScanFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("no scanner", func(t *testing.T) {
		flow := NewScanFlow(nil, NewManager(zerolog.Nop()))
		assert.False(t, flow.Available())
		_, err := flow.Run(ctx)
		assert.ErrorIs(t, err, ErrScannerUnavailable)
	})

	t.Run("requests permission and adds the scanned identity", func(t *testing.T) {
		sim := barcode.NewSimulator()
		sim.Queue(did1, barcode.QRCode)
		m := NewManager(zerolog.Nop())

		added, err := NewScanFlow(sim, m).Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, did1, added.DID)
		assert.Len(t, m.List(), 1)
	})

	t.Run("permission denied", func(t *testing.T) {
		sim := barcode.NewSimulator()
		sim.SetPermission(barcode.PermissionPrompt, barcode.PermissionDenied)
		_, err := NewScanFlow(sim, NewManager(zerolog.Nop())).Run(ctx)
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})
}

func TestCommands(t *testing.T) {
	ctx := context.Background()
	m := NewManager(zerolog.Nop())
	cmds := Commands(m, NewScanFlow(nil, m))

	out, err := cmds[CommandAdd](ctx, json.RawMessage(`{"did":"`+did1+`"}`))
	require.NoError(t, err)
	assert.Equal(t, did1, out.(Identity).DID)

	_, err = cmds[CommandAdd](ctx, json.RawMessage(`{"did":"`+did1+`"}`))
	var pe *plugin.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, plugin.ErrorCodeInvalidArgs, pe.Code)

	out, err = cmds[CommandList](ctx, nil)
	require.NoError(t, err)
	assert.Len(t, out.([]Identity), 1)

	_, err = cmds[CommandScan](ctx, nil)
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, plugin.ErrorCodeUnavailable, pe.Code)
}
