package barcode

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidwallet/eidwallet/internal/plugin"
)

// Test Plan:
// - Create without a scanner fails as UNAVAILABLE
// - Permissions move from prompt to granted on request
// - Scan requires a granted permission and rejects unknown formats
// - Scan returns queued codes filtered by format (QR by default)
// - Cancel ends a blocked scan with SCAN_CANCELLED
// - A second concurrent scan is rejected
// - Client calls go through the plugin set and honor its permissions

func newTestPlugin(t *testing.T) (*Plugin, *Simulator) {
	t.Helper()
	sim := NewSimulator()
	p, err := Init(WithScanner(sim)).Create(context.Background(), plugin.Config{})
	require.NoError(t, err)
	return p.(*Plugin), sim
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	var pe *plugin.Error
	require.True(t, errors.As(err, &pe), "expected *plugin.Error, got %v", err)
	return pe.Code
}

func TestFactory_CreateRequiresScanner(t *testing.T) {
	_, err := Init().Create(context.Background(), plugin.Config{})
	assert.Equal(t, plugin.ErrorCodeUnavailable, errorCode(t, err))
}

func TestPlugin_Permissions(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPlugin(t)

	out, err := p.Execute(ctx, "check_permissions", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"prompt"`, string(out))

	out, err = p.Execute(ctx, "request_permissions", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"granted"`, string(out))
}

func TestPlugin_ScanRequiresPermission(t *testing.T) {
	ctx := context.Background()
	p, sim := newTestPlugin(t)
	sim.Queue("did:example:123", QRCode)

	_, err := p.Scan(ctx, ScanOptions{})
	assert.Equal(t, plugin.ErrorCodePermissionDenied, errorCode(t, err))

	_, err = p.Execute(ctx, "scan", json.RawMessage(`{"formats":["NOT_A_FORMAT"]}`))
	assert.Equal(t, plugin.ErrorCodeInvalidArgs, errorCode(t, err))
}

func TestPlugin_Scan(t *testing.T) {
	ctx := context.Background()
	p, sim := newTestPlugin(t)
	sim.SetPermission(PermissionGranted, PermissionGranted)
	sim.Queue("4006381333931", EAN13)
	sim.Queue("did:example:123", QRCode)

	out, err := p.Execute(ctx, "scan", json.RawMessage(`{"windowed":true}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"did:example:123","format":"QR_CODE"}`, string(out))

	scanned, err := p.Scan(ctx, ScanOptions{Formats: []Format{EAN13}})
	require.NoError(t, err)
	assert.Equal(t, "4006381333931", scanned.Content)
}

func TestPlugin_Cancel(t *testing.T) {
	p, sim := newTestPlugin(t)
	sim.SetPermission(PermissionGranted, PermissionGranted)

	done := make(chan error, 1)
	go func() {
		_, err := p.Scan(context.Background(), ScanOptions{})
		done <- err
	}()

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.cancel != nil
	}, time.Second, 5*time.Millisecond)

	_, err := p.Scan(context.Background(), ScanOptions{})
	assert.Equal(t, ErrorCodeScanInProgress, errorCode(t, err))

	_, err = p.Execute(context.Background(), "cancel", nil)
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.Equal(t, ErrorCodeCancelled, errorCode(t, err))
	case <-time.After(time.Second):
		t.Fatal("scan did not return after cancel")
	}
}

func TestClient_ThroughSet(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()

	newClient := func(t *testing.T, capabilities ...string) *Client {
		t.Helper()
		set := plugin.NewSet(plugin.Config{Permissions: plugin.NewPermissions(capabilities...)})
		require.NoError(t, set.Attach(ctx, Init(WithScanner(sim))))
		t.Cleanup(func() { set.Close() })
		return NewClient(set)
	}

	c := newClient(t, "barcode-scanner:default")
	state, err := c.CheckPermissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, PermissionPrompt, state)

	state, err = c.RequestPermissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, PermissionGranted, state)

	sim.Queue("did:example:456", QRCode)
	denied := newClient(t, "barcode-scanner:default", "barcode-scanner:deny-scan")
	_, err = denied.Scan(ctx, ScanOptions{Windowed: true})
	assert.Equal(t, plugin.ErrorCodePermissionDenied, errorCode(t, err))

	scanned, err := c.Scan(ctx, ScanOptions{Windowed: true})
	require.NoError(t, err)
	assert.Equal(t, Scanned{Content: "did:example:456", Format: QRCode}, scanned)
}
