package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/eidwallet/eidwallet/internal/plugins/barcode"
)

var (
	ErrScannerUnavailable = errors.New("barcode scanner is not available")
	ErrPermissionDenied   = errors.New("camera permission denied")
)

// Scanner is the part of the barcode-scanner plugin the scan flow needs
type Scanner interface {
	CheckPermissions(ctx context.Context) (barcode.PermissionState, error)
	RequestPermissions(ctx context.Context) (barcode.PermissionState, error)
	Scan(ctx context.Context, opts barcode.ScanOptions) (barcode.Scanned, error)
}

// ScanFlow adds identities from scanned QR codes
type ScanFlow struct {
	scanner Scanner
	manager *Manager
}

// NewScanFlow creates a scan flow. scanner may be nil on platforms without
// a camera.
func NewScanFlow(scanner Scanner, manager *Manager) *ScanFlow {
	return &ScanFlow{scanner: scanner, manager: manager}
}

// Available reports whether a scanner is attached
func (f *ScanFlow) Available() bool {
	return f.scanner != nil
}

// Run asks for camera permission when needed, scans one QR code and adds
// the identity it encodes
func (f *ScanFlow) Run(ctx context.Context) (Identity, error) {
	if f.scanner == nil {
		return Identity{}, ErrScannerUnavailable
	}

	state, err := f.scanner.CheckPermissions(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrScannerUnavailable, err)
	}
	if state == barcode.PermissionPrompt || state == barcode.PermissionPromptRationale || state == barcode.PermissionDenied {
		state, err = f.scanner.RequestPermissions(ctx)
		if err != nil {
			return Identity{}, fmt.Errorf("failed to request camera permission: %w", err)
		}
	}
	if state != barcode.PermissionGranted {
		return Identity{}, ErrPermissionDenied
	}

	scanned, err := f.scanner.Scan(ctx, barcode.ScanOptions{
		Formats:  []barcode.Format{barcode.QRCode},
		Windowed: true,
	})
	if err != nil {
		return Identity{}, err
	}

	id, err := ParseQR(scanned.Content)
	if err != nil {
		return Identity{}, err
	}
	return f.manager.Add(id)
}

// ParseQR decodes QR content: either a bare DID or a JSON object with
// did and alsoKnownAs
func ParseQR(content string) (Identity, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "{") {
		var id Identity
		if err := json.Unmarshal([]byte(content), &id); err != nil {
			return Identity{}, fmt.Errorf("failed to decode identity QR code: %w", err)
		}
		return id, nil
	}
	if !strings.HasPrefix(content, "did:") {
		return Identity{}, fmt.Errorf("%w: %q", ErrInvalidDID, content)
	}
	return Identity{DID: content}, nil
}
