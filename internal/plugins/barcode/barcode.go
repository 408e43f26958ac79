// Package barcode scans barcodes with the device camera on mobile platforms.
package barcode

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/go-openapi/spec"
	"github.com/rs/zerolog"

	"github.com/eidwallet/eidwallet/internal/plugin"
)

const (
	// Name is the plugin identifier
	Name = "barcode-scanner"
	// Version is the plugin version
	Version = "v2.2.0"

	// ErrorCodeCancelled indicates the scan was cancelled before a code was read
	ErrorCodeCancelled = "SCAN_CANCELLED"
	// ErrorCodeScanInProgress indicates another scan is already running
	ErrorCodeScanInProgress = "SCAN_IN_PROGRESS"
)

// Format is a barcode symbology
type Format string

const (
	QRCode     Format = "QR_CODE"
	UPCA       Format = "UPC_A"
	UPCE       Format = "UPC_E"
	EAN8       Format = "EAN_8"
	EAN13      Format = "EAN_13"
	Code39     Format = "CODE_39"
	Code93     Format = "CODE_93"
	Code128    Format = "CODE_128"
	Codabar    Format = "CODABAR"
	ITF        Format = "ITF"
	Aztec      Format = "AZTEC"
	DataMatrix Format = "DATA_MATRIX"
	PDF417     Format = "PDF_417"
)

// Formats lists every supported symbology
var Formats = []Format{QRCode, UPCA, UPCE, EAN8, EAN13, Code39, Code93, Code128, Codabar, ITF, Aztec, DataMatrix, PDF417}

// PermissionState is the camera permission state
type PermissionState string

const (
	PermissionGranted         PermissionState = "granted"
	PermissionDenied          PermissionState = "denied"
	PermissionPrompt          PermissionState = "prompt"
	PermissionPromptRationale PermissionState = "prompt-with-rationale"
)

// ScanOptions configures a scan
type ScanOptions struct {
	Formats  []Format `json:"formats,omitempty"`
	Windowed bool     `json:"windowed"`
	// CameraDirection is "back" or "front"
	CameraDirection string `json:"cameraDirection,omitempty"`
}

// Scanned is a decoded barcode
type Scanned struct {
	Content string `json:"content"`
	Format  Format `json:"format"`
}

// ErrCancelled is returned by scanners when a scan is cancelled
var ErrCancelled = errors.New("scan cancelled")

// Scanner is the platform bridge to the camera
type Scanner interface {
	CheckPermissions(ctx context.Context) (PermissionState, error)
	RequestPermissions(ctx context.Context) (PermissionState, error)

	// Scan blocks until a barcode matching opts is read or ctx is done
	Scan(ctx context.Context, opts ScanOptions) (Scanned, error)
}

// Option configures the barcode factory
type Option func(*factory)

// WithScanner sets the platform scanner
func WithScanner(s Scanner) Option {
	return func(f *factory) {
		f.scanner = s
	}
}

type factory struct {
	scanner Scanner
}

// Init returns the barcode-scanner plugin factory. Without a scanner the
// plugin cannot be attached.
func Init(opts ...Option) plugin.Factory {
	f := &factory{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *factory) Name() string    { return Name }
func (f *factory) Version() string { return Version }

func (f *factory) Create(ctx context.Context, config plugin.Config) (plugin.Plugin, error) {
	if f.scanner == nil {
		return nil, plugin.Unavailable(Name, "no camera scanner")
	}
	return &Plugin{
		scanner: f.scanner,
		logger:  config.Logger.With().Str("plugin", Name).Logger(),
	}, nil
}

func (f *factory) Methods() []plugin.MethodMetadata {
	formats := make([]any, len(Formats))
	for i, format := range Formats {
		formats[i] = string(format)
	}
	formatSchema := spec.StringProperty()
	formatSchema.Enum = formats

	scan := &spec.Schema{}
	scan.Typed("object", "")
	scan.SetProperty("formats", *spec.ArrayProperty(formatSchema))
	scan.SetProperty("windowed", *spec.BooleanProperty())
	scan.SetProperty("cameraDirection", *spec.StringProperty())

	scanned := &spec.Schema{}
	scanned.Typed("object", "")
	scanned.SetProperty("content", *spec.StringProperty())
	scanned.SetProperty("format", *formatSchema)

	return []plugin.MethodMetadata{
		{Name: "check_permissions", Description: "Report the camera permission state", Returns: spec.StringProperty()},
		{Name: "request_permissions", Description: "Ask the user for camera access", Returns: spec.StringProperty()},
		{
			Name:        "scan",
			Description: "Scan a single barcode",
			Parameters:  scan,
			Returns:     scanned,
			Errors: []plugin.ErrorMetadata{
				{Code: ErrorCodeCancelled, Description: "the scan was cancelled"},
				{Code: ErrorCodeScanInProgress, Description: "another scan is running"},
				{Code: plugin.ErrorCodePermissionDenied, Description: "camera access was denied"},
			},
		},
		{Name: "cancel", Description: "Cancel the running scan"},
	}
}

// Plugin is the attached barcode-scanner plugin. At most one scan runs at a time.
type Plugin struct {
	scanner Scanner
	logger  zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (p *Plugin) Name() string    { return Name }
func (p *Plugin) Version() string { return Version }

// Execute implements plugin.Plugin
func (p *Plugin) Execute(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	switch method {
	case "check_permissions":
		state, err := p.CheckPermissions(ctx)
		if err != nil {
			return nil, err
		}
		return plugin.Result(state)

	case "request_permissions":
		state, err := p.RequestPermissions(ctx)
		if err != nil {
			return nil, err
		}
		return plugin.Result(state)

	case "scan":
		var opts ScanOptions
		if err := plugin.DecodeArgs(params, &opts); err != nil {
			return nil, err
		}
		scanned, err := p.Scan(ctx, opts)
		if err != nil {
			return nil, err
		}
		return plugin.Result(scanned)

	case "cancel":
		p.Cancel()
		return plugin.Result(nil)

	default:
		return nil, plugin.MethodNotFound(Name, method)
	}
}

// CheckPermissions reports the camera permission state
func (p *Plugin) CheckPermissions(ctx context.Context) (PermissionState, error) {
	return p.scanner.CheckPermissions(ctx)
}

// RequestPermissions asks the user for camera access
func (p *Plugin) RequestPermissions(ctx context.Context) (PermissionState, error) {
	return p.scanner.RequestPermissions(ctx)
}

// Scan reads one barcode. Formats default to QR codes only.
func (p *Plugin) Scan(ctx context.Context, opts ScanOptions) (Scanned, error) {
	for _, format := range opts.Formats {
		if !validFormat(format) {
			return Scanned{}, &plugin.Error{
				Code:    plugin.ErrorCodeInvalidArgs,
				Message: "unsupported barcode format",
				Details: string(format),
			}
		}
	}
	if len(opts.Formats) == 0 {
		opts.Formats = []Format{QRCode}
	}

	state, err := p.scanner.CheckPermissions(ctx)
	if err != nil {
		return Scanned{}, err
	}
	if state != PermissionGranted {
		return Scanned{}, &plugin.Error{
			Code:    plugin.ErrorCodePermissionDenied,
			Message: "camera permission not granted",
			Details: string(state),
		}
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return Scanned{}, &plugin.Error{Code: ErrorCodeScanInProgress, Message: "a scan is already running"}
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.cancel = nil
		p.mu.Unlock()
		cancel()
	}()

	scanned, err := p.scanner.Scan(ctx, opts)
	if err != nil {
		if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
			return Scanned{}, &plugin.Error{Code: ErrorCodeCancelled, Message: "scan cancelled"}
		}
		return Scanned{}, err
	}

	p.logger.Debug().Str("format", string(scanned.Format)).Msg("barcode scanned")
	return scanned, nil
}

// Cancel stops the running scan, if any
func (p *Plugin) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

func validFormat(format Format) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}
