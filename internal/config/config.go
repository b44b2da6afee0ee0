// Package config defines the service configuration and its layered loader.
package config

// Backends accepted by Config.Backend.
const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Backend selects the classifier: "onnx" runs the model in process,
	// "remote" calls a TensorFlow Serving style endpoint.
	Backend string `koanf:"backend"`
	// ModelPath and MetadataPath locate the ONNX model and its optional metadata JSON.
	ModelPath    string `koanf:"model_path"`
	MetadataPath string `koanf:"metadata_path"`
	// ONNXLibraryPath points at the onnxruntime shared library.
	ONNXLibraryPath string `koanf:"onnx_library_path"`
	// RemoteURL is the model URL of the serving endpoint.
	RemoteURL       string `koanf:"remote_url"`
	RemoteTimeoutMS int    `koanf:"remote_timeout_ms"`
	// LoadAttempts and LoadRetryMS control background model loading.
	LoadAttempts int `koanf:"load_attempts"`
	LoadRetryMS  int `koanf:"load_retry_ms"`

	// Temperature is the default softmax temperature.
	Temperature float64 `koanf:"temperature"`
	// Resample names the downscaling method: area, bilinear, nearest, lanczos3, catmullrom.
	Resample string `koanf:"resample"`

	// MaxUploadBytes bounds request bodies.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`
	// MaxCanvasPixels bounds the drawing surface area.
	MaxCanvasPixels int `koanf:"max_canvas_pixels"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		Addr:            ":8080",
		Backend:         BackendONNX,
		ModelPath:       "models/digits.onnx",
		RemoteURL:       "http://localhost:8501/v1/models/digits",
		RemoteTimeoutMS: 5000,
		LoadAttempts:    3,
		LoadRetryMS:     2000,
		Temperature:     1.0,
		Resample:        "area",
		MaxUploadBytes:  10 << 20,
		MaxCanvasPixels: 4096 * 4096,
	}
}
