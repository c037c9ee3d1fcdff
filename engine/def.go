package engine

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

const (
	UNREGISTERED = 0x0001
	REGISTERED   = 0x0002
	IDLE         = 0x0003
	BUSY         = 0x0004
)

// ErrModelUnavailable means the model file could not be loaded or the engine
// has no model. Callers route to their fallback path on it; it is never fatal.
var ErrModelUnavailable = errors.New("model unavailable")

// ReadLinesReadFile reads one class name per line, tolerating Windows CRLF
// endings and skipping blank lines.
func ReadLinesReadFile(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := strings.Split(string(b), "\n")
	var lines []string
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

// netModel is the shared lifecycle around a gocv DNN net:
// REGISTERED -> (LoadModel) -> IDLE <-> BUSY -> (Destroy) -> UNREGISTERED.
type netModel struct {
	mu        sync.Mutex
	ModelPath string
	net       gocv.Net
	inputSize int
	state     int
}

func (m *netModel) load(modelPath string, inputSize int) error {
	if _, err := os.Stat(modelPath); err != nil {
		return fmt.Errorf("%w: %s", ErrModelUnavailable, modelPath)
	}
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return fmt.Errorf("%w: failed to read %s", ErrModelUnavailable, modelPath)
	}
	_ = net.SetPreferableBackend(gocv.NetBackendDefault)
	_ = net.SetPreferableTarget(gocv.NetTargetCPU)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.net = net
	m.ModelPath = modelPath
	m.inputSize = inputSize
	m.state = IDLE
	return nil
}

// Loaded reports whether the engine holds a usable model.
func (m *netModel) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == IDLE || m.state == BUSY
}

// Destroy releases the net and returns the engine to UNREGISTERED.
func (m *netModel) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == IDLE || m.state == BUSY {
		_ = m.net.Close()
	}
	m.ModelPath = ""
	m.inputSize = 0
	m.state = UNREGISTERED
}

// forward runs one blob through the net and returns the raw output together
// with the input->frame scale factors. The caller owns the returned Mat.
func (m *netModel) forward(img gocv.Mat) (gocv.Mat, float32, float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != IDLE {
		return gocv.Mat{}, 0, 0, ErrModelUnavailable
	}
	m.state = BUSY
	defer func() { m.state = IDLE }()

	size := image.Pt(m.inputSize, m.inputSize)
	blob := gocv.BlobFromImage(img, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	out := m.net.Forward("")

	scaleX := float32(img.Cols()) / float32(m.inputSize)
	scaleY := float32(img.Rows()) / float32(m.inputSize)
	return out, scaleX, scaleY, nil
}
