package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"
)

func blackFrame(t *testing.T) gocv.Mat {
	t.Helper()
	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { _ = img.Close() })
	return img
}

func TestReadLinesReadFile(t *testing.T) {
	t.Run("crlf and blank lines handled", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "names.txt")
		assert.NoError(t, os.WriteFile(path, []byte("bottle\r\ncan\n\nplastic bag\n"), 0o644))

		lines, err := ReadLinesReadFile(path)
		assert.NoError(t, err)
		assert.Equal(t, []string{"bottle", "can", "plastic bag"}, lines)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadLinesReadFile(filepath.Join(t.TempDir(), "absent.txt"))
		assert.Error(t, err)
	})
}

func TestEngineLifecycle(t *testing.T) {
	t.Run("missing model file", func(t *testing.T) {
		e := NewObjectEngine()
		err := e.LoadModel(filepath.Join(t.TempDir(), "absent.onnx"), nil)
		assert.ErrorIs(t, err, ErrModelUnavailable)
		assert.False(t, e.Loaded())
	})

	t.Run("unloaded engine refuses inference", func(t *testing.T) {
		e := NewPoseEngine()
		img := blackFrame(t)
		_, err := e.InferPose(img, 0.1, 0.5)
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})

	t.Run("destroy resets state", func(t *testing.T) {
		e := NewClassifyEngine()
		e.Destroy()
		assert.False(t, e.Loaded())
	})
}
