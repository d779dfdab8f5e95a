package storage

import (
    "bytes"
    "image"
    "image/color"
    "image/png"
    "os"
    "path/filepath"
    "strings"
    "testing"

    "github.com/disintegration/imaging"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func pngOf(t *testing.T, w, h int) *bytes.Buffer {
    t.Helper()
    img := image.NewRGBA(image.Rect(0, 0, w, h))
    for x := 0; x < w; x++ {
        img.Set(x, x%h, color.RGBA{R: 200, A: 255})
    }
    var buf bytes.Buffer
    require.NoError(t, png.Encode(&buf, img))
    return &buf
}

func TestSaveSpaceImageResizesAndWritesThumbnail(t *testing.T) {
    dir := t.TempDir()
    st, err := NewImageStore(dir, "http://cdn.test/media/", 400)
    require.NoError(t, err)

    url, err := st.SaveSpaceImage("space-1", pngOf(t, 800, 200))
    require.NoError(t, err)
    assert.True(t, strings.HasPrefix(url, "http://cdn.test/media/spaces/space-1/"))

    name := filepath.Base(url)
    full, err := imaging.Open(filepath.Join(dir, "spaces", "space-1", name))
    require.NoError(t, err)
    assert.Equal(t, 400, full.Bounds().Dx())
    assert.Equal(t, 100, full.Bounds().Dy())

    _, err = os.Stat(filepath.Join(dir, "spaces", "space-1", "thumb_"+name))
    assert.NoError(t, err)
}

func TestSaveSpaceImageRejectsNonImages(t *testing.T) {
    st, err := NewImageStore(t.TempDir(), "", 0)
    require.NoError(t, err)

    _, err = st.SaveSpaceImage("space-1", strings.NewReader("not an image"))
    assert.ErrorIs(t, err, ErrUnsupportedImage)
}
