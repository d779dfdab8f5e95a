// Package storage saves space photos on local disk and serves their public
// URLs.
package storage

import (
    "errors"
    "fmt"
    "image"
    "io"
    "os"
    "path/filepath"
    "strings"

    "github.com/disintegration/imaging"
    "github.com/google/uuid"
)

// ErrUnsupportedImage is returned for uploads that are not JPEG, PNG or GIF.
var ErrUnsupportedImage = errors.New("unsupported image format")

// ImageStore writes resized images under Dir and returns URLs under BaseURL.
type ImageStore struct {
    Dir     string
    BaseURL string
    MaxEdge int
}

// NewImageStore creates dir if needed.
func NewImageStore(dir, baseURL string, maxEdge int) (*ImageStore, error) {
    if dir == "" {
        dir = "media"
    }
    if baseURL == "" {
        baseURL = "/media"
    }
    if maxEdge <= 0 {
        maxEdge = 1600
    }
    if err := os.MkdirAll(dir, 0o755); err != nil {
        return nil, fmt.Errorf("create media dir: %w", err)
    }
    return &ImageStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/"), MaxEdge: maxEdge}, nil
}

// SaveSpaceImage decodes src, fits it within MaxEdge, writes a full image
// and a 300px wide thumbnail and returns the URL of the full image.
func (s *ImageStore) SaveSpaceImage(spaceID string, src io.Reader) (string, error) {
    img, err := imaging.Decode(src, imaging.AutoOrientation(true))
    if err != nil {
        if errors.Is(err, image.ErrFormat) {
            return "", ErrUnsupportedImage
        }
        return "", fmt.Errorf("decode image: %w", err)
    }

    b := img.Bounds()
    if b.Dx() > s.MaxEdge || b.Dy() > s.MaxEdge {
        img = imaging.Fit(img, s.MaxEdge, s.MaxEdge, imaging.Lanczos)
    }

    dir := filepath.Join(s.Dir, "spaces", filepath.Base(spaceID))
    if err := os.MkdirAll(dir, 0o755); err != nil {
        return "", fmt.Errorf("create space dir: %w", err)
    }
    name := uuid.NewString() + ".jpg"
    if err := imaging.Save(img, filepath.Join(dir, name), imaging.JPEGQuality(85)); err != nil {
        return "", fmt.Errorf("save image: %w", err)
    }
    thumb := imaging.Resize(img, 300, 0, imaging.Lanczos)
    if err := imaging.Save(thumb, filepath.Join(dir, "thumb_"+name), imaging.JPEGQuality(80)); err != nil {
        return "", fmt.Errorf("save thumbnail: %w", err)
    }
    return fmt.Sprintf("%s/spaces/%s/%s", s.BaseURL, filepath.Base(spaceID), name), nil
}
