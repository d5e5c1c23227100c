package books

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"

	"giralibros/internal/auth"
)

const (
	maxCoverBytes  = 5 << 20
	coverMaxWidth  = 600
	coverMaxHeight = 800
	coverQuality   = 80
)

// uploadCover accepts a jpeg/png/webp photo, downsizes it to the cover
// box and stores it re-encoded as webp. A successful upload bumps the
// book's activity timestamp, which floats it up in the listing.
func (h *Handler) uploadCover(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	b, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if b == nil || !b.Active || b.UserID != claims.UserID {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	fileHeader, err := c.FormFile("cover")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cover file required"})
		return
	}
	if fileHeader.Size > maxCoverBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cover too large (max 5MB)"})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cover unreadable"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxCoverBytes+1))
	if err != nil || len(data) == 0 || len(data) > maxCoverBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cover unreadable"})
		return
	}

	img, err := decodeCover(data, fileHeader.Filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported image format (jpeg, png or webp)"})
		return
	}

	img = imaging.Fit(img, coverMaxWidth, coverMaxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: coverQuality}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encode failed"})
		return
	}

	if err := os.MkdirAll(h.CoverDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store failed"})
		return
	}
	name := fmt.Sprintf("book-%d.webp", id)
	if err := os.WriteFile(filepath.Join(h.CoverDir, name), buf.Bytes(), 0o644); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store failed"})
		return
	}

	ok, err = h.Repo.SetCover(c.Request.Context(), id, claims.UserID, name, time.Now().UTC())
	if err != nil || !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cover updated"})
}

func (h *Handler) serveCover(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	b, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if b == nil || b.CoverPath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cover"})
		return
	}

	c.Header("Content-Type", "image/webp")
	c.File(filepath.Join(h.CoverDir, b.CoverPath))
}

// decodeCover sniffs the payload's media type and falls back to the
// filename extension when detection is inconclusive.
func decodeCover(data []byte, filename string) (image.Image, error) {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	ct := http.DetectContentType(head)

	switch {
	case strings.Contains(ct, "jpeg"):
		return jpeg.Decode(bytes.NewReader(data))
	case strings.Contains(ct, "png"):
		return png.Decode(bytes.NewReader(data))
	case strings.Contains(ct, "webp"):
		return webp.Decode(bytes.NewReader(data))
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return jpeg.Decode(bytes.NewReader(data))
	case ".png":
		return png.Decode(bytes.NewReader(data))
	case ".webp":
		return webp.Decode(bytes.NewReader(data))
	}

	return nil, fmt.Errorf("unsupported image type %s", ct)
}
