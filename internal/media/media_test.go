package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindmend/backend/internal/apierr"
)

func sample(t *testing.T, format string, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	switch format {
	case "png":
		require.NoError(t, png.Encode(&buf, img))
	default:
		require.NoError(t, jpeg.Encode(&buf, img, nil))
	}
	return buf.Bytes()
}

func TestResizeKeepsFormat(t *testing.T) {
	for _, format := range []string{"png", "jpeg"} {
		t.Run(format, func(t *testing.T) {
			out, err := Resize(sample(t, format, 640, 480), ProfileSize)
			require.NoError(t, err)
			assert.Equal(t, format, out.Format)

			cfg, got, err := image.DecodeConfig(bytes.NewReader(out.Data))
			require.NoError(t, err)
			assert.Equal(t, format, got)
			assert.Equal(t, 200, cfg.Width)
			assert.Equal(t, 200, cfg.Height)
		})
	}
}

func TestResizeRejectsGarbage(t *testing.T) {
	_, err := Resize([]byte("definitely not an image"), ProfileSize)
	assert.ErrorContains(t, err, "decode image")
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "me.png", objectName("me.jpeg", ".png"))
	assert.Equal(t, "me.jpg", objectName(`C:\Users\me.jpg`, ".jpg"))
	assert.Equal(t, "profile.jpg", objectName("", ".jpg"))
}

type fakeS3 struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.in = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestSaveUploadsResizedImage(t *testing.T) {
	client := &fakeS3{}
	p := NewProfileImages(client, "media", "https://cdn.example.com/")

	url, err := p.Save(context.Background(), "u1", "avatar.png", sample(t, "png", 50, 50))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/profile_images/u1/avatar.png", url)
	assert.Equal(t, "media", aws.ToString(client.in.Bucket))
	assert.Equal(t, "image/png", aws.ToString(client.in.ContentType))
	assert.NotEmpty(t, client.body)
}

func TestSaveInvalidImageIsValidationError(t *testing.T) {
	p := NewProfileImages(&fakeS3{}, "media", "https://cdn.example.com")
	_, err := p.Save(context.Background(), "u1", "x.png", []byte("nope"))
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeValidation))
	assert.Contains(t, apierr.From(err).Fields, "image")
}

func TestSaveUploadFailure(t *testing.T) {
	p := NewProfileImages(&fakeS3{err: errors.New("access denied")}, "media", "https://cdn.example.com")
	_, err := p.Save(context.Background(), "u1", "x.png", sample(t, "png", 10, 10))
	assert.ErrorContains(t, err, "access denied")
	assert.False(t, apierr.Is(err, apierr.CodeValidation))
}

// hugeCanvasPNG is a few bytes of PNG whose header claims w x h pixels.
func hugeCanvasPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
	b := buf.Bytes()

	// IHDR data follows the 8 byte signature, 4 byte length and 4 byte type.
	binary.BigEndian.PutUint32(b[16:20], w)
	binary.BigEndian.PutUint32(b[20:24], h)
	binary.BigEndian.PutUint32(b[29:33], crc32.ChecksumIEEE(b[12:29]))
	return b
}

func TestResizeRejectsOversizeCanvas(t *testing.T) {
	src := hugeCanvasPNG(t, 12000, 12000)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, 12000, cfg.Width)

	_, err = Resize(src, ProfileSize)
	assert.ErrorIs(t, err, ErrTooLarge)

	p := NewProfileImages(&fakeS3{}, "media", "https://cdn.example.com")
	_, err = p.Save(context.Background(), "u1", "bomb.png", src)
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeValidation))
	assert.Contains(t, apierr.From(err).Fields, "image")
}
