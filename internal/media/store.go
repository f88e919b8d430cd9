package media

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mindmend/backend/internal/apierr"
)

// S3API is the subset of the S3 client used here.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ProfileImages stores resized profile pictures under profile_images/.
type ProfileImages struct {
	client  S3API
	bucket  string
	baseURL string
}

func NewProfileImages(client S3API, bucket, baseURL string) *ProfileImages {
	return &ProfileImages{client: client, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/")}
}

// Save resizes data, uploads it for userID and returns its public URL.
// Undecodable input is a validation error on image.
func (p *ProfileImages) Save(ctx context.Context, userID, filename string, data []byte) (string, error) {
	resized, err := Resize(data, ProfileSize)
	if err != nil {
		return "", apierr.FieldError("Failed to process image.", "image", err.Error())
	}

	key := fmt.Sprintf("profile_images/%s/%s", userID, objectName(filename, resized.Ext))
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(resized.Data),
		ContentType: aws.String(resized.ContentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload profile image: %w", err)
	}
	return p.baseURL + "/" + key, nil
}
