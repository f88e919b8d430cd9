package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/mindmend/backend/internal/apierr"
)

const maxUploadBytes = 10 << 20

func body(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, apierr.Invalid("Request body is not valid base64", err)
	}
	return b, nil
}

// decodeJSON reads the request body into dst. An empty body leaves dst
// untouched. Type mismatches are reported against the offending field.
func decodeJSON(req events.APIGatewayProxyRequest, msg string, dst any) error {
	b, err := body(req)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}

	if err := json.Unmarshal(b, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return apierr.FieldError(msg, typeErr.Field, fmt.Sprintf("Expected a %s.", typeErr.Type))
		}
		return apierr.Invalid("Invalid JSON in request body", err)
	}
	return nil
}

// header looks name up case-insensitively.
func header(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	for k, v := range req.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

type formFile struct {
	Filename string
	Data     []byte
}

// form is a parsed multipart/form-data body.
type form struct {
	Values map[string]string
	Files  map[string]formFile
}

// parseMultipart returns (nil, nil) when the request is not multipart.
func parseMultipart(req events.APIGatewayProxyRequest) (*form, error) {
	mediaType, params, err := mime.ParseMediaType(header(req, "Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return nil, nil
	}
	b, err := body(req)
	if err != nil {
		return nil, err
	}

	f := &form{Values: map[string]string{}, Files: map[string]formFile{}}
	r := multipart.NewReader(bytes.NewReader(b), params["boundary"])
	for {
		part, err := r.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apierr.Invalid("Malformed multipart body", err)
		}
		data, err := io.ReadAll(io.LimitReader(part, maxUploadBytes+1))
		if err != nil {
			return nil, apierr.Invalid("Malformed multipart body", err)
		}
		if len(data) > maxUploadBytes {
			return nil, apierr.FieldError("Failed to update profile.", part.FormName(), "File is too large.")
		}
		if part.FileName() != "" {
			f.Files[part.FormName()] = formFile{Filename: part.FileName(), Data: data}
		} else {
			f.Values[part.FormName()] = string(data)
		}
	}
	return f, nil
}
