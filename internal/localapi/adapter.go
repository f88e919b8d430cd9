package localapi

import (
	"encoding/base64"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mindmend/backend/internal/handlers"
)

const maxBodyBytes = 12 << 20

// adapt serves fn over net/http by translating to and from the API Gateway
// proxy event shapes, the same ones the deployed Lambdas receive.
func adapt(fn handlers.Func) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := toProxyRequest(r)
		if err != nil {
			http.Error(w, `{"message":"Request body could not be read","data":{},"code":"INVALID_REQUEST"}`, http.StatusBadRequest)
			return
		}

		resp, err := fn(r.Context(), req)
		if err != nil {
			http.Error(w, `{"message":"An unexpected error occurred","data":{},"code":"INTERNAL_ERROR"}`, http.StatusInternalServerError)
			return
		}
		writeProxyResponse(w, resp)
	}
}

func toProxyRequest(r *http.Request) (events.APIGatewayProxyRequest, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return events.APIGatewayProxyRequest{}, err
	}

	req := events.APIGatewayProxyRequest{
		Resource:                        routePattern(r),
		Path:                            r.URL.Path,
		HTTPMethod:                      r.Method,
		Headers:                         map[string]string{},
		MultiValueHeaders:               map[string][]string{},
		QueryStringParameters:           map[string]string{},
		MultiValueQueryStringParameters: map[string][]string{},
		PathParameters:                  map[string]string{},
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID:  middleware.GetReqID(r.Context()),
			HTTPMethod: r.Method,
			Path:       r.URL.Path,
			Identity:   events.APIGatewayRequestIdentity{SourceIP: r.RemoteAddr},
		},
	}
	for k, v := range r.Header {
		req.Headers[k] = strings.Join(v, ",")
		req.MultiValueHeaders[k] = v
	}
	for k, v := range r.URL.Query() {
		req.QueryStringParameters[k] = v[len(v)-1]
		req.MultiValueQueryStringParameters[k] = v
	}
	if rc := chi.RouteContext(r.Context()); rc != nil {
		for i, k := range rc.URLParams.Keys {
			if k != "*" {
				req.PathParameters[k] = rc.URLParams.Values[i]
			}
		}
	}

	if binaryBody(r.Header.Get("Content-Type"), b) {
		req.Body = base64.StdEncoding.EncodeToString(b)
		req.IsBase64Encoded = true
	} else {
		req.Body = string(b)
	}
	return req, nil
}

// binaryBody mirrors API Gateway's binary media types: multipart uploads and
// anything that is not valid UTF-8 travel base64 encoded.
func binaryBody(contentType string, b []byte) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mediaType, "multipart/") {
		return true
	}
	return !utf8.Valid(b)
}

func writeProxyResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	for k, vs := range resp.MultiValueHeaders {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}

	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		if b, err := base64.StdEncoding.DecodeString(resp.Body); err == nil {
			body = b
		}
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
