package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewMockForTests wires a *Store to an in-memory HTTP transport standing in
// for S3. It implements only the verbs the Store interface exercises: Head,
// Get, Put, Delete, and ListObjectsV2.
func NewMockForTests() *Store {
	transport := &fakeS3{objects: make(map[string]fakeObject)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: transport}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{client: client, bucket: "mock-bucket", presign: s3.NewPresignClient(client)}
}

type fakeObject struct {
	body        []byte
	contentType string
}

type fakeS3 struct {
	objects map[string]fakeObject
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	// Path style: /<bucket>/<key>.
	_, key, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")

	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		return f.list(req.URL.Query().Get("prefix")), nil
	case req.Method == http.MethodHead:
		return f.head(key), nil
	case req.Method == http.MethodGet:
		return f.get(key), nil
	case req.Method == http.MethodPut:
		return f.put(key, req), nil
	case req.Method == http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, nil, nil), nil
	}
	return respond(http.StatusNotImplemented, nil, nil), nil
}

func respond(status int, body []byte, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     header,
	}
}

func (f *fakeS3) list(prefix string) *http.Response {
	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	var xml strings.Builder
	xml.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, key := range keys {
		fmt.Fprintf(&xml, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>",
			key, len(f.objects[key].body))
	}
	xml.WriteString(`</ListBucketResult>`)
	return respond(http.StatusOK, []byte(xml.String()), http.Header{"Content-Type": {"application/xml"}})
}

func (f *fakeS3) head(key string) *http.Response {
	obj, ok := f.objects[key]
	if !ok {
		return respond(http.StatusNotFound, nil, nil)
	}
	return respond(http.StatusOK, nil, objectHeader(obj))
}

func (f *fakeS3) get(key string) *http.Response {
	obj, ok := f.objects[key]
	if !ok {
		return respond(http.StatusNotFound, nil, nil)
	}
	return respond(http.StatusOK, obj.body, objectHeader(obj))
}

func (f *fakeS3) put(key string, req *http.Request) *http.Response {
	body, _ := io.ReadAll(req.Body)
	if decoded, ok := decodeAWSChunked(body); ok {
		body = decoded
	}
	// First write wins, mirroring the create-only Head check in Store.Put.
	if _, exists := f.objects[key]; !exists {
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type")}
	}
	return respond(http.StatusOK, nil, http.Header{"ETag": {`"etag"`}})
}

func objectHeader(obj fakeObject) http.Header {
	return http.Header{
		"Content-Length": {fmt.Sprintf("%d", len(obj.body))},
		"Content-Type":   {obj.contentType},
		"ETag":           {`"etag"`},
		"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
	}
}

// decodeAWSChunked unwraps a single-chunk aws-chunked payload of the form
// <hex-size>\r\n<body>\r\n0\r\n....
func decodeAWSChunked(raw []byte) ([]byte, bool) {
	parts := strings.Split(string(raw), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	var size int64
	if _, err := fmt.Sscanf(parts[0], "%x", &size); err != nil {
		return nil, false
	}
	if int64(len(parts[1])) != size || parts[2] != "0" {
		return nil, false
	}
	return []byte(parts[1]), true
}
