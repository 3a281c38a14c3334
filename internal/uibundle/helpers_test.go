package uibundle

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/keithlinneman/jangle-cms/internal/cryptoutil"
	"github.com/keithlinneman/jangle-cms/internal/log"
)

const (
	testSSMParam = "/jangle/admin/bundle-hash"
	testBucket   = "jangle-bundles"
	testS3Prefix = "admin"
)

func sha256hex(data []byte) string { return cryptoutil.SHA256Hex(data) }

// makeTarGz builds a .tar.gz archive in memory from path -> content pairs.
func makeTarGz(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)

	for name, content := range entries {
		if err := tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o640,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}); err != nil {
			t.Fatalf("write tar header %q: %v", name, err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("write tar content %q: %v", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

// makeTarGzHeader builds a .tar.gz holding a single header with no body.
func makeTarGzHeader(t *testing.T, hdr *tar.Header) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("write tar header: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

func validBundle(version string) map[string]string {
	return map[string]string{
		"index.html":  "<html><head><base href=\"/\"></head><body></body></html>",
		"main.js":     "console.log('jangle')",
		"style.css":   "body{}",
		"bundle.json": `{"version":"` + version + `"}`,
	}
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	calls   int
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

type fakeSSM struct {
	mu    sync.Mutex
	value *string
	err   error
}

func (f *fakeSSM) set(v string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = aws.String(v)
	f.err = err
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Name: in.Name, Value: f.value}}, nil
}

type fixture struct {
	s3     *fakeS3
	ssm    *fakeSSM
	loader *Loader
	mgr    *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{s3: newFakeS3(), ssm: &fakeSSM{}, mgr: NewManager()}
	l, err := NewLoader(LoaderOptions{
		Logger:   log.Nop(),
		SSMParam: testSSMParam,
		S3Bucket: testBucket,
		S3Prefix: testS3Prefix,
		SSM:      f.ssm,
		S3:       f.s3,
	})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	f.loader = l
	return f
}

// publish stores a bundle in s3 and points ssm at it
func (f *fixture) publish(t *testing.T, files map[string]string) string {
	t.Helper()
	data := makeTarGz(t, files)
	hash := sha256hex(data)
	f.s3.put(testBucket+"/"+testS3Prefix+"/"+hash+".tar.gz", data)
	f.ssm.set(hash, nil)
	return hash
}
