package uibundle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/jangle-cms/internal/cryptoutil"
	"github.com/keithlinneman/jangle-cms/internal/log"
	"github.com/keithlinneman/jangle-cms/internal/xerrors"
)

// SSMAPI is the subset of *ssm.Client the loader calls
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// S3API is the subset of *s3.Client the loader calls
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type LoaderOptions struct {
	Logger log.Logger

	// SSM parameter holding the hex SHA256 of the current bundle
	SSMParam string

	// S3 location for bundles: s3://{bucket}/{prefix}/{hash}.tar.gz
	S3Bucket string
	S3Prefix string

	SSM SSMAPI
	S3  S3API

	// Validation runs against every fetched bundle. nil uses
	// DefaultValidationOptions().
	Validation *ValidationOptions
}

type Loader struct {
	opts       LoaderOptions
	logger     log.Logger
	validation ValidationOptions
}

// NewLoader creates a Loader talking to the given clients
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.SSMParam == "" {
		return nil, xerrors.New("SSMParam is required")
	}
	if opts.S3Bucket == "" {
		return nil, xerrors.New("S3Bucket is required")
	}
	if opts.SSM == nil || opts.S3 == nil {
		return nil, xerrors.New("SSM and S3 clients are required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	validation := DefaultValidationOptions()
	if opts.Validation != nil {
		validation = *opts.Validation
	}
	return &Loader{opts: opts, logger: opts.Logger, validation: validation}, nil
}

// NewLoaderFromConfig builds SSM and S3 clients from an aws.Config
func NewLoaderFromConfig(awsCfg aws.Config, opts LoaderOptions) (*Loader, error) {
	if opts.SSM == nil {
		opts.SSM = ssm.NewFromConfig(awsCfg)
	}
	if opts.S3 == nil {
		opts.S3 = s3.NewFromConfig(awsCfg)
	}
	return NewLoader(opts)
}

// FetchCurrentBundleHash gets the current bundle hash from SSM
func (l *Loader) FetchCurrentBundleHash(ctx context.Context) (string, error) {
	out, err := l.opts.SSM.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(l.opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", l.opts.SSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", l.opts.SSMParam)
	}

	hash := strings.ToLower(strings.TrimSpace(*out.Parameter.Value))
	if hash == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", l.opts.SSMParam)
	}
	if !cryptoutil.IsSHA256Hex(hash) {
		return "", xerrors.Newf("SSM parameter %s is not a sha256 hex digest", l.opts.SSMParam)
	}

	return hash, nil
}

// s3Key returns the S3 object key for a given hash
func (l *Loader) s3Key(hash string) string {
	if p := strings.Trim(l.opts.S3Prefix, "/"); p != "" {
		return fmt.Sprintf("%s/%s.tar.gz", p, hash)
	}
	return fmt.Sprintf("%s.tar.gz", hash)
}

// download fetches a bundle from S3 and checks it against hash
func (l *Loader) download(ctx context.Context, hash string) ([]byte, error) {
	key := l.s3Key(hash)

	l.logger.Info(ctx, "downloading admin bundle",
		"bucket", l.opts.S3Bucket,
		"key", key,
		"expected_hash", hash,
	)

	out, err := l.opts.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.opts.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get S3 object s3://%s/%s", l.opts.S3Bucket, key)
	}
	defer out.Body.Close()

	data, actualHash, err := readWithHash(out.Body, maxBundleSize)
	if err != nil {
		return nil, xerrors.Wrap(err, "download bundle")
	}

	l.logger.Info(ctx, "downloaded admin bundle",
		"bytes", len(data),
		"actual_hash", actualHash,
	)

	if !cryptoutil.HashEqual(actualHash, hash) {
		return nil, xerrors.Newf("checksum mismatch: expected %s, got %s", hash, actualHash)
	}

	return data, nil
}

// Load fetches the current release
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	hash, err := l.FetchCurrentBundleHash(ctx)
	if err != nil {
		return nil, err
	}
	return l.LoadHash(ctx, hash)
}

// LoadHash fetches, verifies, extracts and validates a bundle by hash
func (l *Loader) LoadHash(ctx context.Context, hash string) (*Snapshot, error) {
	loadedAt := time.Now().UTC()

	data, err := l.download(ctx, hash)
	if err != nil {
		return nil, err
	}

	fsys, err := extractTarGzToMem(data)
	if err != nil {
		return nil, xerrors.Wrap(err, "extract bundle")
	}

	snap, err := NewSnapshot(fsys, SourceS3)
	if err != nil {
		return nil, err
	}
	snap.Meta.SHA256 = hash
	snap.Meta.VerifiedAt = time.Now().UTC()
	snap.LoadedAt = loadedAt

	if err := ValidateSnapshot(snap, l.validation); err != nil {
		return nil, err
	}

	l.logger.Info(ctx, "extracted admin bundle",
		"hash", hash,
		"version", snap.Meta.Version,
	)

	return snap, nil
}

// LoadIntoManager fetches the current release and activates it
func (l *Loader) LoadIntoManager(ctx context.Context, mgr *Manager) error {
	snap, err := l.Load(ctx)
	if err != nil {
		return err
	}
	mgr.Set(*snap)
	return nil
}
