// Package storage signs object-storage URLs for post images. Clients upload
// and download directly against the bucket; bytes never pass through the API.
package storage

import (
	"context"
	"strings"
	"time"

	"backend-socialpost/internal/shared/outbound"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/google/uuid"
)

// URLExpiry bounds both upload and download URLs.
const URLExpiry = time.Hour

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

type Options struct {
	Bucket    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
}

type Presigner struct {
	bucket string
	client *s3.PresignClient
	policy outbound.Policy
}

// New builds the presign client once; MinIO needs path-style addressing.
func New(ctx context.Context, opts Options, policy outbound.Policy) (*Presigner, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &Presigner{
		bucket: opts.Bucket,
		client: s3.NewPresignClient(client),
		policy: policy,
	}, nil
}

// PresignPut returns a URL that accepts a single PUT of key. A non-empty
// contentType is part of the signature, so the upload must send that exact
// Content-Type header.
func (p *Presigner) PresignPut(ctx context.Context, key, contentType string) (string, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}
	optFns := []func(*s3.PresignOptions){s3.WithPresignExpires(URLExpiry)}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
		// The presigner drops the serialized Content-Type; set it after
		// serialization so it lands in X-Amz-SignedHeaders.
		optFns = append(optFns, s3.WithPresignClientFromClientOptions(func(o *s3.Options) {
			o.APIOptions = append(o.APIOptions, smithyhttp.SetHeaderValue("Content-Type", contentType))
		}))
	}

	var url string
	err := p.policy.Do(ctx, func(ctx context.Context) error {
		req, err := presignPutObject(p.client, ctx, in, optFns...)
		if err != nil {
			return err
		}
		url = req.URL
		return nil
	})
	return url, err
}

func (p *Presigner) PresignGet(ctx context.Context, key string) (string, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}

	var url string
	err := p.policy.Do(ctx, func(ctx context.Context) error {
		req, err := presignGetObject(p.client, ctx, in, s3.WithPresignExpires(URLExpiry))
		if err != nil {
			return err
		}
		url = req.URL
		return nil
	})
	return url, err
}

// NewKey prefixes fileName with a random hex id so uploads never collide.
func NewKey(fileName string) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + "-" + fileName
}
