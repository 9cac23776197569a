package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/DoyleJ11/duel-backend/internal/match"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Config struct {
	Bucket          string
	Endpoint        string // S3-compatible endpoint, e.g. R2 or MinIO; empty uses AWS
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 writes one JSON transcript object per finished match.
type S3 struct {
	client putter
	bucket string
	prefix string
}

// Transcript is the archived form of a match.
type Transcript struct {
	MatchID    string    `json:"matchId"`
	SideA      string    `json:"sideA"`
	SideB      string    `json:"sideB"`
	Winner     string    `json:"winner,omitempty"`
	Reason     string    `json:"reason"`
	Turns      int       `json:"turns"`
	Log        []string  `json:"log"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

func New(ctx context.Context, cfg Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket not set")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3(client putter, bucket, prefix string) *S3 {
	if prefix == "" {
		prefix = "transcripts"
	}
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

// Key is the object key for a match, partitioned by finish date.
func (a *S3) Key(res match.Result) string {
	return path.Join(a.prefix, res.FinishedAt.UTC().Format("2006/01/02"), res.MatchID+".json")
}

func (a *S3) Record(ctx context.Context, res match.Result) error {
	body, err := json.Marshal(Transcript{
		MatchID:    res.MatchID,
		SideA:      res.Identities[0],
		SideB:      res.Identities[1],
		Winner:     res.Winner,
		Reason:     res.Reason,
		Turns:      res.Turns,
		Log:        res.Log,
		StartedAt:  res.StartedAt.UTC(),
		FinishedAt: res.FinishedAt.UTC(),
	})
	if err != nil {
		return err
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.Key(res)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload transcript %s: %w", res.MatchID, err)
	}
	return nil
}
