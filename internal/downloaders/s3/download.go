package s3

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitdl/internal/downloaders/progressive"
	"github.com/tanq16/splitdl/internal/utils"
)

func newPresigner(client *s3.Client) presigner {
	return s3.NewPresignClient(client)
}

func download(ctx context.Context, api objectAPI, signer presigner, job *utils.Job, bucket, key string) error {
	// presigned URLs carry their own auth
	httpConfig := job.HTTPClientConfig
	httpConfig.BearerToken = ""
	httpConfig.HighThreadMode = job.Connections > 5
	client := utils.NewClient(httpConfig)

	if job.Remote != nil {
		obj := s3Object{Key: key, Size: job.Remote.ContentLength, ContentType: job.Remote.ContentType}
		log.Debug().Str("op", "s3/download").Msgf("Starting file download for s3://%s/%s", bucket, key)
		return downloadObject(ctx, client, signer, job, bucket, obj, job.OutputPath)
	}

	objects, err := listS3Objects(ctx, api, bucket, key)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		return fmt.Errorf("no objects found in s3://%s/%s", bucket, key)
	}
	log.Debug().Str("op", "s3/download").Msgf("Found %d objects to download under s3://%s/%s", len(objects), bucket, key)
	for _, obj := range objects {
		rel := strings.TrimLeft(strings.TrimPrefix(obj.Key, key), "/")
		if rel == "" {
			rel = path.Base(obj.Key)
		}
		output := filepath.Join(job.OutputPath, filepath.FromSlash(rel))
		if err := downloadObject(ctx, client, signer, job, bucket, obj, output); err != nil {
			return fmt.Errorf("error downloading s3://%s/%s: %w", bucket, obj.Key, err)
		}
	}
	return nil
}

func downloadObject(ctx context.Context, client utils.Doer, signer presigner, job *utils.Job, bucket string, obj s3Object, output string) error {
	link, signed, err := presignObject(ctx, signer, bucket, obj.Key)
	if err != nil {
		return err
	}
	opts := job.Options
	opts.Output = output
	opts.Connections = job.Connections
	opts.Headers = utils.MergeHeaders(opts.Headers, signed)
	return progressive.Download(ctx, client, progressive.Request{
		URL:           link,
		Source:        fmt.Sprintf("s3://%s/%s", bucket, obj.Key),
		ContentLength: obj.Size,
		ContentType:   obj.ContentType,
	}, opts)
}
