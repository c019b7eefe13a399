package s3

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitdl/internal/resume"
	"github.com/tanq16/splitdl/internal/utils"
)

// Downloader fetches S3 objects, or every object under a prefix, through
// presigned URLs. Endpoint overrides the AWS endpoint for S3-compatible stores.
type Downloader struct {
	Endpoint string
}

func (d *Downloader) ValidateJob(job *utils.Job) error {
	bucket, key, err := parseS3URL(job.URL)
	if err != nil {
		return err
	}
	log.Debug().Str("op", "s3/initial").Msgf("job validated for s3://%s/%s", bucket, key)
	return nil
}

func (d *Downloader) BuildJob(ctx context.Context, job *utils.Job) error {
	bucket, key, _ := parseS3URL(job.URL)
	client, err := getS3Client(ctx, job.Profile, d.Endpoint)
	if err != nil {
		return fmt.Errorf("error creating S3 client: %v", err)
	}
	obj, err := getS3ObjectInfo(ctx, client, bucket, key)
	if err != nil {
		return fmt.Errorf("error getting S3 object info: %v", err)
	}
	buildOutput(job, bucket, key, obj)
	if obj != nil {
		job.Remote = &utils.RemoteInfo{
			URL:           job.URL,
			ContentLength: obj.Size,
			ContentType:   obj.ContentType,
			AcceptRanges:  true,
			FileName:      path.Base(key),
		}
		log.Debug().Str("op", "s3/initial").Msgf("Object s3://%s/%s has size %d", bucket, key, obj.Size)
	} else {
		log.Debug().Str("op", "s3/initial").Msgf("s3://%s/%s is a prefix", bucket, key)
	}
	return nil
}

func (d *Downloader) Download(ctx context.Context, job *utils.Job) error {
	bucket, key, _ := parseS3URL(job.URL)
	client, err := getS3Client(ctx, job.Profile, d.Endpoint)
	if err != nil {
		return fmt.Errorf("error creating S3 client: %v", err)
	}
	return download(ctx, client, newPresigner(client), job, bucket, key)
}

// buildOutput names the output after the object or prefix and moves it
// aside when it would clobber something that is not a paused download.
func buildOutput(job *utils.Job, bucket, key string, obj *s3Object) {
	if job.OutputPath == "" {
		trimmed := strings.TrimSuffix(key, "/")
		job.OutputPath = path.Base(trimmed)
		if trimmed == "" {
			job.OutputPath = bucket
		}
	}
	if job.Options.Overwrite {
		return
	}
	existing, err := os.Stat(job.OutputPath)
	if err != nil {
		return
	}
	if obj == nil {
		if existing.IsDir() {
			// a folder download resumes per object
			return
		}
		job.OutputPath = utils.RenewOutputPath(job.OutputPath)
		return
	}
	if _, err := os.Stat(resume.MetaPath(job.OutputPath)); err == nil {
		return
	}
	if existing.Size() != obj.Size {
		job.OutputPath = utils.RenewOutputPath(job.OutputPath)
	}
}
