// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

var r2Client *s3.Client
var r2Bucket string

// TemplatePrefix is where schedule template JSONs live in the bucket.
const TemplatePrefix = "game_templates/"

func InitR2() error {
	accountID := os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	accessKeyID := os.Getenv("R2_ACCESS_KEY_ID")
	accessKeySecret := os.Getenv("R2_ACCESS_KEY_SECRET")
	r2Bucket = os.Getenv("R2_BUCKET_NAME")

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
		config.WithEndpointResolver(aws.EndpointResolverFunc(
			func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
				}, nil
			}),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to load R2 config: %w", err)
	}

	r2Client = s3.NewFromConfig(cfg)
	return nil
}

// R2Enabled reports whether the object store was initialized. The template
// loader falls back to the local cache dir alone when it is not.
func R2Enabled() bool {
	return r2Client != nil && r2Bucket != ""
}

// DownloadTemplate fetches one template JSON by filename (without prefix).
// Returns (nil, nil) when the object does not exist.
func DownloadTemplate(filename string) ([]byte, error) {
	if !R2Enabled() {
		return nil, nil
	}
	out, err := r2Client.GetObject(context.TODO(), &s3.GetObjectInput{
		Bucket: aws.String(r2Bucket),
		Key:    aws.String(TemplatePrefix + filename),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to download template %s: %w", filename, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", filename, err)
	}
	return data, nil
}

// UploadTemplate stores a template JSON under the template prefix.
func UploadTemplate(filename string, data []byte) error {
	if !R2Enabled() {
		return fmt.Errorf("R2 is not configured")
	}
	_, err := r2Client.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket:      aws.String(r2Bucket),
		Key:         aws.String(TemplatePrefix + filename),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload template %s: %w", filename, err)
	}
	return nil
}

// ListTemplates returns all template filenames present in the bucket.
func ListTemplates() ([]string, error) {
	if !R2Enabled() {
		return nil, nil
	}
	var names []string
	var continuation *string
	for {
		out, err := r2Client.ListObjectsV2(context.TODO(), &s3.ListObjectsV2Input{
			Bucket:            aws.String(r2Bucket),
			Prefix:            aws.String(TemplatePrefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list templates: %w", err)
		}
		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), TemplatePrefix)
			if strings.HasSuffix(name, ".json") {
				names = append(names, name)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuation = out.NextContinuationToken
	}
	return names, nil
}
