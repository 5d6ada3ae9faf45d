package reporter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/flotilla/pilot-agent/internal/browser"
)

// S3Uploader publishes run artifacts to an S3 bucket.
type S3Uploader struct {
	client     *s3.Client
	bucketName string
	region     string
}

// NewS3Uploader creates an uploader for the given bucket and region. Empty
// values fall back to the AWS environment.
func NewS3Uploader(bucketName, region string) (*S3Uploader, error) {
	if bucketName == "" {
		bucketName = os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			return nil, fmt.Errorf("no S3 bucket configured")
		}
	}

	if region == "" {
		region = os.Getenv("AWS_REGION")
		if region == "" {
			region = "us-east-1"
		}
	}

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Uploader{
		client:     s3.NewFromConfig(cfg),
		bucketName: bucketName,
		region:     region,
	}, nil
}

// UploadFile uploads a local file to S3 under s3Key and returns its URL.
func (u *S3Uploader) UploadFile(ctx context.Context, path, s3Key string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucketName),
		Key:         aws.String(s3Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(path)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return u.objectURL(s3Key), nil
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "application/json"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func (u *S3Uploader) objectURL(s3Key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucketName, u.region, s3Key)
}

// UploadScreenshot uploads one screenshot under the report's prefix.
func (u *S3Uploader) UploadScreenshot(ctx context.Context, screenshot *browser.Screenshot, reportID string) (string, error) {
	s3Key := fmt.Sprintf("runs/%s/screenshots/%s_%s.png",
		reportID,
		screenshot.Phase,
		screenshot.Timestamp.Format("20060102_150405"),
	)
	return u.UploadFile(ctx, screenshot.Filepath, s3Key)
}

// UploadReport uploads the report JSON under the report's prefix.
func (u *S3Uploader) UploadReport(ctx context.Context, reportPath, reportID string) (string, error) {
	s3Key := fmt.Sprintf("runs/%s/report.json", reportID)
	return u.UploadFile(ctx, reportPath, s3Key)
}

// UploadReportWithArtifacts uploads every screenshot in the report, rewrites
// their S3 URLs, then uploads the report itself.
func (u *S3Uploader) UploadReportWithArtifacts(ctx context.Context, report *Report, screenshots []*browser.Screenshot) error {
	for i, screenshot := range screenshots {
		if screenshot.Filepath == "" {
			continue
		}
		s3URL, err := u.UploadScreenshot(ctx, screenshot, report.ReportID)
		if err != nil {
			return fmt.Errorf("failed to upload screenshot %d: %w", i, err)
		}
		if i < len(report.Evidence.Screenshots) {
			report.Evidence.Screenshots[i].S3URL = s3URL
		}
	}

	reportPath, err := report.SaveToTemp()
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	defer os.Remove(reportPath)

	if _, err := u.UploadReport(ctx, reportPath, report.ReportID); err != nil {
		return fmt.Errorf("failed to upload report: %w", err)
	}
	return nil
}

// ReportURL returns the S3 URL a report will be served from.
func (u *S3Uploader) ReportURL(reportID string) string {
	return u.objectURL(fmt.Sprintf("runs/%s/report.json", reportID))
}
