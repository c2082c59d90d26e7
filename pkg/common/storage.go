package common

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// ObjectSummary describes a stored object without its body
type ObjectSummary struct {
	Key          string
	Size         int64
	LastModified time.Time
	Metadata     map[string]string
}

// Storager interface requires methods to list, inspect, and move billing
// and rollup objects in a bucket
type Storager interface {
	ListObjects(bucket string, prefix string) ([]ObjectSummary, error)
	HeadObject(bucket string, key string) (*ObjectSummary, bool, error)
	GetObject(bucket string, key string) (string, error)
	PutObject(bucket string, key string, body io.ReadSeeker) error
	PutObjectWithMetadata(bucket string, key string, body io.ReadSeeker, metadata map[string]string) error
	Download(bucket string, key string, filepath string) error
	CopyObject(bucket string, key string, destBucket string, destKey string) error
}

// S3 implements the Storager interface using the AWS S3 Client
type S3 struct {
	Client  *s3.S3
	Manager *s3manager.Downloader
}

// ListObjects returns summaries for every object under the prefix
func (stor S3) ListObjects(bucket string, prefix string) ([]ObjectSummary, error) {
	var summaries []ObjectSummary
	input := &s3.ListObjectsV2Input{
		Bucket: &bucket,
		Prefix: &prefix,
	}
	err := stor.Client.ListObjectsV2Pages(input,
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				summaries = append(summaries, ObjectSummary{
					Key:          aws.StringValue(obj.Key),
					Size:         aws.Int64Value(obj.Size),
					LastModified: aws.TimeValue(obj.LastModified),
				})
			}
			return true
		})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// HeadObject returns the summary for a single object. The second return
// reports existence; a missing object is not an error.
func (stor S3) HeadObject(bucket string, key string) (*ObjectSummary, bool, error) {
	output, err := stor.Client.HeadObject(&s3.HeadObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		if aerr, ok := err.(awserr.RequestFailure); ok && aerr.StatusCode() == 404 {
			return nil, false, nil
		}
		return nil, false, err
	}

	metadata := map[string]string{}
	for k, v := range output.Metadata {
		metadata[strings.ToLower(k)] = aws.StringValue(v)
	}
	return &ObjectSummary{
		Key:          key,
		Size:         aws.Int64Value(output.ContentLength),
		LastModified: aws.TimeValue(output.LastModified),
		Metadata:     metadata,
	}, true, nil
}

// GetObject returns a string output based on the results of the retrieval
// of an existing object from S3
func (stor S3) GetObject(bucket string, key string) (string, error) {
	getInput := s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}
	getOutput, err := stor.Client.GetObject(&getInput)
	if err != nil {
		return "", err
	}

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(getOutput.Body)
	if err != nil {
		return "", err
	}

	return buf.String(), nil
}

// PutObject writes the body to the bucket under the key
func (stor S3) PutObject(bucket string, key string, body io.ReadSeeker) error {
	return stor.PutObjectWithMetadata(bucket, key, body, nil)
}

// PutObjectWithMetadata writes the body along with user metadata
func (stor S3) PutObjectWithMetadata(bucket string, key string, body io.ReadSeeker,
	metadata map[string]string) error {
	putInput := s3.PutObjectInput{
		Bucket:               &bucket,
		Key:                  &key,
		Body:                 body,
		ServerSideEncryption: aws.String("AES256"),
	}
	if len(metadata) > 0 {
		putInput.Metadata = map[string]*string{}
		for k, v := range metadata {
			putInput.Metadata[k] = aws.String(v)
		}
	}
	_, err := stor.Client.PutObject(&putInput)
	return err
}

// Download downloads an S3 Bucket object to the file path provided and returns
// any errors if any
func (stor S3) Download(bucket string, key string, filepath string) error {
	// Initialize the file, verify the path is valid
	file, err := os.Create(filepath)
	if err != nil {
		return err
	}
	defer file.Close()

	getInput := &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}
	_, err = stor.Manager.Download(file, getInput)
	return err
}

// CopyObject copies an object between buckets, keeping the source
func (stor S3) CopyObject(bucket string, key string, destBucket string, destKey string) error {
	source := bucket + "/" + key
	_, err := stor.Client.CopyObject(&s3.CopyObjectInput{
		Bucket:     &destBucket,
		Key:        &destKey,
		CopySource: &source,
	})
	return err
}
