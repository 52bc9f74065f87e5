package archive

import (
	"bytes"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Store uploads pages to a bucket, keyed as-is under an optional prefix.
type S3Store struct {
	bucket   string
	prefix   string
	uploader *s3manager.Uploader
}

func NewS3Store(region, bucket, prefix string) (*S3Store, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, err
	}
	return &S3Store{bucket: bucket, prefix: prefix, uploader: s3manager.NewUploader(sess)}, nil
}

func (s *S3Store) Put(key string, body []byte) error {
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	_, err := s.uploader.Upload(&s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	return err
}
