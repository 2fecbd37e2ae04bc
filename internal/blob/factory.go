package blob

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Open selects a blob.Store implementation using environment variables.
//
//	FOODGRAPH_BLOB_DRIVER: fs|s3|memory (default fs)
//	FOODGRAPH_BLOB_FS_ROOT: directory root when driver=fs (default ./artifacts)
//	FOODGRAPH_BLOB_S3_BUCKET: bucket name when driver=s3 (required)
//	FOODGRAPH_BLOB_S3_REGION: region when driver=s3
//	FOODGRAPH_BLOB_S3_ENDPOINT: custom endpoint (MinIO and friends)
//	FOODGRAPH_BLOB_S3_PATH_STYLE: "true" forces path-style addressing
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("FOODGRAPH_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		root := os.Getenv("FOODGRAPH_BLOB_FS_ROOT")
		return NewFilesystem(root)
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// OpenS3FromEnv builds an S3 store from FOODGRAPH_BLOB_S3_* variables.
// Static credentials come from the standard AWS_ACCESS_KEY_ID pair when set,
// otherwise the default credential chain applies.
func OpenS3FromEnv(ctx context.Context) (*S3, error) {
	bucket := os.Getenv("FOODGRAPH_BLOB_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("FOODGRAPH_BLOB_S3_BUCKET required for s3 driver")
	}
	return NewS3(ctx, S3Config{
		Region:          os.Getenv("FOODGRAPH_BLOB_S3_REGION"),
		Bucket:          bucket,
		Endpoint:        os.Getenv("FOODGRAPH_BLOB_S3_ENDPOINT"),
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		PathStyle:       strings.EqualFold(os.Getenv("FOODGRAPH_BLOB_S3_PATH_STYLE"), "true"),
	})
}
