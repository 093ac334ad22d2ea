package config

import "fmt"

const (
	StorageTypeS3    = "s3"
	StorageTypeMinio = "minio"
)

type StorageConfig struct {
	Type           string `yaml:"type"`
	IncomingPrefix string `yaml:"incomingPrefix"`
	ResultPrefix   string `yaml:"resultPrefix"`
	// Watch subscribes the worker to bucket notifications (MinIO only).
	Watch bool `yaml:"watch"`

	S3    S3Config    `yaml:"s3"`
	Minio MinioConfig `yaml:"minio"`
}

type S3Config struct {
	BucketName string `yaml:"bucketName"`
	Region     string `yaml:"region"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"accessKey"`
	SecretKey  string `yaml:"secretKey"`
}

type MinioConfig struct {
	AccessKey  string `yaml:"accessKey"`
	SecretKey  string `yaml:"secretKey"`
	Endpoint   string `yaml:"endpoint"`
	UseSSL     bool   `yaml:"useSSL"`
	Region     string `yaml:"region"`
	BucketName string `yaml:"bucketName"`
}

func (c *StorageConfig) applyEnv() error {
	envString("STORAGE_TYPE", &c.Type)
	envString("STORAGE_INCOMING_PREFIX", &c.IncomingPrefix)
	envString("STORAGE_RESULT_PREFIX", &c.ResultPrefix)

	envString("AWS_S3_BUCKET_NAME", &c.S3.BucketName)
	envString("AWS_REGION", &c.S3.Region)
	envString("AWS_ENDPOINT", &c.S3.Endpoint)
	envString("AWS_ACCESS_KEY", &c.S3.AccessKey)
	envString("AWS_SECRET_KEY", &c.S3.SecretKey)

	envString("MINIO_ACCESS_KEY", &c.Minio.AccessKey)
	envString("MINIO_SECRET_KEY", &c.Minio.SecretKey)
	envString("MINIO_ENDPOINT", &c.Minio.Endpoint)
	envString("MINIO_REGION", &c.Minio.Region)
	envString("MINIO_BUCKET_NAME", &c.Minio.BucketName)

	return firstErr(
		envBool("STORAGE_WATCH", &c.Watch),
		envBool("MINIO_USE_SSL", &c.Minio.UseSSL),
	)
}

// Bucket returns the bucket of the selected storage type.
func (c *StorageConfig) Bucket() string {
	if c.Type == StorageTypeMinio {
		return c.Minio.BucketName
	}
	return c.S3.BucketName
}

func (c *StorageConfig) validate() error {
	switch c.Type {
	case StorageTypeS3:
		if c.S3.BucketName == "" {
			return fmt.Errorf("AWS_S3_BUCKET_NAME is required for s3 storage")
		}
	case StorageTypeMinio:
		if c.Minio.Endpoint == "" || c.Minio.BucketName == "" {
			return fmt.Errorf("MINIO_ENDPOINT and MINIO_BUCKET_NAME are required for minio storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %q", c.Type)
	}
	if c.Watch && c.Type != StorageTypeMinio {
		return fmt.Errorf("bucket notifications are only supported for minio storage")
	}
	return nil
}
