package main

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	secbioauth "github.com/VReyesUOL/SecBioAuth"
	"github.com/VReyesUOL/SecBioAuth/blobstore"
	minioblob "github.com/VReyesUOL/SecBioAuth/blobstore/minio"
	s3blob "github.com/VReyesUOL/SecBioAuth/blobstore/s3"
	"github.com/VReyesUOL/SecBioAuth/dataset"
)

// StorageOptions select where datasets are read from.
type StorageOptions struct {
	Kind      string `long:"kind" default:"local" choice:"local" choice:"minio" choice:"s3" description:"storage backend"`
	Bucket    string `long:"bucket" description:"bucket of the minio and s3 backends"`
	Endpoint  string `long:"endpoint" default:"localhost:9000" description:"minio endpoint"`
	AccessKey string `long:"access-key" env:"MINIO_ACCESS_KEY" description:"minio access key"`
	SecretKey string `long:"secret-key" env:"MINIO_SECRET_KEY" description:"minio secret key"`
	Secure    bool   `long:"secure" description:"use TLS with minio"`
}

// newLoader returns a dataset loader over the selected storage. Local
// datasets live under the data folder; remote ones under the data prefix of
// the bucket.
func newLoader(ctx context.Context, opts GlobalOptions) (*dataset.Loader, error) {

	var store blobstore.BlobStore

	switch opts.Storage.Kind {
	case "local", "":
		if _, err := os.Stat(opts.Data); err != nil {
			return nil, errors.Wrapf(secbioauth.ErrConfiguration, "data folder: %v", err)
		}
		store = blobstore.NewLocalStore(opts.Data)

	case "minio":
		if opts.Storage.Bucket == "" {
			return nil, errors.Wrap(secbioauth.ErrConfiguration, "minio storage needs a bucket")
		}
		client, err := minio.New(opts.Storage.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(opts.Storage.AccessKey, opts.Storage.SecretKey, ""),
			Secure: opts.Storage.Secure,
		})
		if err != nil {
			return nil, errors.Wrap(err, "minio client")
		}
		store = minioblob.NewStore(client, opts.Storage.Bucket, opts.Data)

	case "s3":
		if opts.Storage.Bucket == "" {
			return nil, errors.Wrap(secbioauth.ErrConfiguration, "s3 storage needs a bucket")
		}
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "aws config")
		}
		store = s3blob.NewStore(s3.NewFromConfig(cfg), opts.Storage.Bucket, opts.Data)

	default:
		return nil, errors.Wrapf(secbioauth.ErrConfiguration, "unknown storage %q", opts.Storage.Kind)
	}

	return dataset.NewLoader(store), nil
}

// resolveDatasets returns the configurations of the named datasets, looked
// up in the configuration file first and in the presets then.
func resolveDatasets(opts GlobalOptions) ([]dataset.Config, error) {

	known := dataset.Presets()

	if opts.Config != "" {
		f, err := os.Open(opts.Config)
		if err != nil {
			return nil, errors.Wrapf(secbioauth.ErrConfiguration, "config: %v", err)
		}
		defer f.Close()

		configs, err := dataset.ReadConfigs(f)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", opts.Config)
		}
		for _, c := range configs {
			known[c.Name] = c
		}
	}

	configs := make([]dataset.Config, 0, len(opts.Datasets))
	for _, name := range opts.Datasets {
		c, ok := known[name]
		if !ok {
			return nil, errors.Wrapf(secbioauth.ErrConfiguration, "unknown dataset %q", name)
		}
		configs = append(configs, c)
	}

	return configs, nil
}
