// Copyright 2026 bubbly Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blob

import (
	"io"

	"github.com/bubbly-io/recommender/base/log"
	"github.com/bubbly-io/recommender/config"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Store keeps named binary objects such as model snapshots.
//
// Create returns a writer and a done channel. The object becomes visible once the writer is
// closed and the done channel yields a nil error. Readers never observe a partially written object.
type Store interface {
	Open(name string) (io.ReadCloser, error)
	Create(name string) (io.WriteCloser, <-chan error, error)
	List() ([]string, error)
	Remove(name string) error
}

// Open selects the blob store: S3 if an endpoint is set, GCS if a bucket is set,
// Azure if a container is set, otherwise a local directory.
func Open(cfg config.BlobConfig, dir string) (Store, error) {
	switch {
	case cfg.S3.Endpoint != "":
		log.Logger().Info("store model snapshots in S3",
			zap.String("endpoint", cfg.S3.Endpoint),
			zap.String("bucket", cfg.S3.Bucket),
			zap.String("prefix", cfg.S3.Prefix))
		store, err := NewS3(cfg.S3)
		return store, errors.Trace(err)
	case cfg.GCS.Bucket != "":
		log.Logger().Info("store model snapshots in GCS",
			zap.String("bucket", cfg.GCS.Bucket),
			zap.String("prefix", cfg.GCS.Prefix))
		store, err := NewGCS(cfg.GCS)
		return store, errors.Trace(err)
	case cfg.Azure.Container != "":
		log.Logger().Info("store model snapshots in Azure Blob",
			zap.String("container", cfg.Azure.Container),
			zap.String("prefix", cfg.Azure.Prefix))
		store, err := NewAzureBlob(cfg.Azure)
		return store, errors.Trace(err)
	default:
		log.Logger().Info("store model snapshots in local directory", zap.String("dir", dir))
		return NewPOSIX(dir), nil
	}
}

// upload streams everything written to the returned pipe into put.
func upload(put func(r io.Reader) error) (io.WriteCloser, <-chan error) {
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := put(pr)
		// unblock the writer if put gave up early
		_ = pr.CloseWithError(err)
		done <- err
		close(done)
	}()
	return pw, done
}
