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
	"os"
	"path/filepath"
	"testing"

	"github.com/bubbly-io/recommender/config"
	"github.com/stretchr/testify/assert"
)

func TestPOSIX(t *testing.T) {
	// create client
	client := NewPOSIX(filepath.Join(t.TempDir(), "blob"))

	// list an empty store
	names, err := client.List()
	assert.NoError(t, err)
	assert.Empty(t, names)

	// write a temp file
	w, done, err := client.Create("test")
	assert.NoError(t, err)
	_, err = w.Write([]byte("hello world"))
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, <-done)

	// read the file
	r, err := client.Open("test")
	assert.NoError(t, err)
	content, err := io.ReadAll(r)
	assert.NoError(t, err)
	assert.Equal(t, "hello world", string(content))
	assert.NoError(t, r.Close())

	// list files
	names, err = client.List()
	assert.NoError(t, err)
	assert.Equal(t, []string{"test"}, names)

	// remove file
	assert.NoError(t, client.Remove("test"))
	_, err = client.Open("test")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPOSIXReplace(t *testing.T) {
	client := NewPOSIX(t.TempDir())
	w, done, err := client.Create("model")
	assert.NoError(t, err)
	_, err = w.Write([]byte("first"))
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, <-done)

	// the old content stays readable until the new writer is closed
	w, done, err = client.Create("model")
	assert.NoError(t, err)
	_, err = w.Write([]byte("second"))
	assert.NoError(t, err)
	r, err := client.Open("model")
	assert.NoError(t, err)
	content, err := io.ReadAll(r)
	assert.NoError(t, err)
	assert.Equal(t, "first", string(content))
	assert.NoError(t, r.Close())
	assert.NoError(t, w.Close())
	assert.NoError(t, <-done)

	r, err = client.Open("model")
	assert.NoError(t, err)
	content, err = io.ReadAll(r)
	assert.NoError(t, err)
	assert.Equal(t, "second", string(content))
	assert.NoError(t, r.Close())

	names, err := client.List()
	assert.NoError(t, err)
	assert.Equal(t, []string{"model"}, names)
}

func TestOpenPOSIX(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(config.BlobConfig{}, dir)
	assert.NoError(t, err)
	assert.IsType(t, &POSIX{}, store)
}
