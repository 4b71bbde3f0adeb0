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

package logics

import (
	"io"
	"time"

	"github.com/bubbly-io/recommender/base/encoding"
	"github.com/bubbly-io/recommender/dataset"
	"github.com/bubbly-io/recommender/model/gbdt"
	"github.com/bubbly-io/recommender/storage/blob"
	"github.com/bubbly-io/recommender/storage/meta"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/atomic"
)

const (
	snapshotTag     = "bubbly/recommender/snapshot"
	snapshotVersion = int32(1)

	// SnapshotBlob is the name of the persisted snapshot in the blob store.
	SnapshotBlob = "snapshot.bin"
)

var (
	ErrSnapshotMismatch = errors.NotValidf("snapshot tag or version")
	ErrNoSnapshot       = errors.NotFoundf("snapshot")
)

// SnapshotMeta describes the training run that produced a snapshot.
type SnapshotMeta struct {
	InterestOrder []string
	Score         gbdt.Score
	TrainedAt     time.Time
	NumTrain      int
	NumValid      int
	NumPositive   int
	NumNegative   int
}

// Snapshot is a trained classifier together with the interest order its features were built on.
// A snapshot is immutable once published.
type Snapshot struct {
	SnapshotMeta
	Model    *gbdt.GBDT
	universe mapset.Set[string]
}

func NewSnapshot(model *gbdt.GBDT, meta SnapshotMeta) *Snapshot {
	return &Snapshot{
		SnapshotMeta: meta,
		Model:        model,
		universe:     dataset.Universe(meta.InterestOrder),
	}
}

// Universe returns interests known to the model, or nil if the model was trained without interests.
func (s *Snapshot) Universe() mapset.Set[string] {
	return s.universe
}

// Drift returns the number of current interests unknown to the model and the number of model
// interests no longer present.
func (s *Snapshot) Drift(interestOrder []string) (added, removed int) {
	current := mapset.NewThreadUnsafeSet(interestOrder...)
	known := mapset.NewThreadUnsafeSet(s.InterestOrder...)
	return current.Difference(known).Cardinality(), known.Difference(current).Cardinality()
}

// MarshalSnapshot writes the schema tag, the version, metadata and the classifier.
func MarshalSnapshot(w io.Writer, s *Snapshot) error {
	if err := encoding.WriteString(w, snapshotTag); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, snapshotVersion); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, s.SnapshotMeta); err != nil {
		return errors.Trace(err)
	}
	return gbdt.MarshalModel(w, s.Model)
}

// UnmarshalSnapshot reads a snapshot. Nothing is returned unless every part is valid.
func UnmarshalSnapshot(r io.Reader) (*Snapshot, error) {
	tag, err := encoding.ReadString(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if tag != snapshotTag {
		return nil, errors.Annotatef(ErrSnapshotMismatch, "unexpected tag %q", tag)
	}
	var version int32
	if err = encoding.ReadGob(r, &version); err != nil {
		return nil, errors.Trace(err)
	}
	if version != snapshotVersion {
		return nil, errors.Annotatef(ErrSnapshotMismatch, "unexpected version %d", version)
	}
	var snapshotMeta SnapshotMeta
	if err = encoding.ReadGob(r, &snapshotMeta); err != nil {
		return nil, errors.Trace(err)
	}
	if len(snapshotMeta.InterestOrder) == 0 {
		return nil, errors.NotValidf("snapshot without interest order")
	}
	model, err := gbdt.UnmarshalModel(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if model.Invalid() {
		return nil, errors.NotValidf("snapshot without classifier")
	}
	return NewSnapshot(model, snapshotMeta), nil
}

// ModelStore persists snapshots in a blob store and their metadata in the meta store.
type ModelStore struct {
	blobStore blob.Store
	metaStore meta.Database
}

func NewModelStore(blobStore blob.Store, metaStore meta.Database) *ModelStore {
	return &ModelStore{blobStore: blobStore, metaStore: metaStore}
}

// Save replaces the persisted snapshot. Readers see either the old or the new snapshot.
func (s *ModelStore) Save(snapshot *Snapshot) error {
	w, done, err := s.blobStore.Create(SnapshotBlob)
	if err != nil {
		return errors.Trace(err)
	}
	if err = MarshalSnapshot(w, snapshot); err != nil {
		// abort the upload so that the partial snapshot is discarded
		if pw, ok := w.(interface{ CloseWithError(error) error }); ok {
			_ = pw.CloseWithError(err)
		} else {
			_ = w.Close()
		}
		<-done
		return errors.Trace(err)
	}
	if err = w.Close(); err != nil {
		return errors.Trace(err)
	}
	if err = <-done; err != nil {
		return errors.Trace(err)
	}
	if s.metaStore != nil {
		m := meta.Model[gbdt.Score]{
			ID:        snapshot.TrainedAt.UnixNano(),
			Score:     snapshot.Score,
			TrainedAt: snapshot.TrainedAt,
		}
		if err = s.metaStore.Put(meta.BUBBLE_RANKING_MODEL, m.ToJSON()); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Load the persisted snapshot. ErrNoSnapshot is returned if nothing has been saved.
func (s *ModelStore) Load() (*Snapshot, error) {
	names, err := s.blobStore.List()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if !lo.Contains(names, SnapshotBlob) {
		return nil, errors.Trace(ErrNoSnapshot)
	}
	r, err := s.blobStore.Open(SnapshotBlob)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer r.Close()
	return UnmarshalSnapshot(r)
}

// Slot holds the snapshot shared by all inference calls.
type Slot struct {
	snapshot atomic.Pointer[Snapshot]
}

// Load returns the current snapshot or nil.
func (s *Slot) Load() *Snapshot {
	return s.snapshot.Load()
}

func (s *Slot) Store(snapshot *Snapshot) {
	s.snapshot.Store(snapshot)
}
