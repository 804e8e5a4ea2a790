// Package asset implements the id-to-asset map (IAM): the stable mapping
// from dense integer keyframe ids, shared across every embedding index, to
// the keyframe's relative asset path and derived attributes.
package asset

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/kfsearch/kfsearch/internal/kferrors"
)

// Descriptor is an id's resolved asset identity.
type Descriptor struct {
	ID      uint64
	Path    string // forward-slash canonical, e.g. ".../Keyframes_L21/keyframes/L21_V001/001.jpg"
	VideoID string // e.g. "L21_V001"
	Batch   string // e.g. "L21"
	FrameNo int    // 1-based
}

// Map is the loaded, immutable id-to-asset map. It is built once at
// startup and never mutated afterward.
type Map struct {
	byID       []Descriptor // dense, index == id
	idsOfVideo map[string][]uint64
}

// Load reads a JSON document mapping stringified integer ids to
// forward-slash-separated relative paths. Keys must be unique and
// contiguous over [0, N); a gap is a fatal load error.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kferrors.BadIndexFile(fmt.Sprintf("read id map %s", path), err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, kferrors.BadIndexFile(fmt.Sprintf("parse id map %s", path), err)
	}
	return FromMap(raw)
}

// FromMap builds a Map from an in-memory id->path mapping, validating key
// density. Exposed for tests and for callers that source the mapping from
// somewhere other than a JSON file on disk.
func FromMap(raw map[string]string) (*Map, error) {
	n := len(raw)
	descriptors := make([]Descriptor, n)
	seen := make([]bool, n)

	for key, rel := range raw {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, kferrors.BadIndexFile(fmt.Sprintf("non-integer id key %q", key), err)
		}
		if id >= uint64(n) {
			return nil, kferrors.BadIndexFile(
				fmt.Sprintf("id %d is outside the contiguous range [0,%d)", id, n), nil)
		}
		d, err := describe(id, rel)
		if err != nil {
			return nil, err
		}
		descriptors[id] = d
		seen[id] = true
	}
	for id, ok := range seen {
		if !ok {
			return nil, kferrors.BadIndexFile(fmt.Sprintf("missing id %d in [0,%d)", id, n), nil)
		}
	}

	idsOfVideo := make(map[string][]uint64)
	for _, d := range descriptors {
		idsOfVideo[d.VideoID] = append(idsOfVideo[d.VideoID], d.ID)
	}
	for vid, ids := range idsOfVideo {
		sort.Slice(ids, func(i, j int) bool {
			return descriptors[ids[i]].FrameNo < descriptors[ids[j]].FrameNo
		})
		idsOfVideo[vid] = ids
	}

	return &Map{byID: descriptors, idsOfVideo: idsOfVideo}, nil
}

// canonicalize always rewrites backslashes to forward slashes in returned
// paths, per the canonicalization decision for asset path display.
func canonicalize(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

func describe(id uint64, rel string) (Descriptor, error) {
	clean := canonicalize(rel)
	videoID := path.Base(path.Dir(clean))
	if videoID == "" || videoID == "." || videoID == "/" {
		return Descriptor{}, kferrors.BadIndexFile(
			fmt.Sprintf("cannot derive video id from path %q", rel), nil)
	}
	batch := videoID
	if i := strings.IndexByte(videoID, '_'); i >= 0 {
		batch = videoID[:i]
	}
	base := path.Base(clean)
	frameStr := strings.TrimSuffix(base, path.Ext(base))
	frameNo, err := strconv.Atoi(frameStr)
	if err != nil {
		return Descriptor{}, kferrors.BadIndexFile(
			fmt.Sprintf("cannot derive frame number from path %q", rel), err)
	}
	return Descriptor{ID: id, Path: clean, VideoID: videoID, Batch: batch, FrameNo: frameNo}, nil
}

// Len returns N, the total number of ids.
func (m *Map) Len() int {
	return len(m.byID)
}

// PathOf returns the asset path for id, or UnknownId if out of range.
func (m *Map) PathOf(id uint64) (string, error) {
	d, err := m.describe(id)
	if err != nil {
		return "", err
	}
	return d.Path, nil
}

// VideoOf returns the video id that owns id.
func (m *Map) VideoOf(id uint64) (string, error) {
	d, err := m.describe(id)
	if err != nil {
		return "", err
	}
	return d.VideoID, nil
}

// Describe returns the full descriptor for id.
func (m *Map) Describe(id uint64) (Descriptor, error) {
	return m.describe(id)
}

func (m *Map) describe(id uint64) (Descriptor, error) {
	if id >= uint64(len(m.byID)) {
		return Descriptor{}, kferrors.UnknownID(fmt.Sprintf("id %d out of range [0,%d)", id, len(m.byID)), nil)
	}
	return m.byID[id], nil
}

// IDsOfVideo returns the ids belonging to vid, sorted by ascending frame
// number. Returns nil, false if vid is unknown.
func (m *Map) IDsOfVideo(vid string) ([]uint64, bool) {
	ids, ok := m.idsOfVideo[vid]
	return ids, ok
}
