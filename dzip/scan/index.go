package scan

import (
	"sort"
	"strings"
	"sync"

	roaring "github.com/RoaringBitmap/roaring"
	"github.com/armon/go-radix"

	"github.com/ZanzyTHEbar/dicomzip/dzip/extract"
)

// ModalityIndex holds one roaring bitmap of record positions per modality
type ModalityIndex struct {
	mu     sync.RWMutex
	bitmap map[string]*roaring.Bitmap
}

// NewModalityIndex returns an empty index
func NewModalityIndex() *ModalityIndex {
	return &ModalityIndex{bitmap: make(map[string]*roaring.Bitmap)}
}

// Add records that record pos has modality
func (mi *ModalityIndex) Add(modality string, pos uint32) {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	bm, ok := mi.bitmap[modality]
	if !ok {
		bm = roaring.New()
		mi.bitmap[modality] = bm
	}
	bm.Add(pos)
}

// Positions returns a copy of the bitmap for modality
func (mi *ModalityIndex) Positions(modality string) *roaring.Bitmap {
	mi.mu.RLock()
	defer mi.mu.RUnlock()
	return clone(mi.bitmap[modality])
}

// Any returns the union of the bitmaps for modalities
func (mi *ModalityIndex) Any(modalities ...string) *roaring.Bitmap {
	mi.mu.RLock()
	defer mi.mu.RUnlock()
	res := roaring.New()
	for _, m := range modalities {
		if bm, ok := mi.bitmap[m]; ok {
			res.Or(bm)
		}
	}
	return res
}

// Counts returns the number of records per modality
func (mi *ModalityIndex) Counts() map[string]uint64 {
	mi.mu.RLock()
	defer mi.mu.RUnlock()
	out := make(map[string]uint64, len(mi.bitmap))
	for m, bm := range mi.bitmap {
		out[m] = bm.GetCardinality()
	}
	return out
}

// Modalities returns the indexed modalities sorted
func (mi *ModalityIndex) Modalities() []string {
	mi.mu.RLock()
	defer mi.mu.RUnlock()
	out := make([]string, 0, len(mi.bitmap))
	for m := range mi.bitmap {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func clone(b *roaring.Bitmap) *roaring.Bitmap {
	c := roaring.New()
	if b != nil {
		c.Or(b)
	}
	return c
}

// StudyIndex counts records per study and series. Keys are
// "<study uid>/<series uid>" in a radix tree so a study is a prefix walk.
type StudyIndex struct {
	mu   sync.RWMutex
	tree *radix.Tree
}

// NewStudyIndex returns an empty index
func NewStudyIndex() *StudyIndex {
	return &StudyIndex{tree: radix.New()}
}

// Add counts one record; records without a study UID are ignored
func (si *StudyIndex) Add(study, series string) {
	if study == "" || study == extract.NA {
		return
	}
	key := study + "/" + series
	si.mu.Lock()
	defer si.mu.Unlock()
	n := 0
	if v, ok := si.tree.Get(key); ok {
		n = v.(int)
	}
	si.tree.Insert(key, n+1)
}

// Studies returns the distinct study UIDs sorted
func (si *StudyIndex) Studies() []string {
	si.mu.RLock()
	defer si.mu.RUnlock()
	var out []string
	si.tree.Walk(func(key string, _ interface{}) bool {
		study := key[:strings.LastIndex(key, "/")]
		if len(out) == 0 || out[len(out)-1] != study {
			out = append(out, study)
		}
		return false
	})
	sort.Strings(out)
	return out
}

// Series returns the series UIDs of study with their record counts
func (si *StudyIndex) Series(study string) map[string]int {
	si.mu.RLock()
	defer si.mu.RUnlock()
	out := make(map[string]int)
	prefix := study + "/"
	si.tree.WalkPrefix(prefix, func(key string, v interface{}) bool {
		out[strings.TrimPrefix(key, prefix)] = v.(int)
		return false
	})
	return out
}

// Len returns the number of distinct (study, series) pairs
func (si *StudyIndex) Len() int {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return si.tree.Len()
}
