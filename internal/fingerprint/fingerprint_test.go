package fingerprint

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
	"github.com/quarrysearch/quarry/internal/source"
)

// mockSource is a test double with controllable listings, mtimes, and
// a read counter for verifying the mtime fast path.
type mockSource struct {
	docs      []source.DocInfo
	files     map[string]string
	readCalls atomic.Int64
	failReads bool
}

var _ source.Source = (*mockSource)(nil)

func (m *mockSource) Root() string { return "/corpus" }

func (m *mockSource) List(ctx context.Context) ([]source.DocInfo, error) {
	return m.docs, nil
}

func (m *mockSource) Read(ctx context.Context, path string) ([]byte, error) {
	m.readCalls.Add(1)
	if m.failReads {
		return nil, qerrors.IOError("read failed: "+path, nil)
	}
	content, ok := m.files[path]
	if !ok {
		return nil, qerrors.New(qerrors.ErrCodeFileNotFound, "document not found: "+path, nil)
	}
	return []byte(content), nil
}

func (m *mockSource) setDoc(path, content string, mtime int64) {
	if m.files == nil {
		m.files = make(map[string]string)
	}
	m.files[path] = content
	for i := range m.docs {
		if m.docs[i].Path == path {
			m.docs[i].ModTime = time.Unix(mtime, 0)
			m.docs[i].Size = int64(len(content))
			return
		}
	}
	m.docs = append(m.docs, source.DocInfo{
		Path:    path,
		Size:    int64(len(content)),
		ModTime: time.Unix(mtime, 0),
	})
}

func (m *mockSource) removeDoc(path string) {
	delete(m.files, path)
	for i := range m.docs {
		if m.docs[i].Path == path {
			m.docs = append(m.docs[:i], m.docs[i+1:]...)
			return
		}
	}
}

func TestDetect_InitialRoundClassifiesAllAdded(t *testing.T) {
	// Given: a corpus with no previous record
	src := &mockSource{}
	src.setDoc("a.txt", "cat dog", 1000)
	src.setDoc("b.txt", "dog fish", 1000)
	d := NewDetector(src, 4)

	// When: detecting against a nil record
	cs, err := d.Detect(context.Background(), nil, src.docs)
	require.NoError(t, err)

	// Then: every document is added with a content fingerprint
	assert.Equal(t, []string{"a.txt", "b.txt"}, cs.Added)
	assert.Empty(t, cs.Modified)
	assert.Empty(t, cs.Removed)
	assert.Empty(t, cs.Unchanged)
	require.Len(t, cs.Next, 2)
	assert.Equal(t, Hash([]byte("cat dog")), cs.Next["a.txt"].Hash)
	assert.Equal(t, int64(1000), cs.Next["a.txt"].MTime)
	assert.True(t, cs.HasChanges())
}

func TestDetect_MTimeFastPathSkipsHashing(t *testing.T) {
	// Given: a record from a previous round
	src := &mockSource{}
	src.setDoc("a.txt", "cat dog", 1000)
	src.setDoc("b.txt", "dog fish", 1000)
	d := NewDetector(src, 4)
	first, err := d.Detect(context.Background(), nil, src.docs)
	require.NoError(t, err)
	src.readCalls.Store(0)

	// When: detecting again with untouched mtimes
	cs, err := d.Detect(context.Background(), first.Next, src.docs)
	require.NoError(t, err)

	// Then: everything is unchanged and no content was read
	assert.Equal(t, []string{"a.txt", "b.txt"}, cs.Unchanged)
	assert.False(t, cs.HasChanges())
	assert.Equal(t, int64(0), src.readCalls.Load())
	assert.Equal(t, first.Next, cs.Next)
}

func TestDetect_TouchedDocumentStaysUnchanged(t *testing.T) {
	// Given: a document whose mtime changed but content did not
	src := &mockSource{}
	src.setDoc("a.txt", "cat dog", 1000)
	d := NewDetector(src, 4)
	first, err := d.Detect(context.Background(), nil, src.docs)
	require.NoError(t, err)
	src.setDoc("a.txt", "cat dog", 2000)
	src.readCalls.Store(0)

	// When: detecting against the previous record
	cs, err := d.Detect(context.Background(), first.Next, src.docs)
	require.NoError(t, err)

	// Then: the document is unchanged but the new mtime is recorded
	assert.Equal(t, []string{"a.txt"}, cs.Unchanged)
	assert.False(t, cs.HasChanges())
	assert.Equal(t, int64(1), src.readCalls.Load())
	assert.Equal(t, int64(2000), cs.Next["a.txt"].MTime)
	assert.Equal(t, first.Next["a.txt"].Hash, cs.Next["a.txt"].Hash)
}

func TestDetect_ModifiedContent(t *testing.T) {
	// Given: a document rewritten with new content
	src := &mockSource{}
	src.setDoc("a.txt", "cat dog", 1000)
	d := NewDetector(src, 4)
	first, err := d.Detect(context.Background(), nil, src.docs)
	require.NoError(t, err)
	src.setDoc("a.txt", "cat dog bird", 2000)

	// When: detecting against the previous record
	cs, err := d.Detect(context.Background(), first.Next, src.docs)
	require.NoError(t, err)

	// Then: it is modified with a fresh fingerprint
	assert.Equal(t, []string{"a.txt"}, cs.Modified)
	assert.Equal(t, Hash([]byte("cat dog bird")), cs.Next["a.txt"].Hash)
	assert.Equal(t, int64(2000), cs.Next["a.txt"].MTime)
}

func TestDetect_RemovedDocument(t *testing.T) {
	// Given: a record containing a document no longer listed
	src := &mockSource{}
	src.setDoc("a.txt", "cat dog", 1000)
	src.setDoc("b.txt", "dog fish", 1000)
	d := NewDetector(src, 4)
	first, err := d.Detect(context.Background(), nil, src.docs)
	require.NoError(t, err)
	src.removeDoc("b.txt")

	// When: detecting against the previous record
	cs, err := d.Detect(context.Background(), first.Next, src.docs)
	require.NoError(t, err)

	// Then: the absent document is removed and dropped from the record
	assert.Equal(t, []string{"b.txt"}, cs.Removed)
	assert.Equal(t, []string{"a.txt"}, cs.Unchanged)
	_, ok := cs.Next["b.txt"]
	assert.False(t, ok)
}

func TestDetect_VanishedDuringHashing(t *testing.T) {
	// Given: a listing that includes a document whose content is gone
	src := &mockSource{}
	src.setDoc("a.txt", "cat dog", 1000)
	src.setDoc("b.txt", "dog fish", 1000)
	d := NewDetector(src, 4)
	first, err := d.Detect(context.Background(), nil, src.docs)
	require.NoError(t, err)

	// b.txt stays in the listing with a new mtime but reads fail.
	src.docs[1].ModTime = time.Unix(2000, 0)
	delete(src.files, "b.txt")

	// When: detecting against the previous record
	cs, err := d.Detect(context.Background(), first.Next, src.docs)
	require.NoError(t, err)

	// Then: the vanished document is treated as removed
	assert.Equal(t, []string{"b.txt"}, cs.Removed)
	_, ok := cs.Next["b.txt"]
	assert.False(t, ok)
}

func TestDetect_VanishedNewDocumentIsDropped(t *testing.T) {
	// Given: a brand-new document that disappears before hashing
	src := &mockSource{}
	src.setDoc("a.txt", "cat dog", 1000)
	src.docs = append(src.docs, source.DocInfo{
		Path:    "ghost.txt",
		Size:    5,
		ModTime: time.Unix(1000, 0),
	})
	d := NewDetector(src, 4)

	// When: detecting with no previous record
	cs, err := d.Detect(context.Background(), nil, src.docs)
	require.NoError(t, err)

	// Then: it appears in no change list and has no fingerprint
	assert.Equal(t, []string{"a.txt"}, cs.Added)
	assert.Empty(t, cs.Removed)
	_, ok := cs.Next["ghost.txt"]
	assert.False(t, ok)
}

func TestDetect_ReadErrorPropagates(t *testing.T) {
	// Given: a source whose reads fail outright
	src := &mockSource{failReads: true}
	src.setDoc("a.txt", "cat dog", 1000)
	d := NewDetector(src, 4)

	// When: detecting with no previous record
	_, err := d.Detect(context.Background(), nil, src.docs)

	// Then: the failure surfaces as an IO error
	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodeFileRead, qerrors.GetCode(err))
}

func TestDetect_SortedOutput(t *testing.T) {
	// Given: documents listed out of order
	src := &mockSource{}
	src.setDoc("c.txt", "three", 1000)
	src.setDoc("a.txt", "one", 1000)
	src.setDoc("b.txt", "two", 1000)
	d := NewDetector(src, 2)

	// When: detecting with no previous record
	cs, err := d.Detect(context.Background(), nil, src.docs)
	require.NoError(t, err)

	// Then: the change lists are sorted lexicographically
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, cs.Added)
}

func TestChangeKind_String(t *testing.T) {
	tests := []struct {
		kind ChangeKind
		want string
	}{
		{ChangeAdded, "added"},
		{ChangeModified, "modified"},
		{ChangeRemoved, "removed"},
		{ChangeUnchanged, "unchanged"},
		{ChangeKind(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}

func TestHash_Deterministic(t *testing.T) {
	assert.Equal(t, Hash([]byte("cat dog")), Hash([]byte("cat dog")))
	assert.NotEqual(t, Hash([]byte("cat dog")), Hash([]byte("dog cat")))
	assert.Len(t, Hash(nil), 64)
}
