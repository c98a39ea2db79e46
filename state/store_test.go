package state

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/RuiFG/streaming/streaming-trigger/log"
)

func countDescriptor() Descriptor[int64] {
	return GobDescriptor[int64]("count", func() int64 { return 0 }, Sum[int64]())
}

func TestCell_DefaultValue(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	cell := Bind(store, "k/0-10", countDescriptor())
	value, err := cell.Value().Get()
	assert.Nil(t, err)
	assert.Equal(t, int64(0), value)
}

func TestCell_UpdateAndClear(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	cell := Bind(store, "k/0-10", countDescriptor())
	_, err := cell.Update(7).Get()
	assert.Nil(t, err)
	value, err := cell.Value().Get()
	assert.Nil(t, err)
	assert.Equal(t, int64(7), value)

	_, err = cell.Clear().Get()
	assert.Nil(t, err)
	value, err = cell.Value().Get()
	assert.Nil(t, err)
	assert.Equal(t, int64(0), value)
}

func TestCell_NamespaceIsolation(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	descriptor := countDescriptor()
	first := Bind(store, "k/0-10", descriptor)
	second := Bind(store, "k/10-20", descriptor)
	_, _ = first.Update(3).Get()
	value, err := second.Value().Get()
	assert.Nil(t, err)
	assert.Equal(t, int64(0), value)
}

func TestMerge_Sum(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	descriptor := countDescriptor()
	_, _ = Bind(store, "k/0-10", descriptor).Update(2).Get()
	_, _ = Bind(store, "k/5-15", descriptor).Update(3).Get()

	_, err := Merge(store, descriptor, []string{"k/0-10", "k/5-15"}, "k/0-15").Get()
	assert.Nil(t, err)

	merged, err := Bind(store, "k/0-15", descriptor).Value().Get()
	assert.Nil(t, err)
	assert.Equal(t, int64(5), merged)
	//source cells are gone
	source, _ := Bind(store, "k/0-10", descriptor).Value().Get()
	assert.Equal(t, int64(0), source)
}

func TestMerge_Union(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	descriptor := GobDescriptor[[]string]("buffer", func() []string { return nil }, Union[string]())
	_, _ = Bind(store, "k/0-10", descriptor).Update([]string{"a"}).Get()
	_, _ = Bind(store, "k/5-15", descriptor).Update([]string{"b"}).Get()
	_, err := Merge(store, descriptor, []string{"k/0-10", "k/5-15"}, "k/0-15").Get()
	assert.Nil(t, err)
	merged, err := Bind(store, "k/0-15", descriptor).Value().Get()
	assert.Nil(t, err)
	assert.Equal(t, []string{"a", "b"}, merged)
}

func TestMerge_SkipsUnwrittenSources(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	descriptor := countDescriptor()
	_, _ = Bind(store, "k/0-10", descriptor).Update(2).Get()
	_, err := Merge(store, descriptor, []string{"k/0-10", "k/5-15"}, "k/0-15").Get()
	assert.Nil(t, err)
	merged, _ := Bind(store, "k/0-15", descriptor).Value().Get()
	assert.Equal(t, int64(2), merged)
}

func TestMerge_NoRule(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	descriptor := GobDescriptor[int64]("count", func() int64 { return 0 }, nil)
	_, err := Merge(store, descriptor, []string{"k/0-10"}, "k/0-15").Get()
	assert.Error(t, err)
}

func TestStore_DeleteNamespace(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	cell := Bind(store, "k/0-10", countDescriptor())
	_, _ = cell.Update(7).Get()
	_, err := store.DeleteNamespace("k/0-10").Get()
	assert.Nil(t, err)
	value, _ := cell.Value().Get()
	assert.Equal(t, int64(0), value)
}

func TestRules(t *testing.T) {
	assert.Equal(t, int64(6), Sum[int64]()([]int64{1, 2, 3}))
	assert.Equal(t, 1.5, Sum[float64]()([]float64{1, 0.5}))
	assert.Equal(t, "b", Latest[string]()([]string{"a", "b"}))
	assert.Equal(t, int64(1), Min[int64]()([]int64{3, 1, 2}))
	assert.Equal(t, []int{1, 2, 3}, Union[int]()([][]int{{1}, {2, 3}}))
}

func TestFSBackend(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFSBackend(log.Global().Named("test"), dir)
	assert.Nil(t, err)
	assert.Nil(t, backend.Put("k/0-10", "count", []byte{1, 2, 3}))
	value, err := backend.Get("k/0-10", "count")
	assert.Nil(t, err)
	assert.Equal(t, []byte{1, 2, 3}, value)

	assert.Nil(t, backend.Delete("k/0-10", "count"))
	value, err = backend.Get("k/0-10", "count")
	assert.Nil(t, err)
	assert.Nil(t, value)

	assert.Nil(t, backend.Put("k/0-10", "count", []byte{7}))
	assert.Nil(t, backend.DeleteNamespace("k/0-10"))
	value, _ = backend.Get("k/0-10", "count")
	assert.Nil(t, value)
	assert.Nil(t, backend.Close())
}

func TestFSBackend_Reopen(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFSBackend(log.Global().Named("test"), dir)
	assert.Nil(t, err)
	assert.Nil(t, backend.Put("k/0-10", "count", []byte{42}))
	assert.Nil(t, backend.Close())

	reopened, err := NewFSBackend(log.Global().Named("test"), dir)
	assert.Nil(t, err)
	value, err := reopened.Get("k/0-10", "count")
	assert.Nil(t, err)
	assert.Equal(t, []byte{42}, value)
	assert.Nil(t, reopened.Close())
}
