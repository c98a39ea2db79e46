package future

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestFuture_Complete(t *testing.T) {
	f := New[string]()
	assert.False(t, f.Resolved())
	assert.True(t, f.Complete("tt"))
	assert.False(t, f.Complete("ttt"))
	assert.True(t, f.Resolved())
	value, err := f.Get()
	assert.Nil(t, err)
	assert.Equal(t, "tt", value)
	select {
	case <-f.Done():
		t.Log("success")
	case <-time.After(2 * time.Millisecond):
		t.Errorf("can't happend")
	}
}

func TestFuture_Fail(t *testing.T) {
	f := New[int]()
	assert.True(t, f.Fail(errors.Errorf("broken")))
	assert.False(t, f.Complete(1))
	_, err := f.Get()
	assert.EqualError(t, err, "broken")
}

func TestFuture_OnComplete(t *testing.T) {
	f := New[int]()
	resultChan := make(chan int, 2)
	f.OnComplete(func(value int, err error) {
		resultChan <- value
	})
	f.Complete(7)
	assert.Equal(t, 7, <-resultChan)
	//registering after resolution still runs the continuation
	f.OnComplete(func(value int, err error) {
		resultChan <- value * 2
	})
	assert.Equal(t, 14, <-resultChan)
}

func TestFuture_OnCompleteConcurrentWithComplete(t *testing.T) {
	//continuations registered while the resolution is in flight must still
	//observe the resolved value, never the zero value
	for i := 0; i < 20000; i++ {
		f := New[int]()
		results := make(chan int, 4)
		go f.Complete(42)
		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				f.OnComplete(func(value int, err error) {
					results <- value
				})
			}()
		}
		wg.Wait()
		for j := 0; j < 4; j++ {
			if value := <-results; value != 42 {
				t.Fatalf("continuation observed %d instead of 42", value)
			}
		}
	}
}

func TestFuture_Map(t *testing.T) {
	f := New[int]()
	mapped := Map(f, func(value int) (string, error) {
		if value < 0 {
			return "", errors.Errorf("negative")
		}
		return "ok", nil
	})
	f.Complete(1)
	value, err := mapped.Get()
	assert.Nil(t, err)
	assert.Equal(t, "ok", value)

	failed := Map(Completed(-1), func(value int) (string, error) {
		return "", errors.Errorf("negative")
	})
	_, err = failed.Get()
	assert.EqualError(t, err, "negative")
}

func TestFuture_ThenAsync(t *testing.T) {
	first := New[int]()
	second := ThenAsync(first, func(value int) *Future[int] {
		return Completed(value + 1)
	})
	first.Complete(1)
	value, err := second.Get()
	assert.Nil(t, err)
	assert.Equal(t, 2, value)
}

func TestFuture_All(t *testing.T) {
	f1 := New[struct{}]()
	f2 := New[struct{}]()
	all := All(f1, f2)
	f1.Complete(struct{}{})
	assert.False(t, all.Resolved())
	f2.Complete(struct{}{})
	_, err := all.Get()
	assert.Nil(t, err)

	_, err = All().Get()
	assert.Nil(t, err)

	failed := All(Completed(struct{}{}), Failed[struct{}](errors.Errorf("broken")))
	_, err = failed.Get()
	assert.EqualError(t, err, "broken")
}
