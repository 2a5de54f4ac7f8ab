package workerpool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Submit(t *testing.T) {
	p, err := New(&Config{Workers: 4}, nil)
	require.NoError(t, err)
	defer p.Shutdown(time.Second)

	var (
		wg    sync.WaitGroup
		count int64
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			atomic.AddInt64(&count, 1)
		}))
	}
	wg.Wait()

	assert.Equal(t, int64(20), atomic.LoadInt64(&count))
	assert.Equal(t, int64(20), p.Stats().Submitted)
}

func TestPool_SubmitWithResult(t *testing.T) {
	p, err := New(nil, nil)
	require.NoError(t, err)
	defer p.Shutdown(time.Second)

	res := <-p.SubmitWithResult(func() (interface{}, error) {
		return "exports/s1/1.json", nil
	})
	require.NoError(t, res.Error)
	assert.Equal(t, "exports/s1/1.json", res.Data)

	boom := errors.New("boom")
	res = <-p.SubmitWithResult(func() (interface{}, error) {
		return nil, boom
	})
	assert.ErrorIs(t, res.Error, boom)
}

func TestPool_Closed(t *testing.T) {
	p, err := New(&Config{Workers: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(0))

	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)

	res := <-p.SubmitWithResult(func() (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, res.Error, ErrPoolClosed)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(&Config{Workers: 0}, nil)
	assert.Error(t, err)
}

func TestPool_RunningAndFree(t *testing.T) {
	p, err := New(&Config{Workers: 2, Nonblocking: true}, nil)
	require.NoError(t, err)
	defer p.Shutdown(time.Second)

	assert.Equal(t, 0, p.Running())
	assert.Equal(t, 2, p.Free())

	release := make(chan struct{})
	require.NoError(t, p.Submit(func() { <-release }))
	require.NoError(t, p.Submit(func() { <-release }))
	assert.Equal(t, 2, p.Running())
	assert.Equal(t, 0, p.Free())

	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolFull)
	assert.Equal(t, int64(1), p.Stats().Failed)

	// 空闲 worker 在过期前仍计入 Running
	close(release)
	require.Eventually(t, func() bool { return p.Stats().Completed == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), p.Stats().Running)
}
