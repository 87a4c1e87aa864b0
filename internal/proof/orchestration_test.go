package proof

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privacypool/internal/poolerr"
)

func TestStagingAreaSingleSlot(t *testing.T) {
	var s StagingArea
	require.NoError(t, s.Put(&Request{ID: "a"}))
	assert.ErrorIs(t, s.Put(&Request{ID: "b"}), poolerr.ErrStagingBusy)

	got, ok := s.Peek()
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)

	_, ok = s.Take("b")
	assert.False(t, ok, "mismatched id must not take")

	got, ok = s.Take("")
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)

	_, ok = s.Take("")
	assert.False(t, ok)
}

func TestStagingAreaConcurrentTake(t *testing.T) {
	var s StagingArea
	require.NoError(t, s.Put(&Request{ID: "only"}))

	var taken atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.Take(""); ok {
				taken.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, taken.Load())
}

func TestRegistryFulfilOnce(t *testing.T) {
	r := NewRegistry()
	ch := r.Register("id", 0, nil)

	assert.True(t, r.Fulfill("id", Result{Calldata: []string{"0x1"}}))
	assert.False(t, r.Fulfill("id", Result{Calldata: []string{"0x2"}}))

	res, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, "id", res.RequestID)
	assert.Equal(t, []string{"0x1"}, res.Calldata)

	_, ok = <-ch
	assert.False(t, ok, "channel closes after the single result")
	assert.Zero(t, r.Len())
}

func TestRegistryExpiry(t *testing.T) {
	r := NewRegistry()
	ch := r.Register("id", 20*time.Millisecond, func(id string) {
		r.Fulfill(id, Result{Err: poolerr.ErrApprovalExpired})
	})

	select {
	case res := <-ch:
		assert.ErrorIs(t, res.Err, poolerr.ErrApprovalExpired)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for expiry")
	}
}

func TestRegistryExtendReplacesTimer(t *testing.T) {
	r := NewRegistry()
	var fired atomic.Int32
	ch := r.Register("id", 20*time.Millisecond, func(string) { fired.Add(1) })
	require.True(t, r.Extend("id", time.Hour, func(string) { fired.Add(1) }))

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, fired.Load(), "replaced timer must not fire")

	r.Fulfill("id", Result{})
	<-ch
	assert.False(t, r.Extend("id", time.Second, nil))
}

func TestRegistryFailAll(t *testing.T) {
	r := NewRegistry()
	a := r.Register("a", 0, nil)
	b := r.Register("b", 0, nil)

	assert.Equal(t, 2, r.FailAll(poolerr.ErrSessionClosed))
	for _, ch := range []<-chan Result{a, b} {
		res := <-ch
		assert.ErrorIs(t, res.Err, poolerr.ErrSessionClosed)
	}
}

func TestRuntimeRetriesFailedInit(t *testing.T) {
	calls := 0
	rt := NewRuntime(func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("wasm not loaded")
		}
		return nil
	})

	require.Error(t, rt.Ensure(context.Background()))
	assert.False(t, rt.Ready())
	require.NoError(t, rt.Ensure(context.Background()))
	require.NoError(t, rt.Ensure(context.Background()))
	assert.True(t, rt.Ready())
	assert.Equal(t, 2, calls)
}

func TestFlattenFields(t *testing.T) {
	out, err := FlattenFields([]string{"0x1", "255"})
	require.NoError(t, err)
	require.Len(t, out, 64)
	assert.Equal(t, byte(1), out[31])
	assert.Equal(t, byte(0xff), out[63])
	assert.Zero(t, out[0])

	_, err = FlattenFields([]string{"nope"})
	assert.Error(t, err)

	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err = FlattenFields([]string{tooBig.String()})
	assert.Error(t, err)
}

func TestFormatCalldata(t *testing.T) {
	got := FormatCalldata([]*big.Int{big.NewInt(0), big.NewInt(26)})
	assert.Equal(t, []string{"0x2", "0x0", "0x1a"}, got)
	assert.Equal(t, []string{"0x0"}, FormatCalldata(nil))
}

func TestHTTPArtifactsLocalDir(t *testing.T) {
	dir := t.TempDir()
	prog := filepath.Join(dir, "ownership.json")
	vk := filepath.Join(dir, "ownership.vk")
	require.NoError(t, os.WriteFile(prog, []byte(`{"backend":"test","circuit":"ownership"}`), 0o644))
	require.NoError(t, os.WriteFile(vk, []byte{1, 2, 3}, 0o644))

	outside := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(outside, []byte(`{"backend":"test"}`), 0o644))
	ctx := context.Background()

	t.Run("inside dir", func(t *testing.T) {
		a := NewHTTPArtifacts(time.Second, dir)
		p, raw, err := a.Fetch(ctx, Circuit{JSONURL: "file://" + prog, VKURL: "file://" + vk})
		require.NoError(t, err)
		assert.Equal(t, "ownership", p.Circuit)
		assert.Equal(t, []byte{1, 2, 3}, raw)
	})

	t.Run("outside dir", func(t *testing.T) {
		a := NewHTTPArtifacts(time.Second, dir)
		_, _, err := a.Fetch(ctx, Circuit{JSONURL: "file://" + outside, VKURL: "file://" + vk})
		assert.ErrorContains(t, err, "outside the artifact directory")

		_, _, err = a.Fetch(ctx, Circuit{JSONURL: "file://" + dir + "/../" + filepath.Base(outside), VKURL: "file://" + vk})
		assert.Error(t, err)
	})

	t.Run("disabled", func(t *testing.T) {
		a := NewHTTPArtifacts(time.Second, "")
		_, _, err := a.Fetch(ctx, Circuit{JSONURL: "file://" + prog, VKURL: "file://" + vk})
		assert.ErrorContains(t, err, "file artifacts are disabled")
	})

	t.Run("relative url", func(t *testing.T) {
		a := NewHTTPArtifacts(time.Second, dir)
		_, _, err := a.Fetch(ctx, Circuit{JSONURL: "file://ownership.json", VKURL: "file://" + vk})
		assert.Error(t, err)
	})

	t.Run("decode error does not echo content", func(t *testing.T) {
		a := NewHTTPArtifacts(time.Second, dir)
		_, _, err := a.Fetch(ctx, Circuit{JSONURL: "file://" + vk, VKURL: "file://" + vk})
		require.Error(t, err)
		assert.Equal(t, "artifact file://"+vk+" is not a program descriptor", err.Error())
	})
}
