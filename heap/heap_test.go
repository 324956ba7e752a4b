package heap

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racaljk/yvm/classfile"
	"github.com/racaljk/yvm/vm"
)

var (
	pointClass = &classfile.Class{Name: "demo/Point", SuperName: "java/lang/Object"}
	point3D    = &classfile.Class{Name: "demo/Point3D", SuperName: "demo/Point"}
)

func TestObjectFields(t *testing.T) {
	h := New()
	p, err := h.NewObject(point3D)
	require.NoError(t, err)
	assert.Equal(t, vm.Handle(1), p.Handle())
	assert.Same(t, point3D, p.Class())

	x, err := h.GetField(p, pointClass, "x", "I")
	require.NoError(t, err)
	assert.Equal(t, vm.Int(0), x, "unwritten fields read as zero")

	next, err := h.GetField(p, pointClass, "next", "Ldemo/Point;")
	require.NoError(t, err)
	assert.True(t, next.IsNull())

	require.NoError(t, h.PutField(p, pointClass, "x", "I", vm.Int(3)))
	require.NoError(t, h.PutField(p, point3D, "x", "I", vm.Int(9)))

	x, err = h.GetField(p, pointClass, "x", "I")
	require.NoError(t, err)
	assert.Equal(t, int32(3), x.AsInt(), "a shadowing field keeps separate storage")
	x, err = h.GetField(p, point3D, "x", "I")
	require.NoError(t, err)
	assert.Equal(t, int32(9), x.AsInt())

	other, err := h.NewObject(pointClass)
	require.NoError(t, err)
	x, err = h.GetField(other, pointClass, "x", "I")
	require.NoError(t, err)
	assert.Equal(t, int32(0), x.AsInt())
}

func TestArrays(t *testing.T) {
	h := New()
	longs, err := h.NewArray(vm.ElemLong, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, int32(3), longs.Len())
	assert.Equal(t, vm.ElemLong, longs.Elem())

	v, err := h.ArrayItem(longs, 2)
	require.NoError(t, err)
	assert.Equal(t, vm.Long(0), v)

	require.NoError(t, h.SetArrayItem(longs, 1, vm.Long(1<<40)))
	v, err = h.ArrayItem(longs, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<40), v.AsLong())

	_, err = h.ArrayItem(longs, 3)
	assert.True(t, errors.Is(err, vm.ErrIndexOutOfBounds))
	assert.True(t, errors.Is(h.SetArrayItem(longs, -1, vm.Long(0)), vm.ErrIndexOutOfBounds))
	assert.True(t, errors.Is(h.SetArrayItem(longs, 0, vm.Int(1)), vm.ErrInvariant))

	refs, err := h.NewArray(vm.ElemRef, pointClass, 2)
	require.NoError(t, err)
	v, err = h.ArrayItem(refs, 0)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
	require.NoError(t, h.SetArrayItem(refs, 0, longs))

	_, err = h.NewArray(vm.ElemInt, nil, -1)
	assert.True(t, errors.Is(err, vm.ErrNegativeArraySize))

	empty, err := h.NewArray(vm.ElemChar, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(0), empty.Len())
	assert.False(t, empty.IsNull())
}

func TestBadReferences(t *testing.T) {
	h := New()
	_, err := h.GetField(vm.Null, pointClass, "x", "I")
	assert.True(t, errors.Is(err, vm.ErrNullReference))

	_, err = h.ArrayItem(vm.Int(4), 0)
	assert.True(t, errors.Is(err, vm.ErrInvariant))

	_, err = h.GetField(vm.ObjectRef(42, pointClass), pointClass, "x", "I")
	assert.True(t, errors.Is(err, vm.ErrInvariant), "dangling handle")

	arr, err := h.NewArray(vm.ElemInt, nil, 1)
	require.NoError(t, err)
	_, err = h.GetField(arr, pointClass, "x", "I")
	assert.True(t, errors.Is(err, vm.ErrInvariant))

	obj, err := h.NewObject(pointClass)
	require.NoError(t, err)
	_, err = h.ArrayItem(obj, 0)
	assert.True(t, errors.Is(err, vm.ErrInvariant))
}

func TestMonitorPerReference(t *testing.T) {
	h := New()
	a, err := h.NewObject(pointClass)
	require.NoError(t, err)
	b, err := h.NewObject(pointClass)
	require.NoError(t, err)

	assert.Same(t, h.Monitor(a), h.Monitor(a))
	assert.NotSame(t, h.Monitor(a), h.Monitor(b))

	owner := uuid.New()
	h.Monitor(a).Enter(owner)
	assert.True(t, h.Monitor(b).TryEnter(uuid.New()), "monitors are independent")
	require.NoError(t, h.Monitor(a).Exit(owner))
}

func TestStatsAndCensus(t *testing.T) {
	h := New()
	for k := 0; k < 3; k++ {
		_, err := h.NewObject(pointClass)
		require.NoError(t, err)
	}
	_, err := h.NewObject(point3D)
	require.NoError(t, err)
	arr, err := h.NewArray(vm.ElemInt, nil, 5)
	require.NoError(t, err)
	h.Monitor(arr)

	assert.Equal(t, Stats{Objects: 4, Arrays: 1, Elements: 5, Monitors: 1}, h.Stats())
	assert.Equal(t, []ClassCount{
		{"demo/Point", 3},
		{"[I", 1},
		{"demo/Point3D", 1},
	}, h.Census())
}

func TestConcurrentAllocation(t *testing.T) {
	h := New()
	var wg sync.WaitGroup
	handles := make([][]vm.Handle, 8)
	for g := range handles {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for k := 0; k < 100; k++ {
				v, err := h.NewObject(pointClass)
				if err != nil {
					t.Error(err)
					return
				}
				handles[g] = append(handles[g], v.Handle())
			}
		}(g)
	}
	wg.Wait()

	seen := make(map[vm.Handle]bool)
	for _, hs := range handles {
		for _, handle := range hs {
			assert.False(t, seen[handle], "handle %d allocated twice", handle)
			seen[handle] = true
		}
	}
	assert.Len(t, seen, 800)
}
