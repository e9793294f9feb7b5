package vmdbg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbrew-vm/vmdbg/internal/fakevm"
	"github.com/coldbrew-vm/vmdbg/wire"
)

func TestBackTraceIsCachedAcrossCalls(t *testing.T) {
	system := newStubSystem(FunctionRef{Id: 5, Name: "leaf", Kind: FunctionKindNormal})
	ctrl, fv, _ := newTestController(t)
	initializeNonSnapshot(t, ctrl, fv, system)
	pauseAtBreakpoint(t, ctrl, fv, 1, 0, 5, 0)

	done := make(chan *BackTrace, 1)
	go func() {
		bt, err := ctrl.BackTrace(1)
		require.NoError(t, err)
		done <- bt
	}()
	fv.Expect(wire.CodeProcessBacktraceRequest)
	payload := fakevm.Uint32Payload(1)
	payload = append(payload, fakevm.Uint32Payload(5)...)
	payload = append(payload, fakevm.Uint32Payload(0)...)
	fv.Reply(wire.CodeProcessBacktrace, payload)
	first := <-done

	// second call must not touch the wire: no fv.Expect here.
	second, err := ctrl.BackTrace(1)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestFibersEnumeratesEachFiberBacktrace(t *testing.T) {
	system := newStubSystem(FunctionRef{Id: 5, Name: "leaf", Kind: FunctionKindNormal})
	ctrl, fv, _ := newTestController(t)
	initializeNonSnapshot(t, ctrl, fv, system)
	pauseAtBreakpoint(t, ctrl, fv, 1, 0, 5, 0)

	done := make(chan []*BackTrace, 1)
	go func() {
		fibers, err := ctrl.Fibers()
		require.NoError(t, err)
		done <- fibers
	}()

	fv.Expect(wire.CodeNewMap)
	fv.Expect(wire.CodeProcessAddFibersToMap)
	fv.Reply(wire.CodeProcessNumberOfStacks, fakevm.Uint32Payload(2))

	for i := 0; i < 2; i++ {
		fv.Expect(wire.CodeProcessFiberBacktraceRequest)
		payload := fakevm.Uint32Payload(1)
		payload = append(payload, fakevm.Uint32Payload(5)...)
		payload = append(payload, fakevm.Uint32Payload(0)...)
		fv.Reply(wire.CodeProcessBacktrace, payload)
	}
	fv.Expect(wire.CodeDeleteMap)

	fibers := <-done
	require.Len(t, fibers, 2)
	assert.Equal(t, 1, fibers[0].VisibleFrameCount())
}
