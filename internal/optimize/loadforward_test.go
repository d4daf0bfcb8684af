package optimize

import (
	"testing"

	"x64cc/internal/ir"
	"x64cc/internal/types"
)

func TestLoadForwardsFromPriorStore(t *testing.T) {
	// store %0, 5; %1 = load %0  -->  %1 = 5
	fn := singleBlockFunc([]ir.Instruction{
		&ir.AllocaInst{Dest: 0, Type: intType()},
		&ir.StoreInst{Addr: ir.VarOperand(0), Src: ir.ConstOperand(5), ValueType: intType()},
		&ir.LoadInst{Dest: 1, Addr: ir.VarOperand(0), ValueType: intType()},
	}, &ir.RetTerm{Value: opPtr(ir.VarOperand(1))})

	if !(&LoadForward{}).Run(fn) {
		t.Fatal("expected forwarding to report a change")
	}
	cp, ok := fn.Blocks[0].Instructions[2].(*ir.CopyInst)
	if !ok || cp.Src.IntVal != 5 {
		t.Errorf("load should forward the stored value, got %s", fn.Blocks[0].Instructions[2])
	}
}

func TestDeadStoreEliminated(t *testing.T) {
	// store %0, 1; store %0, 2; %1 = load %0 -- first store is dead.
	fn := singleBlockFunc([]ir.Instruction{
		&ir.AllocaInst{Dest: 0, Type: intType()},
		&ir.StoreInst{Addr: ir.VarOperand(0), Src: ir.ConstOperand(1), ValueType: intType()},
		&ir.StoreInst{Addr: ir.VarOperand(0), Src: ir.ConstOperand(2), ValueType: intType()},
		&ir.LoadInst{Dest: 1, Addr: ir.VarOperand(0), ValueType: intType()},
	}, &ir.RetTerm{Value: opPtr(ir.VarOperand(1))})

	(&LoadForward{}).Run(fn)
	stores := 0
	for _, inst := range fn.Blocks[0].Instructions {
		if st, ok := inst.(*ir.StoreInst); ok {
			stores++
			if st.Src.IntVal != 2 {
				t.Errorf("surviving store should be the last one, got %s", st)
			}
		}
	}
	if stores != 1 {
		t.Errorf("overwritten store should be dropped, %d stores remain", stores)
	}
}

func TestCallInvalidatesMemoryState(t *testing.T) {
	// A call may alias anything: a load after it must not forward.
	fn := singleBlockFunc([]ir.Instruction{
		&ir.AllocaInst{Dest: 0, Type: intType()},
		&ir.StoreInst{Addr: ir.VarOperand(0), Src: ir.ConstOperand(5), ValueType: intType()},
		&ir.CallInst{Dest: nil, Name: "external", Args: nil},
		&ir.LoadInst{Dest: 1, Addr: ir.VarOperand(0), ValueType: intType()},
	}, &ir.RetTerm{Value: opPtr(ir.VarOperand(1))})

	(&LoadForward{}).Run(fn)
	if _, ok := fn.Blocks[0].Instructions[3].(*ir.LoadInst); !ok {
		t.Errorf("load after call must stay a load, got %s", fn.Blocks[0].Instructions[3])
	}
}

func TestCallKeepsEarlierStore(t *testing.T) {
	// store; call; store -- the call can observe the first store, so it is
	// not dead even though a later store overwrites the slot.
	fn := singleBlockFunc([]ir.Instruction{
		&ir.AllocaInst{Dest: 0, Type: intType()},
		&ir.StoreInst{Addr: ir.VarOperand(0), Src: ir.ConstOperand(1), ValueType: intType()},
		&ir.CallInst{Dest: nil, Name: "observe", Args: []ir.Operand{ir.VarOperand(0)}},
		&ir.StoreInst{Addr: ir.VarOperand(0), Src: ir.ConstOperand(2), ValueType: intType()},
	}, &ir.RetTerm{Value: opPtr(ir.ConstOperand(0))})

	(&LoadForward{}).Run(fn)
	stores := 0
	for _, inst := range fn.Blocks[0].Instructions {
		if _, ok := inst.(*ir.StoreInst); ok {
			stores++
		}
	}
	if stores != 2 {
		t.Errorf("both stores must survive around the call, got %d", stores)
	}
}

func TestStoreThroughAliasInvalidatesOtherSlots(t *testing.T) {
	// %0 holds x; %1 is a pointer that (at runtime) also names x. Writing
	// through %1 must kill the tracked value of %0 so the final load is not
	// forwarded from the stale store.
	fn := singleBlockFunc([]ir.Instruction{
		&ir.AllocaInst{Dest: 0, Type: intType()},
		&ir.StoreInst{Addr: ir.VarOperand(0), Src: ir.ConstOperand(1), ValueType: intType()},
		&ir.CopyInst{Dest: 1, Src: ir.VarOperand(0)},
		&ir.StoreInst{Addr: ir.VarOperand(1), Src: ir.ConstOperand(2), ValueType: intType()},
		&ir.LoadInst{Dest: 2, Addr: ir.VarOperand(0), ValueType: intType()},
	}, &ir.RetTerm{Value: opPtr(ir.VarOperand(2))})

	(&LoadForward{}).Run(fn)
	last := fn.Blocks[0].Instructions[len(fn.Blocks[0].Instructions)-1]
	if cp, ok := last.(*ir.CopyInst); ok && cp.Src.Kind == ir.OpConstant && cp.Src.IntVal == 1 {
		t.Error("load forwarded a value that an aliasing store overwrote")
	}
}

func TestLoadForwardIsBlockLocal(t *testing.T) {
	// Store in bb0, load in bb1: no cross-block forwarding.
	fn := &ir.Function{
		Name:       "f",
		ReturnType: intType(),
		Entry:      0,
		VarTypes:   map[ir.VarId]*types.Type{},
		Blocks: []*ir.BasicBlock{
			{ID: 0, Instructions: []ir.Instruction{
				&ir.AllocaInst{Dest: 0, Type: intType()},
				&ir.StoreInst{Addr: ir.VarOperand(0), Src: ir.ConstOperand(5), ValueType: intType()},
			}, Terminator: &ir.BrTerm{Target: 1}},
			{ID: 1, Instructions: []ir.Instruction{
				&ir.LoadInst{Dest: 1, Addr: ir.VarOperand(0), ValueType: intType()},
			}, Terminator: &ir.RetTerm{Value: opPtr(ir.VarOperand(1))}},
		},
	}
	if (&LoadForward{}).Run(fn) {
		t.Error("forwarding must not cross block boundaries")
	}
}
