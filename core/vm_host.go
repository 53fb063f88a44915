package core

import (
	"github.com/sirupsen/logrus"
	"github.com/wasmerio/wasmer-go/wasmer"
)

// maxValueBytes bounds db_get's write into guest memory (§4.6's host
// function table: "writes up to 1024 bytes").
const maxValueBytes = 1024

// maxMemoryPages rejects modules declaring more than 16 MiB of linear
// memory (256 wasm pages of 64 KiB each), one of the determinism bounds
// resolved in §4.6/§9.
const maxMemoryPages = 256

// vmHostContext is the mutable state a single compute_state call's host
// functions operate against: the contract's key/value state, the current
// call's input parameters, and an accumulating response buffer for
// render. It is never shared across calls — a fresh one is built per
// call, matching the "fresh engine/store per call" determinism bound.
type vmHostContext struct {
	state    map[string][]byte
	params   []byte
	response []byte
	memory   *wasmer.Memory
	log      *logrus.Entry
}

func (h *vmHostContext) readGuest(ptr, length int32) []byte {
	if h.memory == nil || ptr < 0 || length < 0 {
		return nil
	}
	data := h.memory.Data()
	start, end := int(ptr), int(ptr)+int(length)
	if start < 0 || end > len(data) || start > end {
		return nil
	}
	return data[start:end]
}

func (h *vmHostContext) writeGuest(ptr int32, b []byte) int32 {
	if h.memory == nil || ptr < 0 {
		return -1
	}
	data := h.memory.Data()
	start := int(ptr)
	if start < 0 || start+len(b) > len(data) {
		return -1
	}
	copy(data[start:], b)
	return int32(len(b))
}

// registerHostFunctions wires the five host functions §4.6 names under
// the "env" namespace, the same registration idiom the teacher uses in
// virtual_machine.go's registerHost (wasmer.NewFunctionType +
// ImportObject.Register).
func registerHostFunctions(store *wasmer.Store, importObject *wasmer.ImportObject, h *vmHostContext) {
	dbGet := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(
			wasmer.NewValueTypes(wasmer.I32, wasmer.I32, wasmer.I32),
			wasmer.NewValueTypes(wasmer.I32),
		),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			keyPtr, keyLen, valuePtr := args[0].I32(), args[1].I32(), args[2].I32()
			key := h.readGuest(keyPtr, keyLen)
			if key == nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			val, ok := h.state[string(key)]
			if !ok {
				return []wasmer.Value{wasmer.NewI32(0)}, nil
			}
			if len(val) > maxValueBytes {
				val = val[:maxValueBytes]
			}
			n := h.writeGuest(valuePtr, val)
			return []wasmer.Value{wasmer.NewI32(n)}, nil
		},
	)

	dbSet := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(
			wasmer.NewValueTypes(wasmer.I32, wasmer.I32, wasmer.I32, wasmer.I32),
			wasmer.NewValueTypes(),
		),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			keyPtr, keyLen, valPtr, valLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
			key := h.readGuest(keyPtr, keyLen)
			val := h.readGuest(valPtr, valLen)
			if key != nil {
				cp := make([]byte, len(val))
				copy(cp, val)
				h.state[string(key)] = cp
			}
			return nil, nil
		},
	)

	dbRemove := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(
			wasmer.NewValueTypes(wasmer.I32, wasmer.I32),
			wasmer.NewValueTypes(),
		),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			keyPtr, keyLen := args[0].I32(), args[1].I32()
			key := h.readGuest(keyPtr, keyLen)
			if key != nil {
				delete(h.state, string(key))
			}
			return nil, nil
		},
	)

	getParams := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(
			wasmer.NewValueTypes(wasmer.I32),
			wasmer.NewValueTypes(wasmer.I32),
		),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			ptr := args[0].I32()
			n := h.writeGuest(ptr, h.params)
			return []wasmer.Value{wasmer.NewI32(n)}, nil
		},
	)

	responseWrite := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(
			wasmer.NewValueTypes(wasmer.I32, wasmer.I32),
			wasmer.NewValueTypes(),
		),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			ptr, length := args[0].I32(), args[1].I32()
			b := h.readGuest(ptr, length)
			h.response = append(h.response, b...)
			return nil, nil
		},
	)

	importObject.Register("env", map[string]wasmer.IntoExtern{
		"db_get":         dbGet,
		"db_set":         dbSet,
		"db_remove":      dbRemove,
		"get_params":     getParams,
		"response_write": responseWrite,
	})
}
