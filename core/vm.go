package core

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wasmerio/wasmer-go/wasmer"
)

// wasmMagic is the leading four bytes of any WASM module, raw or hex
// encoded (§4.6 "Detect WASM via magic bytes").
var wasmMagic = []byte{0x00, 'a', 's', 'm'}

// vmCallBudget is the wall-clock bound on a single contract call (§4.6's
// determinism bounds: 2 seconds, enforced by abandoning — not killing —
// an overrunning goroutine, since Wasmer execution is not externally
// preemptible).
const vmCallBudget = 2 * time.Second

// VM is a deterministic WebAssembly sandbox. Every call gets a fresh
// wasmer.Engine/Store/Instance; no state is shared across calls, the
// same discipline the teacher's virtual_machine.go uses per VM.Execute.
type VM struct {
	log *logrus.Entry
}

// NewVM constructs a VM with the given logger.
func NewVM(log *logrus.Logger) *VM {
	return &VM{log: log.WithField("component", "vm")}
}

func decodeCode(code string) ([]byte, bool) {
	raw := []byte(code)
	if len(raw) >= 4 && bytesEqual(raw[:4], wasmMagic) {
		return raw, true
	}
	if hexBytes, err := hex.DecodeString(code); err == nil && len(hexBytes) >= 4 && bytesEqual(hexBytes[:4], wasmMagic) {
		return hexBytes, true
	}
	return raw, false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ComputeState derives the current state of contractID by replaying every
// contract_call:v1 event against it in timestamp order (§4.6). It returns
// a JSON object projection of the final state.
func (vm *VM) ComputeState(s *Store, contractID string) (json.RawMessage, error) {
	contractEvent, err := s.Get(contractID)
	if err != nil {
		return nil, err
	}
	contract, ok := contractEvent.Payload.(*ContractPayload)
	if !ok {
		return nil, fmt.Errorf("%w: not a contract", ErrInvalidEvent)
	}

	calls, err := s.ByTarget(contractID)
	if err != nil {
		return nil, err
	}
	var callEvents []*Event
	for _, e := range calls {
		if e.Type == "contract_call:v1" {
			callEvents = append(callEvents, e)
		}
	}
	sortByTimestampAsc(callEvents)

	wasmBytes, isWasm := decodeCode(contract.Code)
	if isWasm {
		return vm.computeWasmState(wasmBytes, contract.InitParams, callEvents)
	}
	return vm.computeKVState(contract.InitParams, callEvents)
}

func initByteMap(initParams string) (map[string][]byte, error) {
	var raw map[string]string
	if initParams == "" {
		return map[string][]byte{}, nil
	}
	if err := json.Unmarshal([]byte(initParams), &raw); err != nil {
		return nil, fmt.Errorf("%w: bad init_params: %v", ErrSandbox, err)
	}
	out := make(map[string][]byte, len(raw))
	for k, v := range raw {
		out[k] = []byte(v)
	}
	return out, nil
}

func (vm *VM) computeWasmState(wasmBytes []byte, initParams string, calls []*Event) (json.RawMessage, error) {
	state, err := initByteMap(initParams)
	if err != nil {
		return nil, err
	}

	for _, call := range calls {
		cp, ok := call.Payload.(*ContractCallPayload)
		if !ok {
			continue
		}
		next, err := vm.runWasmCall(wasmBytes, state, cp.Method, []byte(cp.Params))
		if err != nil {
			// Call atomicity: the state after a failed call is the state
			// before it.
			vm.log.WithError(err).WithField("method", cp.Method).Warn("sandboxed call failed, state unchanged")
			continue
		}
		state = next
	}
	return stateToJSON(state), nil
}

// runWasmCall instantiates a fresh engine/store/module/instance, calls the
// exported method named by method, and returns the mutated state if the
// call completes within the budget; otherwise the call is abandoned and
// an error returned so the caller discards any partial mutation.
func (vm *VM) runWasmCall(wasmBytes []byte, state map[string][]byte, method string, params []byte) (map[string][]byte, error) {
	// Work on a copy so a failed/abandoned call cannot mutate the caller's
	// state map.
	working := make(map[string][]byte, len(state))
	for k, v := range state {
		working[k] = v
	}

	type result struct {
		state map[string][]byte
		err   error
	}
	done := make(chan result, 1)

	go func() {
		s, err := vm.invokeExport(wasmBytes, working, params, method, nil)
		done <- result{s, err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), vmCallBudget)
	defer cancel()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSandbox, r.err)
		}
		return r.state, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: call exceeded time budget", ErrSandbox)
	}
}

// invokeExport is the single entry point that touches wasmer: build a
// fresh engine/store/module/instance, register the five host functions,
// reject oversized declared memory, call the export, and return the
// resulting state. Bytes written via response_write are not returned.
func (vm *VM) invokeExport(wasmBytes []byte, state map[string][]byte, params []byte, export string, _ interface{}) (map[string][]byte, error) {
	engine := wasmer.NewEngine()
	store := wasmer.NewStore(engine)

	module, err := wasmer.NewModule(store, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile module: %w", err)
	}

	h := &vmHostContext{state: state, params: params, log: vm.log}
	importObject := wasmer.NewImportObject()
	registerHostFunctions(store, importObject, h)

	instance, err := wasmer.NewInstance(module, importObject)
	if err != nil {
		return nil, fmt.Errorf("instantiate: %w", err)
	}

	if mem, err := instance.Exports.GetMemory("memory"); err == nil && mem != nil {
		h.memory = mem
		if mem.Size() > maxMemoryPages {
			return nil, fmt.Errorf("declared memory exceeds %d pages", maxMemoryPages)
		}
	}

	fn, err := instance.Exports.GetFunction(export)
	if err != nil {
		// Missing export on a contract_call is a no-op, not a trap: the
		// state is unchanged.
		return state, nil
	}
	if _, err := fn(); err != nil {
		return nil, fmt.Errorf("call %s: %w", export, err)
	}

	return h.state, nil
}

func (vm *VM) computeKVState(initParams string, calls []*Event) (json.RawMessage, error) {
	state := map[string]string{}
	if initParams != "" {
		if err := json.Unmarshal([]byte(initParams), &state); err != nil {
			return nil, fmt.Errorf("%w: bad init_params: %v", ErrSandbox, err)
		}
	}
	for _, call := range calls {
		cp, ok := call.Payload.(*ContractCallPayload)
		if !ok {
			continue
		}
		switch cp.Method {
		case "set":
			var args struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			}
			if err := json.Unmarshal([]byte(cp.Params), &args); err != nil {
				continue
			}
			state[args.Key] = args.Value
		case "delete":
			var args struct {
				Key string `json:"key"`
			}
			if err := json.Unmarshal([]byte(cp.Params), &args); err != nil {
				continue
			}
			delete(state, args.Key)
		default:
			// unsupported method: no-op, per §4.6
		}
	}
	b, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSandbox, err)
	}
	return b, nil
}

func stateToJSON(state map[string][]byte) json.RawMessage {
	asStrings := make(map[string]string, len(state))
	for k, v := range state {
		asStrings[k] = string(v)
	}
	b, _ := json.Marshal(asStrings)
	return b
}

// RenderWebPage returns the HTML for a web:v1 payload. If content begins
// with the WASM magic (raw or hex), it instantiates the module and calls
// its "render" export, collecting response_write bytes; otherwise it
// returns content verbatim (§4.6).
func (vm *VM) RenderWebPage(content string) (string, error) {
	wasmBytes, isWasm := decodeCode(content)
	if !isWasm {
		return content, nil
	}

	type result struct {
		html string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		engine := wasmer.NewEngine()
		store := wasmer.NewStore(engine)
		module, err := wasmer.NewModule(store, wasmBytes)
		if err != nil {
			done <- result{"", fmt.Errorf("compile module: %w", err)}
			return
		}
		h := &vmHostContext{state: map[string][]byte{}, log: vm.log}
		importObject := wasmer.NewImportObject()
		registerHostFunctions(store, importObject, h)
		instance, err := wasmer.NewInstance(module, importObject)
		if err != nil {
			done <- result{"", fmt.Errorf("instantiate: %w", err)}
			return
		}
		if mem, err := instance.Exports.GetMemory("memory"); err == nil && mem != nil {
			h.memory = mem
		}
		render, err := instance.Exports.GetFunction("render")
		if err != nil {
			done <- result{"", fmt.Errorf("no render export: %w", err)}
			return
		}
		if _, err := render(); err != nil {
			done <- result{"", fmt.Errorf("render: %w", err)}
			return
		}
		done <- result{string(h.response), nil}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), vmCallBudget)
	defer cancel()
	select {
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("%w: %v", ErrSandbox, r.err)
		}
		return r.html, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: render exceeded time budget", ErrSandbox)
	}
}
