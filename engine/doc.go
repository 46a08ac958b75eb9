// Package engine integrates the bridge with wazero.
//
// It compiles and instantiates the guest module, registers the bridge's
// import surface as the "bridge" host module, adapts wazero linear memory to
// the wasmbridge.Memory interface, and caches the guest's exported re-entry
// functions.
//
// # Instantiation Flow
//
//  1. New() creates an Engine wrapping a wazero runtime
//  2. Engine.Instantiate() compiles the guest, registers the import
//     surface, instantiates the module and wires a bridge.Bridge to it
//  3. Instance.Init() calls the guest's init export
//  4. Instance.Run() drives the bridge's dispatch loop until shutdown
//
// One guest instance runs per Engine; the import surface is a singleton
// host module within the wazero runtime.
//
// # Import Surface
//
// Every host function decodes raw i32/i64/f64 arguments, with pointers
// truncated to u32, and forwards to the typed bridge operations. The guest
// calls them synchronously; none of them block.
package engine
