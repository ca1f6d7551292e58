// Package loader implements an isolated module namespace with a pluggable
// binary transformer.
//
// An Isolated loader resolves names in two tiers. Names owned by the host
// (platform intrinsics, a fixed set of support modules that must not be
// duplicated, and a trusted utility prefix) are delegated to the parent
// namespace and not cached here. Every other name is resolved once: bridge
// capabilities resolve to the exact capability object supplied at
// construction, anything else is read from the Source, passed through the
// Transformer and compiled in the loader's own runtime.
//
// The transformer is attached after construction because it may itself be
// loaded through the loader:
//
//	l, _ := loader.New(ctx, loader.Config{Parent: ns, Source: src})
//	inst, _ := l.Instantiate(ctx, "acme.weaver.Impl", loader.TransformerCapability)
//	l.SetTransformer(weave.NewGuest(inst))
//
// Code running inside a transform call on a goroutine is never transformed
// itself; nested resolutions on that goroutine pass bytes through unchanged.
package loader
