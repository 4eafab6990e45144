package guard

// The "custom" guard type is an extension seam with no function of its own
// (spec.md §3): callers register their own Factory under a name of their
// choosing via Registry.Register("custom", factory) or any other type
// name; the core provides no concrete implementation here, only the ABI
// it must conform to.
