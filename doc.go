// Package wallaroo describes stream-processing applications for an external
// execution engine.
//
// An application is assembled from a Source, computations and sinks with the
// copy-on-write Pipeline builder, then flattened by Build into a descriptor
// (package kdag) that the engine consumes. Descriptors are pure data:
// computations, key extractors, generators and codecs are referenced by name
// and resolved through a Registry populated identically in every process.
//
//	dec := wallaroo.NewDecoder("decode", kserde.MustNewFramedDecoder(kserde.Uint32BE, kserde.Float32Deserializer))
//	enc := wallaroo.NewEncoder("encode", kserde.MustNewEncoder(kserde.LineSerializer[float32]("%.6f")))
//	double := wallaroo.NewComputation("double", func(v float32) (float32, error) { return v * 2, nil })
//
//	app, err := wallaroo.Build("doubler", wallaroo.
//		Source("numbers", wallaroo.TCPSourceConfig("127.0.0.1", 7000, dec)).
//		To(double).
//		ToSink(wallaroo.TCPSinkConfig("127.0.0.1", 7002, enc)))
//
// Function signatures are checked at compile time by the typed constructors.
// Registry.RegisterFunc is the fallback for functions only known at run
// time; it checks the parameter count and fails with ErrArity.
//
// Errors are classified by ErrConfiguration, ErrArity, ErrMisuse,
// ErrProtocol and ErrConnection, and can be matched with errors.Is.
package wallaroo
