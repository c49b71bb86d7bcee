// Package stream provides the byte streams exchanged between a caller and the
// component it invokes.
//
// Local calls use Pipe: a single-slot channel carrying one pending chunk at a
// time. A writer blocks, or reports full with TryWrite, while the chunk is
// unread. Closing the writer signals end of input; the reader sees io.EOF only
// after every written chunk has been consumed. Dropping the reader makes
// further writes fail with a closed error.
//
// Outgoing and Incoming wrap either a local pipe end or a remote transport
// stream behind one contract, so callers cannot tell locality from the type.
// Sub-stream addressing with Index works only on the remote variant.
package stream
