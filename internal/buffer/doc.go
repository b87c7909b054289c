// Package buffer provides the in-memory queues between the stream core and
// its consumers.
//
// Growable is an unbounded-until-ceiling FIFO used to hand normalized events
// from the router to writers. Ring is a fixed-size FIFO that evicts the
// oldest entry and backs each connection's recent-message view.
package buffer
