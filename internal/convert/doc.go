// Package convert selects and runs the conversion strategy for a single
// file.
//
// A request passes through these states:
//
//	Validating -> Classifying -> Dispatching -> LocalProcessing -> Succeeded
//	                                                 |
//	                                                 +-> RemoteFallback -> Succeeded | Failed
//
// Validation rejects files over the size limit and convert requests whose
// target is the source format or an alias of it (jpg and jpeg). The file is
// then classified and dispatched:
//
//   - images are re-encoded locally and never sent to the backend
//   - audio and video go through the shared transcoding engine, with one
//     retry using simplified arguments
//   - documents use the local bridge for the pairs it supports and the
//     remote backend for the rest
//
// Every failure is returned as an [*Error] carrying a [Code]. Use
// [UserMessage] for text that can be shown to end users.
package convert
