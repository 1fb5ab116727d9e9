// Package recognition defines the uniform text-recognition contract the
// pipeline builds on: a Region/Result data model and the Engine interface
// implemented by concrete providers.
//
// Two engines ship with the module: recognition/tesseract (fast, local,
// used as the primary) and recognition/visionllm (remote vision model,
// slower, used as the fallback). The coordinator package decides which to
// invoke per frame.
package recognition
