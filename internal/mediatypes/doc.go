// Package mediatypes classifies files as images, videos, or unsupported
// based on their extension, and maps extensions to MIME types.
//
// Classification is intentionally extension-based: it runs on every
// thumbnail request before any file content is read, so it must be cheap.
// Content sniffing happens later, inside the generation pipeline.
package mediatypes
