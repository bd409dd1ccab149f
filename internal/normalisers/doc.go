// Package normalisers provides text extractors for the upload formats
// docrag ingests. Each subpackage knows how to turn one file format into
// plain text; the Registry in this package picks one by file extension.
//
// Extractors are registered with the Registry at startup via RegisterDefaults.
package normalisers
