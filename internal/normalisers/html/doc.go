// Package html provides a text extractor for HTML documents.
// It parses the markup into a node tree and keeps readable text, dropping
// scripts, styles and the document head. Block elements become line breaks.
package html
