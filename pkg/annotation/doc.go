// Package annotation extracts intent annotations from free-form text.
//
// An annotation is a tagged call such as
//
//	chan!('data_pipeline', concurrent_processing)
//
// where the tag names a behavioral pattern, the quoted literal is a label and
// the remainder up to the closing parenthesis is the payload. Matching is
// case-insensitive and tolerant of whitespace.
//
// A Grammar is the ordered list of recognized tags. DefaultGrammar knows
// chan, own, event, async, safe, concurrent and reactive; more tags can be
// added with Grammar.With.
//
// Known limitation: payloads end at the first ')' so nested parentheses are
// truncated. See Rule.
package annotation
