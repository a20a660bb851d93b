// Package command parses command files into typed commands.
//
// A command file has an optional header line followed by one command per line:
//
//	threads,<N>,0
//	insert,<name>,<salary>
//	delete,<name>,0
//	search,<name>,0
//
// Lines that do not parse are skipped and reported as *ParseError. They never
// reach the store.
package command
