package signature

import (
	"bytes"
	"fmt"
	"strings"
)

// TypeUnknown is reported when no rule matches a file's header.
const TypeUnknown = "unknown"

// MaxPrefixLen bounds the length of a single header prefix.
const MaxPrefixLen = 32

// Rule maps a filename extension to the header prefixes its content
// is expected to carry. SkipCheck marks extensions that are known but
// never inspected (plain text has no magic number).
type Rule struct {
	Extension string
	Prefixes  [][]byte
	SkipCheck bool
}

// Table is an immutable signature lookup. It is built once at startup
// and shared read-only by all workers.
type Table struct {
	rules []Rule
	byExt map[string]int
}

// NewTable validates the rules and builds the lookup. Rule order is
// preserved: Identify scans in definition order, so more specific
// types must be listed before types sharing the same prefix.
func NewTable(rules []Rule) (*Table, error) {
	byExt := make(map[string]int, len(rules))

	for i, r := range rules {
		if r.Extension == "" {
			return nil, fmt.Errorf("rule %d: empty extension", i)
		}
		if r.Extension != strings.ToLower(r.Extension) {
			return nil, fmt.Errorf("extension %q must be lowercase", r.Extension)
		}
		if strings.HasPrefix(r.Extension, ".") {
			return nil, fmt.Errorf("extension %q must not include the leading dot", r.Extension)
		}
		if _, dup := byExt[r.Extension]; dup {
			return nil, fmt.Errorf("duplicate extension %q", r.Extension)
		}
		if r.SkipCheck && len(r.Prefixes) > 0 {
			return nil, fmt.Errorf("extension %q: skip_check rules must not list prefixes", r.Extension)
		}
		if !r.SkipCheck && len(r.Prefixes) == 0 {
			return nil, fmt.Errorf("extension %q: no prefixes defined", r.Extension)
		}
		for _, p := range r.Prefixes {
			if len(p) == 0 || len(p) > MaxPrefixLen {
				return nil, fmt.Errorf("extension %q: prefix length %d out of range [1, %d]",
					r.Extension, len(p), MaxPrefixLen)
			}
		}
		byExt[r.Extension] = i
	}

	return &Table{rules: rules, byExt: byExt}, nil
}

// Lookup returns the rule registered for an extension.
func (t *Table) Lookup(ext string) (Rule, bool) {
	i, ok := t.byExt[ext]
	if !ok {
		return Rule{}, false
	}
	return t.rules[i], true
}

// Identify returns the extension of the first rule whose prefix
// matches the header, or TypeUnknown.
func (t *Table) Identify(header []byte) string {
	for _, r := range t.rules {
		for _, sig := range r.Prefixes {
			if bytes.HasPrefix(header, sig) {
				return r.Extension
			}
		}
	}
	return TypeUnknown
}

// Len returns the number of rules in the table.
func (t *Table) Len() int {
	return len(t.rules)
}

// Default returns the built-in signature table.
//
// exe precedes dll and zip precedes the Office formats so Identify
// reports the generic type for shared prefixes. tar and iso are
// absent: their signatures live at byte offsets 257 and 32769, which
// a prefix match cannot express.
func Default() *Table {
	rules := []Rule{
		{Extension: "pdf", Prefixes: [][]byte{[]byte("%PDF")}},
		{Extension: "png", Prefixes: [][]byte{{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}}},
		{Extension: "jpg", Prefixes: [][]byte{{0xff, 0xd8, 0xff}}},
		{Extension: "jpeg", Prefixes: [][]byte{{0xff, 0xd8, 0xff}}},
		{Extension: "gif", Prefixes: [][]byte{[]byte("GIF87a"), []byte("GIF89a")}},
		{Extension: "zip", Prefixes: [][]byte{{'P', 'K', 0x03, 0x04}, {'P', 'K', 0x05, 0x06}, {'P', 'K', 0x07, 0x08}}},
		{Extension: "exe", Prefixes: [][]byte{[]byte("MZ")}},
		{Extension: "dll", Prefixes: [][]byte{[]byte("MZ")}},
		{Extension: "elf", Prefixes: [][]byte{{0x7f, 'E', 'L', 'F'}}},
		{Extension: "doc", Prefixes: [][]byte{{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}}},
		{Extension: "docx", Prefixes: [][]byte{{'P', 'K', 0x03, 0x04}}},
		{Extension: "xlsx", Prefixes: [][]byte{{'P', 'K', 0x03, 0x04}}},
		{Extension: "pptx", Prefixes: [][]byte{{'P', 'K', 0x03, 0x04}}},
		{Extension: "sh", Prefixes: [][]byte{[]byte("#!/bin/bash"), []byte("#!/bin/sh")}},
		{Extension: "py", Prefixes: [][]byte{[]byte("#!/usr/bin/python"), []byte("#!/usr/bin/env python")}},
		{Extension: "rar", Prefixes: [][]byte{{'R', 'a', 'r', '!', 0x1a, 0x07}}},
		{Extension: "7z", Prefixes: [][]byte{{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c}}},
		{Extension: "gz", Prefixes: [][]byte{{0x1f, 0x8b}}},
		{Extension: "bz2", Prefixes: [][]byte{[]byte("BZ")}},
		{Extension: "txt", SkipCheck: true},
	}

	table, err := NewTable(rules)
	if err != nil {
		panic("signature: invalid built-in table: " + err.Error())
	}
	return table
}
