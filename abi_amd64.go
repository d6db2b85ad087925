// x86-64 System V argument classification: which register a given
// parameter/argument slot uses, by index and width (spec §4.6).
// Integers go in rdi,rsi,rdx,rcx,r8,r9 (or their 8/16/32-bit aliases
// for sub-word parameters); floats/doubles go in xmm0-xmm7; %al
// carries the vector-register count for a variadic call.
package main

import (
	"math"
	"strings"
)

var amd64IntArgRegs = []string{"%rdi", "%rsi", "%rdx", "%rcx", "%r8", "%r9"}

// amd64IntArgRegsByWidth[size][idx] is the sized name of argument
// register idx. Indexed by size in {1,2,4,8}; size 3/5/6/7 never
// occurs since every scalar integer type chibicc-style compilers
// support is a power-of-two width.
var amd64IntArgRegsByWidth = map[int][]string{
	1: {"%dil", "%sil", "%dl", "%cl", "%r8b", "%r9b"},
	2: {"%di", "%si", "%dx", "%cx", "%r8w", "%r9w"},
	4: {"%edi", "%esi", "%edx", "%ecx", "%r8d", "%r9d"},
	8: amd64IntArgRegs,
}

func amd64IntArgReg(idx, size int) string {
	names, ok := amd64IntArgRegsByWidth[size]
	if !ok || idx >= len(names) {
		Bug("no x86-64 integer argument register for index %d size %d", idx, size)
	}
	return names[idx]
}

var amd64FloArgRegs8 = []string{
	"%xmm0", "%xmm1", "%xmm2", "%xmm3", "%xmm4", "%xmm5", "%xmm6", "%xmm7",
}

func amd64FloArgReg(idx int) string {
	if idx >= len(amd64FloArgRegs8) {
		Bug("no x86-64 floating-point argument register for index %d", idx)
	}
	return amd64FloArgRegs8[idx]
}

// reg8/reg16/reg32 rewrite one of the register-stack slot names
// (%r10-%r15) to its 8/16/32-bit sub-register; r8-r15 share the d/w/b
// suffix scheme regardless of width, unlike the legacy rax/eax/ax/al
// family.
func reg8(r string) string  { return sizedAlias(r, "b") }
func reg16(r string) string { return sizedAlias(r, "w") }
func reg32(r string) string { return sizedAlias(r, "d") }

func sizedAlias(r, suffix string) string {
	name := strings.TrimPrefix(r, "%")
	switch name {
	case "r10", "r11", "r12", "r13", "r14", "r15":
		return "%" + name + suffix
	}
	Bug("sizedAlias: %s is not a register-stack slot", r)
	return r
}

func float32bitsOf(f float32) uint32 { return math.Float32bits(f) }
func float64bitsOf(f float64) uint64 { return math.Float64bits(f) }
