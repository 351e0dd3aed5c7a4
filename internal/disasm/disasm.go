// Package disasm renders bitcode back to readable text: a full listing for
// the assembler's pretty-print output mode, and a one-line-per-step trace
// for the emulator's --trace flag and internal/debugger.
package disasm

import (
	"fmt"
	"strings"

	"github.com/devyn/fai/internal/bitcode"
	"github.com/devyn/fai/internal/fai"
)

// Line decodes one instruction starting at words[0] and returns its rendered
// form plus the number of words it consumed (1 or 2). addr is the word
// address to display, used only for the leading column.
func Line(addr uint32, words []uint32) (string, int, error) {
	if len(words) == 0 {
		return "", 0, fmt.Errorf("disasm: no words at address 0x%08x", addr)
	}

	n := 2
	if bitcode.IsCompactHeader(words[0]) {
		n = 1
	}
	if n > len(words) {
		n = len(words)
	}

	inst, err := bitcode.Decode(words[:n])
	if err != nil {
		return "", n, err
	}

	raw := make([]string, n)
	for i, w := range words[:n] {
		raw[i] = fmt.Sprintf("%08x", w)
	}

	return fmt.Sprintf("%08x    %-18s    %s", addr, strings.Join(raw, " "), inst.String()), n, nil
}

// Format renders an entire bitcode program as a listing, one line per
// instruction, addresses expressed as word offsets from the start of words.
func Format(words []uint32) (string, error) {
	var sb strings.Builder
	addr := uint32(0)
	for int(addr) < len(words) {
		line, n, err := Line(addr, words[addr:])
		if err != nil {
			return "", err
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
		addr += uint32(n)
	}
	return sb.String(), nil
}

// Trace renders one executed-instruction row: the instruction that just ran
// and the resulting register file, used by --trace and the debugger.
func Trace(inst fai.Instruction, state fai.State) string {
	return fmt.Sprintf(
		"ip=%08x sp=%08x a=%08x b=%08x c=%08x d=%08x flags={l:%v g:%v e:%v pause:%v}  %s",
		state.Ip, state.Sp, state.Areg, state.Breg, state.Creg, state.Dreg,
		state.Flags.CmpL, state.Flags.CmpG, state.Flags.CmpE, state.Flags.IntPause,
		inst,
	)
}
