package bytecode

import "testing"

func TestDecodeSplitsPushImmediates(t *testing.T) {
	code := []byte{0x60, 0x2a, 0x60, 0x00, 0x52, 0x00} // PUSH1 0x2a, PUSH1 0x00, MSTORE, STOP
	instrs := Decode(code)
	if len(instrs) != 4 {
		t.Fatalf("expected 4 instructions, got %d", len(instrs))
	}
	if instrs[0].Mnemonic() != "PUSH1" || len(instrs[0].Immediate) != 1 || instrs[0].Immediate[0] != 0x2a {
		t.Fatalf("unexpected first instruction: %+v", instrs[0])
	}
	if instrs[2].Mnemonic() != "MSTORE" || instrs[2].Offset != 4 {
		t.Fatalf("unexpected MSTORE instruction: %+v", instrs[2])
	}
	if instrs[3].Mnemonic() != "STOP" {
		t.Fatalf("expected trailing STOP, got %+v", instrs[3])
	}
}

func TestDecodeTruncatedPushKeepsRemainder(t *testing.T) {
	code := []byte{0x61, 0xaa} // PUSH2 with only 1 byte of immediate present
	instrs := Decode(code)
	if len(instrs) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(instrs))
	}
	if len(instrs[0].Immediate) != 1 {
		t.Fatalf("expected truncated immediate of length 1, got %d", len(instrs[0].Immediate))
	}
}

func TestCalculateSizeMatchesDecodedLength(t *testing.T) {
	code := []byte{0x7f}
	for i := 0; i < 32; i++ {
		code = append(code, byte(i))
	}
	code = append(code, 0x00)
	instrs := Decode(code)
	if got := CalculateSize(instrs); got != len(code) {
		t.Fatalf("CalculateSize() = %d, want %d", got, len(code))
	}
}

func TestDisassembleFormatsOffsetsAndImmediates(t *testing.T) {
	code := []byte{0x60, 0x01, 0x00}
	out := Disassemble(code)
	want := "0000: PUSH1 0x01\n0002: STOP\n"
	if out != want {
		t.Fatalf("Disassemble() = %q, want %q", out, want)
	}
}

func TestMnemonicUnknownOpcode(t *testing.T) {
	in := Instr{Op: 0xef}
	if in.Mnemonic() == "" {
		t.Fatal("expected a non-empty mnemonic fallback")
	}
}
