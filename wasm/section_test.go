package wasm_test

import (
	"bytes"
	"testing"

	"github.com/wasmforge/wasmforge/wasm"
	"github.com/wasmforge/wasmforge/wasm/leb128"
)

// buildModuleWithNameSection assembles a minimal module in memory: the
// magic/version header plus a single custom "name" section carrying the
// given NameSection payload. Building the bytes in code (rather than
// shipping a prebuilt .wasm fixture) keeps this test self-contained.
func buildModuleWithNameSection(t *testing.T, nSec *wasm.NameSection) []byte {
	t.Helper()

	var nameData bytes.Buffer
	if err := nSec.MarshalWASM(&nameData); err != nil {
		t.Fatalf("error name Section Marshal %v", err)
	}

	var payload bytes.Buffer
	if err := writeUTF8StringUint(&payload, "name"); err != nil {
		t.Fatalf("error writing custom section name %v", err)
	}
	payload.Write(nameData.Bytes())

	var mod bytes.Buffer
	mod.Write([]byte{0x00, 0x61, 0x73, 0x6d}) // magic "\0asm"
	mod.Write([]byte{0x01, 0x00, 0x00, 0x00}) // version 1

	mod.WriteByte(byte(wasm.SectionIDCustom))
	if _, err := leb128.WriteVarUint32(&mod, uint32(payload.Len())); err != nil {
		t.Fatalf("error writing custom section size %v", err)
	}
	mod.Write(payload.Bytes())

	return mod.Bytes()
}

// writeUTF8StringUint mirrors the length-prefixed string encoding used
// throughout the wasm package's own section payloads.
func writeUTF8StringUint(w *bytes.Buffer, s string) error {
	if _, err := leb128.WriteVarUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

func TestSectionCustom(t *testing.T) {
	wantSec := &wasm.NameSection{
		ModuleName: "custom_funcs_locals",
		FunctionNames: map[uint32]string{
			0: "main",
			1: "helper",
		},
		LocalNames: map[uint32]map[uint32]string{
			1: {0: "x", 1: "y"},
		},
	}

	t.Run("custom_funcs_locals", func(t *testing.T) {
		raw := buildModuleWithNameSection(t, wantSec)

		r := bytes.NewReader(raw)
		m, err := wasm.DecodeModule(r)
		if err != nil {
			t.Fatalf("error reading module %v", err)
		}

		nameCustom := m.Custom("name")
		if nameCustom == nil {
			t.Fatal("can not find name custom section")
		}

		var nSec wasm.NameSection
		err = nSec.UnmarshalWASM(bytes.NewReader(nameCustom.Data))
		if err != nil {
			t.Fatalf("error name Section Unmarshal %v", err)
		}

		if len(nSec.FunctionNames) == 0 {
			t.Fatal("decoded name section doesn't have custom FunctionNames section")
		}

		var buf bytes.Buffer
		if err := nSec.MarshalWASM(&buf); err != nil {
			t.Fatalf("error name Section Marshal %v", err)
		}

		var roundTripped wasm.NameSection
		if err := roundTripped.UnmarshalWASM(bytes.NewReader(buf.Bytes())); err != nil {
			t.Fatalf("error re-decoding marshaled name Section: %v", err)
		}
		if roundTripped.ModuleName != nSec.ModuleName {
			t.Fatalf("module name mismatch: got %q, want %q", roundTripped.ModuleName, nSec.ModuleName)
		}
		if len(roundTripped.FunctionNames) != len(nSec.FunctionNames) {
			t.Fatalf("function name count mismatch: got %d, want %d", len(roundTripped.FunctionNames), len(nSec.FunctionNames))
		}
		for idx, name := range nSec.FunctionNames {
			if roundTripped.FunctionNames[idx] != name {
				t.Fatalf("function[%d] name mismatch: got %q, want %q", idx, roundTripped.FunctionNames[idx], name)
			}
		}
	})
}
