package symbol

import (
	"debug/elf"
	"encoding/hex"
	"fmt"
)

// buildIDNoteName is the note owner name the kernel and binutils both use
// for GNU build-ids (spec.md section 6 "Build ID").
const buildIDNoteName = "GNU\x00"

// ReadBuildID extracts the ELF build-id note from path, checking
// .note.gnu.build-id first and falling back to .notes / .note, matching
// original_source's symbol/symbol_resolve.cpp fallback order (SPEC_FULL.md
// section 3).
func ReadBuildID(path string) (string, error) {
	f, err := elf.Open(path)
	if err != nil {
		return "", fmt.Errorf("symbol: opening %s: %w", path, err)
	}
	defer f.Close()

	for _, name := range []string{".note.gnu.build-id", ".notes", ".note"} {
		sec := f.Section(name)
		if sec == nil {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			continue
		}
		if id, ok := parseBuildIDNote(data); ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("symbol: no build-id note in %s", path)
}

// parseBuildIDNote walks the ELF note records in data looking for one
// owned by "GNU" with type NT_GNU_BUILD_ID (3).
func parseBuildIDNote(data []byte) (string, bool) {
	const ntGNUBuildID = 3
	off := 0
	for off+12 <= len(data) {
		nameSz := le32(data[off:])
		descSz := le32(data[off+4:])
		typ := le32(data[off+8:])
		off += 12

		nameEnd := off + pad4(int(nameSz))
		if nameEnd > len(data) {
			return "", false
		}
		name := data[off : off+int(nameSz)]
		off = nameEnd

		descEnd := off + pad4(int(descSz))
		if descEnd > len(data) || off+int(descSz) > len(data) {
			return "", false
		}
		desc := data[off : off+int(descSz)]
		off = descEnd

		if typ == ntGNUBuildID && string(name) == buildIDNoteName {
			return hex.EncodeToString(desc), true
		}
	}
	return "", false
}

func pad4(n int) int {
	if n%4 == 0 {
		return n
	}
	return n + (4 - n%4)
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
