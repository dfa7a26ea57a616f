package interner

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/foldsearch/fold/pkg/bitset"
)

// snapshotMagic identifies an interner.bin file, per spec.md §6's
// length-framed serialization of (version, vocabulary, prefix_to_completions).
var snapshotMagic = [8]byte{'F', 'O', 'L', 'D', 'I', 'N', 'T', 'R'}

// MarshalBinary encodes the interner into the on-disk snapshot format named
// in spec.md §6: a magic header, the version, the vocabulary as
// length-prefixed strings, and the prefix map as length-prefixed token
// sequences each paired with a packed, explicit-bit-length bitset.
func (in *Interner) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer

	buf.Write(snapshotMagic[:])
	writeUint64(&buf, in.version)

	writeUint32(&buf, uint32(len(in.vocabulary)))
	for _, w := range in.vocabulary {
		writeUint32(&buf, uint32(len(w)))
		buf.WriteString(w)
	}

	writeUint32(&buf, uint32(len(in.prefixes)))
	for key, bs := range in.prefixes {
		tokens := decodePrefix(key)

		writeUint32(&buf, uint32(len(tokens)))
		for _, t := range tokens {
			writeUint32(&buf, t)
		}

		writeUint64(&buf, uint64(bs.Len()))

		packed := bs.Bytes()
		writeUint32(&buf, uint32(len(packed)))
		buf.Write(packed)
	}

	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a snapshot produced by MarshalBinary, replacing
// the receiver's state. Returns ErrCorruptSnapshot (wrapped with context)
// if the input is truncated or malformed, matching spec.md §7's policy
// that deserialization failure is fatal, not self-healing.
func (in *Interner) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)

	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return fmt.Errorf("%w: reading magic: %w", ErrCorruptSnapshot, err)
	}

	if magic != snapshotMagic {
		return fmt.Errorf("%w: bad magic", ErrCorruptSnapshot)
	}

	version, err := readUint64(r)
	if err != nil {
		return fmt.Errorf("%w: reading version: %w", ErrCorruptSnapshot, err)
	}

	vocabCount, err := readUint32(r)
	if err != nil {
		return fmt.Errorf("%w: reading vocabulary count: %w", ErrCorruptSnapshot, err)
	}

	vocabulary := make([]string, vocabCount)
	index := make(map[string]Token, vocabCount)

	for i := range vocabulary {
		wordLen, err := readUint32(r)
		if err != nil {
			return fmt.Errorf("%w: reading word length: %w", ErrCorruptSnapshot, err)
		}

		word := make([]byte, wordLen)
		if _, err := io.ReadFull(r, word); err != nil {
			return fmt.Errorf("%w: reading word: %w", ErrCorruptSnapshot, err)
		}

		vocabulary[i] = string(word)
		index[vocabulary[i]] = Token(i)
	}

	prefixCount, err := readUint32(r)
	if err != nil {
		return fmt.Errorf("%w: reading prefix count: %w", ErrCorruptSnapshot, err)
	}

	prefixes := make(map[string]*bitset.BitSet, prefixCount)

	for range prefixCount {
		tokenCount, err := readUint32(r)
		if err != nil {
			return fmt.Errorf("%w: reading prefix length: %w", ErrCorruptSnapshot, err)
		}

		tokens := make([]Token, tokenCount)
		for i := range tokens {
			tok, err := readUint32(r)
			if err != nil {
				return fmt.Errorf("%w: reading prefix token: %w", ErrCorruptSnapshot, err)
			}

			tokens[i] = tok
		}

		bitLen, err := readUint64(r)
		if err != nil {
			return fmt.Errorf("%w: reading bitset length: %w", ErrCorruptSnapshot, err)
		}

		byteLen, err := readUint32(r)
		if err != nil {
			return fmt.Errorf("%w: reading bitset byte count: %w", ErrCorruptSnapshot, err)
		}

		packed := make([]byte, byteLen)
		if _, err := io.ReadFull(r, packed); err != nil {
			return fmt.Errorf("%w: reading bitset bytes: %w", ErrCorruptSnapshot, err)
		}

		prefixes[encodePrefix(tokens)] = bitset.FromBytes(uint(bitLen), packed)
	}

	in.version = version
	in.vocabulary = vocabulary
	in.index = index
	in.prefixes = prefixes

	return nil
}

func decodePrefix(key string) []Token {
	tokens := make([]Token, len(key)/4)
	for i := range tokens {
		tokens[i] = binary.BigEndian.Uint32([]byte(key[i*4 : i*4+4]))
	}

	return tokens
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func readUint32(r io.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint32(tmp[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint64(tmp[:]), nil
}
