// Package interner implements the phrase index described in spec.md §4.1:
// a versioned, append-only map from token prefixes to the bitset of tokens
// that legally complete them.
package interner

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/foldsearch/fold/internal/splitter"
	"github.com/foldsearch/fold/pkg/bitset"
)

// Token identifies a vocabulary word by position. A token's validity is
// always relative to a particular Interner: it must be < that interner's
// vocabulary size.
type Token = uint32

// ErrCorruptSnapshot is returned by UnmarshalBinary when the input is not a
// well-formed interner snapshot.
var ErrCorruptSnapshot = errors.New("interner: corrupt snapshot")

// Interner is immutable after construction. FromText and AddText both
// return a new value; neither mutates its receiver.
type Interner struct {
	version    uint64
	vocabulary []string
	index      map[string]Token
	prefixes   map[string]*bitset.BitSet
}

// New returns a zero-value interner suitable only as a target for
// UnmarshalBinary (e.g. when restoring a checkpoint). Use FromText to build
// one from a corpus.
func New() *Interner {
	return &Interner{}
}

// FromText returns a version=1 interner built from text, per spec.md
// §4.1's from_text.
func FromText(text string) *Interner {
	in := &Interner{
		version:  1,
		index:    make(map[string]Token),
		prefixes: make(map[string]*bitset.BitSet),
	}

	in.vocabulary = splitter.Vocabulary(text)
	for i, w := range in.vocabulary {
		in.index[w] = Token(i)
	}

	in.addPhrases(splitter.Phrases(text))

	return in
}

// AddText returns a new interner at version+1: the vocabulary is extended
// with any new words (existing indices unchanged), every existing bitset is
// widened to the new vocabulary size, and the phrases of text are folded in
// as in FromText. The receiver is left untouched.
func (in *Interner) AddText(text string) *Interner {
	next := &Interner{
		version:    in.version + 1,
		vocabulary: append([]string(nil), in.vocabulary...),
		index:      make(map[string]Token, len(in.index)),
	}

	for w, t := range in.index {
		next.index[w] = t
	}

	newWords := splitter.Vocabulary(text)
	for _, w := range newWords {
		if _, ok := next.index[w]; ok {
			continue
		}

		next.index[w] = Token(len(next.vocabulary))
		next.vocabulary = append(next.vocabulary, w)
	}

	width := uint(len(next.vocabulary))
	next.prefixes = make(map[string]*bitset.BitSet, len(in.prefixes))

	for key, bs := range in.prefixes {
		clone := bs.Clone()
		clone.Grow(width)
		next.prefixes[key] = clone
	}

	next.addPhrases(splitter.Phrases(text))

	return next
}

func (in *Interner) addPhrases(phrases [][]string) {
	width := uint(len(in.vocabulary))

	for _, phrase := range phrases {
		if len(phrase) < 2 {
			continue
		}

		prefix := make([]Token, len(phrase)-1)
		for i, w := range phrase[:len(phrase)-1] {
			prefix[i] = in.index[w]
		}

		completion := in.index[phrase[len(phrase)-1]]

		key := encodePrefix(prefix)

		bs, ok := in.prefixes[key]
		if !ok {
			bs = bitset.New(width)
			in.prefixes[key] = bs
		}

		bs.Set(uint(completion))
	}
}

// Version returns the interner's version, starting at 1.
func (in *Interner) Version() uint64 { return in.version }

// VocabularySize returns the number of distinct tokens.
func (in *Interner) VocabularySize() int { return len(in.vocabulary) }

// StringForToken returns the word for a token index. Panics if t is out of
// range: an out-of-range token index is a programmer error, per spec.md
// §7.4, never a recoverable condition.
func (in *Interner) StringForToken(t Token) string {
	if int(t) >= len(in.vocabulary) {
		panic(fmt.Sprintf("interner: token %d out of range (vocabulary size %d)", t, len(in.vocabulary)))
	}

	return in.vocabulary[t]
}

// TokenForString looks up the token for a word, if present.
func (in *Interner) TokenForString(s string) (Token, bool) {
	t, ok := in.index[s]

	return t, ok
}

// Intersect computes the bitwise-OR of the bitsets for every prefix in
// required (or the all-ones bitset if required is empty), ANDs it with the
// complement of forbidden, and returns the sorted list of set token
// indices. A required prefix absent from the index contributes no bits.
func (in *Interner) Intersect(required [][]Token, forbidden []Token) []Token {
	width := uint(len(in.vocabulary))

	allowed := bitset.New(width)

	if len(required) == 0 {
		allowed.SetAll()
	} else {
		for _, prefix := range required {
			bs, ok := in.prefixes[encodePrefix(prefix)]
			if !ok {
				continue
			}

			allowed.UnionWith(bs)
		}
	}

	forbiddenSet := bitset.New(width)
	for _, f := range forbidden {
		forbiddenSet.Set(uint(f))
	}
	forbiddenSet.Complement()

	allowed.IntersectWith(forbiddenSet)

	return allowed.Ones()
}

func encodePrefix(tokens []Token) string {
	buf := make([]byte, 4*len(tokens))
	for i, t := range tokens {
		binary.BigEndian.PutUint32(buf[i*4:], t)
	}

	return string(buf)
}
